// Package identity owns actor and agent lifecycles: the trust root, key
// persistence, record signing, revocation, and the succession chain that
// preserves authorship across key rotations.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/crypto"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/records"
	"github.com/gitgov-io/gitgov/pkg/store"
)

const eventSource = "identity_adapter"

// Adapter is the identity facade.
type Adapter struct {
	actors *store.Store
	agents *store.Store
	// rawActors reads the same directory without signature verification;
	// it backs the public-key resolver, which would otherwise recurse into
	// itself while verifying self-signed actor records.
	rawActors *store.Store
	keys      *Keystore
	session   *config.SessionManager
	bus       *eventbus.Bus
	logger    *slog.Logger
}

// Options wires an identity adapter.
type Options struct {
	ActorsDir string
	AgentsDir string
	Session   *config.SessionManager
	Bus       *eventbus.Bus
	Logger    *slog.Logger
}

// NewAdapter opens the actor and agent stores and the keystore.
func NewAdapter(opts Options) (*Adapter, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &Adapter{
		session: opts.Session,
		bus:     opts.Bus,
		logger:  opts.Logger,
	}
	var err error
	if a.rawActors, err = store.New(opts.ActorsDir, records.RecordTypeActor, nil, opts.Logger); err != nil {
		return nil, err
	}
	if a.actors, err = store.New(opts.ActorsDir, records.RecordTypeActor, a.Resolver(), opts.Logger); err != nil {
		return nil, err
	}
	if a.agents, err = store.New(opts.AgentsDir, records.RecordTypeAgent, a.Resolver(), opts.Logger); err != nil {
		return nil, err
	}
	if a.keys, err = NewKeystore(opts.ActorsDir); err != nil {
		return nil, err
	}
	return a, nil
}

// Resolver returns the public-key lookup used by every record store to
// verify signatures on read.
func (a *Adapter) Resolver() store.PublicKeyResolver {
	return func(ctx context.Context, keyID string) (string, error) {
		return a.GetActorPublicKey(ctx, keyID)
	}
}

// GetActorPublicKey returns the base64 public key recorded for keyID. The
// literal keyId's key is returned even for revoked actors: records signed
// before a rotation verify against the key that made them, while the
// succession chain answers who that identity is today.
func (a *Adapter) GetActorPublicKey(ctx context.Context, keyID string) (string, error) {
	rec, err := a.rawActors.Get(ctx, keyID)
	if err != nil {
		return "", err
	}
	actor, err := records.Decode[records.Actor](rec)
	if err != nil {
		return "", err
	}
	return actor.PublicKey, nil
}

// CreateActor generates a keypair, persists a signed ActorRecord, and stores
// the private key in the keystore. The first actor of a project is the
// bootstrap trust root and self-signs its own record; later actors are
// signed by signerID (placeholder when that signer's key is unavailable).
func (a *Adapter) CreateActor(ctx context.Context, partial records.Actor, signerID string) (*records.Actor, error) {
	pub, priv, err := crypto.GenerateKeys()
	if err != nil {
		return nil, err
	}
	partial.PublicKey = pub
	actor, err := records.NewActor(partial)
	if err != nil {
		return nil, err
	}
	if exists, err := a.actors.Exists(ctx, actor.ID); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("actor %q already exists", actor.ID)
	}

	existing, err := a.rawActors.List(ctx)
	if err != nil {
		return nil, err
	}
	isBootstrap := len(existing) == 0

	rec, err := records.NewRecord(records.RecordTypeActor, actor)
	if err != nil {
		return nil, err
	}
	if err := a.keys.Write(actor.ID, priv); err != nil {
		return nil, fmt.Errorf("writing private key for %s: %w", actor.ID, err)
	}
	signer := signerID
	if isBootstrap || signer == "" {
		signer = actor.ID
	}
	if err := a.SignRecord(ctx, rec, signer, "author", ""); err != nil {
		_ = a.keys.Delete(actor.ID)
		return nil, err
	}
	if err := a.actors.Put(ctx, actor.ID, rec); err != nil {
		_ = a.keys.Delete(actor.ID)
		return nil, err
	}

	a.publish(ctx, eventbus.EventActorCreated, eventbus.ActorCreated{
		ActorID:     actor.ID,
		ActorType:   string(actor.Type),
		IsBootstrap: isBootstrap,
	})
	return actor, nil
}

// GetActor returns one actor, fully verified.
func (a *Adapter) GetActor(ctx context.Context, id string) (*records.Actor, error) {
	rec, err := a.actors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Actor](rec)
}

// ListActors returns every readable actor, sorted by id. Corrupt records
// are logged and omitted so one bad file cannot hide the rest.
func (a *Adapter) ListActors(ctx context.Context) ([]records.Actor, error) {
	ids, err := a.actors.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	out := make([]records.Actor, 0, len(ids))
	for _, id := range ids {
		actor, err := a.GetActor(ctx, id)
		if err != nil {
			a.logger.Warn("skipping unreadable actor record", "id", id, "error", err)
			continue
		}
		out = append(out, *actor)
	}
	return out, nil
}

// SignRecord refreshes the header checksum and adds a signature by actorID.
// With a private key on hand the signature is real; otherwise a placeholder
// sentinel is written (dev/test flows). Existing placeholder signatures are
// replaced; real ones are kept, supporting multi-signature co-approvals.
func (a *Adapter) SignRecord(ctx context.Context, rec *records.Record, actorID, role, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, actual, err := rec.ChecksumMatches()
	if err != nil {
		return err
	}
	kept := rec.Header.Signatures[:0]
	if !ok {
		// Payload changed since the last signing: prior signatures no
		// longer cover it.
		rec.Header.PayloadChecksum = actual
	} else {
		for _, sig := range rec.Header.Signatures {
			if sig.Signature != crypto.PlaceholderSignature {
				kept = append(kept, sig)
			}
		}
	}
	rec.Header.Signatures = kept

	priv, err := a.keys.Read(actorID)
	if err != nil {
		return err
	}
	var sig crypto.Signature
	if priv == "" {
		sig = crypto.Signature{
			KeyID:     actorID,
			Role:      role,
			Notes:     notes,
			Signature: crypto.PlaceholderSignature,
		}
	} else {
		sig, err = crypto.SignChecksum(rec.Header.PayloadChecksum, priv, actorID, role, notes)
		if err != nil {
			return err
		}
	}
	rec.Header.Signatures = append(rec.Header.Signatures, sig)
	return nil
}

// RevokeActor flips an actor to revoked, optionally naming a successor.
func (a *Adapter) RevokeActor(ctx context.Context, id, revokedBy, reason, supersededBy string) (*records.Actor, error) {
	rec, err := a.actors.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	actor, err := records.Decode[records.Actor](rec)
	if err != nil {
		return nil, err
	}
	if actor.Status == records.ActorStatusRevoked {
		return nil, fmt.Errorf("actor %q is already revoked", id)
	}
	actor.Status = records.ActorStatusRevoked
	actor.SupersededBy = supersededBy
	if err := rec.SetPayload(actor); err != nil {
		return nil, err
	}
	if err := a.SignRecord(ctx, rec, revokedBy, "revoker", reason); err != nil {
		return nil, err
	}
	if err := a.actors.Put(ctx, id, rec); err != nil {
		return nil, err
	}
	a.publish(ctx, eventbus.EventActorRevoked, eventbus.ActorRevoked{
		ActorID:      id,
		RevokedBy:    revokedBy,
		Reason:       reason,
		SupersededBy: supersededBy,
	})
	return actor, nil
}

// RotateActorKey replaces an actor's keypair by minting a successor actor
// (same display name and roles, id suffixed -v{N+1}), revoking the old actor
// with supersededBy pointing at the successor, and migrating session state
// and key files. Historical records keep verifying via the old public key.
func (a *Adapter) RotateActorKey(ctx context.Context, id string) (old, successor *records.Actor, err error) {
	oldActor, err := a.GetActor(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if oldActor.Status != records.ActorStatusActive {
		return nil, nil, fmt.Errorf("cannot rotate revoked actor %q", id)
	}
	newID := records.NextActorID(id)

	newActor, err := a.CreateActor(ctx, records.Actor{
		ID:          newID,
		Type:        oldActor.Type,
		DisplayName: oldActor.DisplayName,
		Roles:       oldActor.Roles,
	}, id)
	if err != nil {
		return nil, nil, err
	}
	revoked, err := a.RevokeActor(ctx, id, id, "key rotation", newID)
	if err != nil {
		return nil, nil, err
	}
	if a.session != nil {
		if err := a.session.MigrateActor(ctx, id, newID); err != nil {
			return nil, nil, err
		}
	}
	if err := a.keys.Delete(id); err != nil {
		return nil, nil, err
	}
	return revoked, newActor, nil
}

// ResolveCurrentActorID walks the succession chain from id until it reaches
// an active actor or the chain ends, returning the final id. Traversal is
// bounded by the actor count, so a malformed cycle cannot loop forever.
func (a *Adapter) ResolveCurrentActorID(ctx context.Context, id string) (string, error) {
	ids, err := a.rawActors.List(ctx)
	if err != nil {
		return "", err
	}
	seen := map[string]bool{}
	current := id
	for range len(ids) + 1 {
		if seen[current] {
			return "", fmt.Errorf("succession chain from %q contains a cycle at %q", id, current)
		}
		seen[current] = true
		actor, err := a.GetActor(ctx, current)
		if err != nil {
			return "", err
		}
		if actor.Status == records.ActorStatusActive || actor.SupersededBy == "" {
			return current, nil
		}
		current = actor.SupersededBy
	}
	return "", fmt.Errorf("succession chain from %q is longer than the actor count", id)
}

// GetCurrentActor returns the acting identity: the session's last actor
// resolved through the succession chain, else the first active actor.
func (a *Adapter) GetCurrentActor(ctx context.Context) (*records.Actor, error) {
	if a.session != nil {
		last, err := a.session.LastActor(ctx)
		if err != nil {
			return nil, err
		}
		if last != "" {
			resolved, err := a.ResolveCurrentActorID(ctx, last)
			if err == nil {
				return a.GetActor(ctx, resolved)
			}
			a.logger.Warn("session actor did not resolve, falling back", "actor", last, "error", err)
		}
	}
	actors, err := a.ListActors(ctx)
	if err != nil {
		return nil, err
	}
	for i := range actors {
		if actors[i].Status == records.ActorStatusActive {
			return &actors[i], nil
		}
	}
	return nil, errors.New("no active actor in this project")
}

// RegisterAgent persists an AgentRecord. The matching agent-type actor must
// already exist.
func (a *Adapter) RegisterAgent(ctx context.Context, partial records.Agent, signerID string) (*records.Agent, error) {
	agent, err := records.NewAgent(partial)
	if err != nil {
		return nil, err
	}
	actor, err := a.GetActor(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("agent %q has no actor record: %w", agent.ID, err)
	}
	if actor.Type != records.ActorTypeAgent {
		return nil, fmt.Errorf("actor %q is %s, not agent", agent.ID, actor.Type)
	}
	rec, err := records.NewRecord(records.RecordTypeAgent, agent)
	if err != nil {
		return nil, err
	}
	if err := a.SignRecord(ctx, rec, signerID, "author", ""); err != nil {
		return nil, err
	}
	if err := a.agents.Put(ctx, agent.ID, rec); err != nil {
		return nil, err
	}
	a.publish(ctx, eventbus.EventAgentRegistered, eventbus.AgentRegistered{AgentID: agent.ID})
	return agent, nil
}

// GetAgent returns one agent record.
func (a *Adapter) GetAgent(ctx context.Context, id string) (*records.Agent, error) {
	rec, err := a.agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return records.Decode[records.Agent](rec)
}

func (a *Adapter) publish(ctx context.Context, evtType string, payload any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(ctx, eventbus.NewEvent(evtType, eventSource, payload))
}
