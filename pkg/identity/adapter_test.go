package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitgov-io/gitgov/pkg/config"
	"github.com/gitgov-io/gitgov/pkg/crypto"
	"github.com/gitgov-io/gitgov/pkg/eventbus"
	"github.com/gitgov-io/gitgov/pkg/records"
)

type fixture struct {
	adapter *Adapter
	bus     *eventbus.Bus
	session *config.SessionManager
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	bus := eventbus.New(nil)
	session := config.NewSessionManager(filepath.Join(dir, ".session.json"))
	adapter, err := NewAdapter(Options{
		ActorsDir: filepath.Join(dir, "actors"),
		AgentsDir: filepath.Join(dir, "agents"),
		Session:   session,
		Bus:       bus,
	})
	require.NoError(t, err)
	return &fixture{adapter: adapter, bus: bus, session: session, dir: dir}
}

func TestCreateActor_Bootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []eventbus.ActorCreated
	f.bus.Subscribe(eventbus.EventActorCreated, func(ctx context.Context, evt eventbus.Event) error {
		created = append(created, evt.Payload.(eventbus.ActorCreated))
		return nil
	})

	actor, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice", Roles: []string{"admin", "author"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "human:alice", actor.ID)
	assert.Equal(t, records.ActorStatusActive, actor.Status)

	require.Len(t, created, 1)
	assert.True(t, created[0].IsBootstrap)

	// Key file is owner-only.
	info, err := os.Stat(filepath.Join(f.dir, "actors", actor.ID+".key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The self-signed record verifies on read.
	got, err := f.adapter.GetActor(ctx, actor.ID)
	require.NoError(t, err)
	assert.Equal(t, actor.PublicKey, got.PublicKey)
}

func TestCreateActor_SecondIsNotBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)

	var last eventbus.ActorCreated
	f.bus.Subscribe(eventbus.EventActorCreated, func(ctx context.Context, evt eventbus.Event) error {
		last = evt.Payload.(eventbus.ActorCreated)
		return nil
	})
	bob, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Bob"}, "human:alice")
	require.NoError(t, err)
	assert.Equal(t, "human:bob", bob.ID)
	assert.False(t, last.IsBootstrap)

	// Bob's record was signed by Alice.
	got, err := f.adapter.GetActor(ctx, bob.ID)
	require.NoError(t, err)
	_ = got
}

func TestSignRecord_PlaceholderReplacedRealAppended(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)
	bob, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Bob"}, alice.ID)
	require.NoError(t, err)

	task, err := records.NewTask(records.Task{Title: "multi sign", Description: "d"}, testNow())
	require.NoError(t, err)
	rec, err := records.NewRecord(records.RecordTypeTask, task)
	require.NoError(t, err)

	// A placeholder from an actor with no key on disk.
	require.NoError(t, f.adapter.keys.Delete(bob.ID))
	require.NoError(t, f.adapter.SignRecord(ctx, rec, bob.ID, "author", ""))
	require.Len(t, rec.Header.Signatures, 1)
	assert.Equal(t, crypto.PlaceholderSignature, rec.Header.Signatures[0].Signature)

	// A real signature replaces the placeholder.
	require.NoError(t, f.adapter.SignRecord(ctx, rec, alice.ID, "author", ""))
	require.Len(t, rec.Header.Signatures, 1)
	assert.Equal(t, alice.ID, rec.Header.Signatures[0].KeyID)

	// A second real signature is appended (co-approval).
	require.NoError(t, f.adapter.keys.Write(bob.ID, mustKey(t)))
	require.NoError(t, f.adapter.SignRecord(ctx, rec, bob.ID, "approver:quality", "lgtm"))
	require.Len(t, rec.Header.Signatures, 2)
	assert.Equal(t, alice.ID, rec.Header.Signatures[0].KeyID)
	assert.Equal(t, bob.ID, rec.Header.Signatures[1].KeyID)
}

func TestRevokeActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)

	var revoked []eventbus.ActorRevoked
	f.bus.Subscribe(eventbus.EventActorRevoked, func(ctx context.Context, evt eventbus.Event) error {
		revoked = append(revoked, evt.Payload.(eventbus.ActorRevoked))
		return nil
	})

	got, err := f.adapter.RevokeActor(ctx, alice.ID, alice.ID, "compromised", "")
	require.NoError(t, err)
	assert.Equal(t, records.ActorStatusRevoked, got.Status)
	require.Len(t, revoked, 1)

	_, err = f.adapter.RevokeActor(ctx, alice.ID, alice.ID, "again", "")
	require.Error(t, err)
}

func TestRotateActorKey_SuccessionAndSessionMigration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)
	require.NoError(t, f.session.SetLastActor(ctx, alice.ID))
	require.NoError(t, f.session.SetActiveTask(ctx, alice.ID, "1756100000-task-x"))

	old, successor, err := f.adapter.RotateActorKey(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, records.ActorStatusRevoked, old.Status)
	assert.Equal(t, "human:alice-v2", successor.ID)
	assert.Equal(t, successor.ID, old.SupersededBy)

	resolved, err := f.adapter.ResolveCurrentActorID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, successor.ID, resolved)

	last, err := f.session.LastActor(ctx)
	require.NoError(t, err)
	assert.Equal(t, successor.ID, last)

	st, err := f.session.GetActorState(ctx, successor.ID)
	require.NoError(t, err)
	assert.Equal(t, "1756100000-task-x", st.ActiveTaskID)

	// The old private key is gone; the old record still verifies.
	key, err := f.adapter.keys.Read(alice.ID)
	require.NoError(t, err)
	assert.Empty(t, key)
	_, err = f.adapter.GetActor(ctx, alice.ID)
	require.NoError(t, err)
}

func TestRotateActorKey_TwiceIncrementsVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)
	_, v2, err := f.adapter.RotateActorKey(ctx, alice.ID)
	require.NoError(t, err)
	_, v3, err := f.adapter.RotateActorKey(ctx, v2.ID)
	require.NoError(t, err)
	assert.Equal(t, "human:alice-v3", v3.ID)

	resolved, err := f.adapter.ResolveCurrentActorID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, v3.ID, resolved)
}

func TestGetCurrentActor_FallsBackToFirstActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.adapter.GetCurrentActor(ctx)
	require.Error(t, err, "no actors yet")

	alice, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)

	got, err := f.adapter.GetCurrentActor(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
}

func TestRegisterAgent_RequiresAgentActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.adapter.CreateActor(ctx, records.Actor{DisplayName: "Alice"}, "")
	require.NoError(t, err)

	_, err = f.adapter.RegisterAgent(ctx, records.Agent{ID: "agent:builder"}, alice.ID)
	require.Error(t, err, "actor record missing")

	_, err = f.adapter.CreateActor(ctx, records.Actor{
		ID: "agent:builder", Type: records.ActorTypeAgent, DisplayName: "Builder",
	}, alice.ID)
	require.NoError(t, err)

	agent, err := f.adapter.RegisterAgent(ctx, records.Agent{ID: "agent:builder"}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", agent.Status)

	got, err := f.adapter.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.ID)
}

func testNow() time.Time { return time.Unix(1756100000, 0) }

func mustKey(t *testing.T) string {
	t.Helper()
	_, priv, err := crypto.GenerateKeys()
	require.NoError(t, err)
	return priv
}
