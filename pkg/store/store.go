// Package store persists one record kind as one JSON file per id, writing
// atomically and re-validating checksum and signatures on every read. It is
// the sole filesystem I/O boundary for records.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitgov-io/gitgov/pkg/crypto"
	"github.com/gitgov-io/gitgov/pkg/records"
)

// PublicKeyResolver returns the base64 public key for a signature keyId.
// The identity adapter provides an implementation that resolves the
// succession chain so records signed before a key rotation still verify.
type PublicKeyResolver func(ctx context.Context, keyID string) (string, error)

// Store is one content-addressed record store. A single writer per working
// copy is assumed; Put is crash-safe via temp-file + rename, so readers see
// either the pre-image or the post-image, never a torn file.
type Store struct {
	dir      string
	rtype    records.RecordType
	resolver PublicKeyResolver
	logger   *slog.Logger
}

// New opens (creating if needed) the store directory for one record kind.
// resolver may be nil, in which case signature verification on read is
// limited to the placeholder check.
func New(dir string, rtype records.RecordType, resolver PublicKeyResolver, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir %s: %w", dir, err)
	}
	return &Store{dir: dir, rtype: rtype, resolver: resolver, logger: logger}, nil
}

// Dir returns the store's backing directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}

// Put persists a record atomically. The header checksum is recomputed and
// must match the payload; the canonical serialization of the whole envelope
// is the exact byte sequence written to disk.
func (s *Store) Put(ctx context.Context, id string, rec *records.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return fmt.Errorf("invalid record id %q", id)
	}
	ok, actual, err := rec.ChecksumMatches()
	if err != nil {
		return fmt.Errorf("hashing payload for %s: %w", id, err)
	}
	if !ok {
		return &ChecksumMismatchError{ID: id, Expected: rec.Header.PayloadChecksum, Actual: actual}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding record %s: %w", id, err)
	}
	canonical, err := crypto.CanonicalJSON(json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("canonicalizing record %s: %w", id, err)
	}

	path := s.path(id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, canonical, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return nil
}

// Get reads, parses, and fully re-validates a record: checksum against
// payload, at least one signature, and every non-placeholder signature
// against the resolved public key of its keyId.
func (s *Store) Get(ctx context.Context, id string) (*records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, &RecordNotFoundError{Kind: string(s.rtype), ID: id}
	}
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &RecordNotFoundError{Kind: string(s.rtype), ID: id}
		}
		return nil, err
	}
	var rec records.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parsing record %s: %w", id, err)
	}

	ok, actual, err := rec.ChecksumMatches()
	if err != nil {
		return nil, fmt.Errorf("hashing payload of %s: %w", id, err)
	}
	if !ok {
		return nil, &ChecksumMismatchError{ID: id, Expected: rec.Header.PayloadChecksum, Actual: actual}
	}
	if len(rec.Header.Signatures) == 0 {
		return nil, &SignatureError{ID: id, Reason: "record carries no signatures"}
	}
	for _, sig := range rec.Header.Signatures {
		if sig.Signature == crypto.PlaceholderSignature {
			continue
		}
		if s.resolver == nil {
			continue
		}
		pub, err := s.resolver(ctx, sig.KeyID)
		if err != nil {
			return nil, &SignatureError{ID: id, KeyID: sig.KeyID, Reason: "cannot resolve signer: " + err.Error()}
		}
		verified, err := crypto.VerifyChecksumSignature(sig, pub, rec.Header.PayloadChecksum)
		if err != nil {
			return nil, &SignatureError{ID: id, KeyID: sig.KeyID, Reason: err.Error()}
		}
		if !verified {
			return nil, &SignatureError{ID: id, KeyID: sig.KeyID, Reason: "signature does not verify"}
		}
	}
	return &rec, nil
}

// List enumerates the ids present in the store, in unspecified order.
// Non-record files (keys, temp files) are ignored.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

// Exists reports whether a record file is present for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !validID(id) {
		return false, nil
	}
	_, err := os.Stat(s.path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Delete removes a record file. Domain rules about which kinds may be
// deleted (draft tasks only) live in the adapters, not here.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validID(id) {
		return &RecordNotFoundError{Kind: string(s.rtype), ID: id}
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return &RecordNotFoundError{Kind: string(s.rtype), ID: id}
		}
		return err
	}
	return nil
}
