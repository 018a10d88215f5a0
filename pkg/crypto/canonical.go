package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// CanonicalJSON returns the RFC 8785 (JCS) canonical serialization of v:
// object keys sorted lexicographically at every level, UTF-8, no
// insignificant whitespace, numbers in shortest round-trip form.
// The canonical form is both the hashing input and the on-disk form.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs transform failed: %w", err)
	}
	return canonical, nil
}

// CanonicalChecksum returns the hex SHA-256 digest of the canonical
// serialization of payload. This is the value carried in
// Header.payloadChecksum and the exact byte string covered by signatures.
func CanonicalChecksum(payload any) (string, error) {
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
