package records

import (
	"encoding/json"
	"fmt"

	"github.com/gitgov-io/gitgov/pkg/crypto"
)

// NewRecord wraps a typed payload into an unsigned record envelope. The
// payload is stored in canonical (RFC 8785) form so the checksum covers the
// exact bytes that later hit the disk. Signing is the identity adapter's job.
func NewRecord(rtype RecordType, payload any) (*Record, error) {
	canonical, err := crypto.CanonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", rtype, err)
	}
	checksum, err := crypto.CanonicalChecksum(json.RawMessage(canonical))
	if err != nil {
		return nil, fmt.Errorf("hashing %s payload: %w", rtype, err)
	}
	return &Record{
		Header: Header{
			Version:         ProtocolVersion,
			Type:            rtype,
			PayloadChecksum: checksum,
			Signatures:      []crypto.Signature{},
		},
		Payload: json.RawMessage(canonical),
	}, nil
}

// Decode unmarshals a record's payload into the given payload type.
func Decode[T any](rec *Record) (*T, error) {
	var v T
	if err := json.Unmarshal(rec.Payload, &v); err != nil {
		return nil, fmt.Errorf("decoding %s payload: %w", rec.Header.Type, err)
	}
	return &v, nil
}

// SetPayload replaces the payload with the canonical form of v and refreshes
// the header checksum. Existing signatures are cleared: a changed payload
// needs re-signing.
func (r *Record) SetPayload(v any) error {
	canonical, err := crypto.CanonicalJSON(v)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", r.Header.Type, err)
	}
	checksum, err := crypto.CanonicalChecksum(json.RawMessage(canonical))
	if err != nil {
		return fmt.Errorf("hashing %s payload: %w", r.Header.Type, err)
	}
	r.Payload = json.RawMessage(canonical)
	r.Header.PayloadChecksum = checksum
	r.Header.Signatures = []crypto.Signature{}
	return nil
}

// ChecksumMatches recomputes the payload checksum and compares it with the
// header value.
func (r *Record) ChecksumMatches() (bool, string, error) {
	actual, err := crypto.CanonicalChecksum(r.Payload)
	if err != nil {
		return false, "", err
	}
	return actual == r.Header.PayloadChecksum, actual, nil
}
