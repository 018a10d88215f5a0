package store

import "fmt"

// RecordNotFoundError reports a lookup for an id with no record on disk.
type RecordNotFoundError struct {
	Kind string
	ID   string
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("RecordNotFoundError: no %s record %q", e.Kind, e.ID)
}

// ChecksumMismatchError reports a payload whose canonical hash no longer
// matches the header checksum, i.e. on-disk corruption or tampering.
type ChecksumMismatchError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("ChecksumMismatchError: record %q: header says %s, payload hashes to %s",
		e.ID, e.Expected, e.Actual)
}

// SignatureError reports a record whose signature set failed verification.
type SignatureError struct {
	ID     string
	KeyID  string
	Reason string
}

func (e *SignatureError) Error() string {
	if e.KeyID == "" {
		return fmt.Sprintf("SignatureError: record %q: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("SignatureError: record %q, key %q: %s", e.ID, e.KeyID, e.Reason)
}
