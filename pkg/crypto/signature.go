package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"
)

// PlaceholderSignature is the sentinel written when no private key is
// available for the signer (dev and test flows). Verification skips it.
const PlaceholderSignature = "placeholder-signature"

// Signature is one entry of a record header's signature list. The first
// signature on a record belongs to its author; later entries are
// co-approvals. The signed message is the bytes of the hex payloadChecksum,
// so checksum and signature cover identical content.
type Signature struct {
	KeyID     string `json:"keyId"`
	Role      string `json:"role"`
	Notes     string `json:"notes,omitempty"`
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// SignPayload canonicalizes payload, hashes it, and signs the hex checksum
// string with the given base64 private key.
func SignPayload(payload any, privateKey, keyID, role, notes string) (Signature, error) {
	checksum, err := CanonicalChecksum(payload)
	if err != nil {
		return Signature{}, err
	}
	return SignChecksum(checksum, privateKey, keyID, role, notes)
}

// SignChecksum signs an already-computed hex checksum.
func SignChecksum(checksum, privateKey, keyID, role, notes string) (Signature, error) {
	priv, err := DecodePrivateKey(privateKey)
	if err != nil {
		return Signature{}, err
	}
	sig := ed25519.Sign(priv, []byte(checksum))
	return Signature{
		KeyID:     keyID,
		Role:      role,
		Notes:     notes,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Timestamp: time.Now().Unix(),
	}, nil
}

// VerifySignature checks sig against the base64 public key and the payload.
// The payload is canonicalized and hashed exactly as SignPayload does.
func VerifySignature(sig Signature, publicKey string, payload any) (bool, error) {
	checksum, err := CanonicalChecksum(payload)
	if err != nil {
		return false, err
	}
	return VerifyChecksumSignature(sig, publicKey, checksum)
}

// VerifyChecksumSignature checks sig against a precomputed hex checksum.
func VerifyChecksumSignature(sig Signature, publicKey, checksum string) (bool, error) {
	pub, err := DecodePublicKey(publicKey)
	if err != nil {
		return false, err
	}
	raw, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return false, &CryptoError{Op: "decode signature", Reason: err.Error()}
	}
	if len(raw) != ed25519.SignatureSize {
		return false, &CryptoError{Op: "decode signature", Reason: "wrong signature length"}
	}
	return ed25519.Verify(pub, []byte(checksum), raw), nil
}
