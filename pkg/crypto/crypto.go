// Package crypto provides the Ed25519 primitives and canonical payload
// hashing used by every signed GitGov record.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// CryptoError reports a malformed key, signature, or a failed primitive.
type CryptoError struct {
	Op     string
	Reason string
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto: %s: %s", e.Op, e.Reason)
}

// GenerateKeys creates a fresh Ed25519 keypair.
// Both keys are returned base64-encoded (raw key bytes, standard encoding),
// which is the representation stored in ActorRecord.publicKey and in the
// project keystore.
func GenerateKeys() (publicKey, privateKey string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("key generation failed: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub),
		base64.StdEncoding.EncodeToString(priv), nil
}

// DecodePublicKey decodes a base64 Ed25519 public key.
func DecodePublicKey(publicKey string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKey)
	if err != nil {
		return nil, &CryptoError{Op: "decode public key", Reason: err.Error()}
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, &CryptoError{Op: "decode public key", Reason: fmt.Sprintf("expected %d bytes, got %d", ed25519.PublicKeySize, len(raw))}
	}
	return ed25519.PublicKey(raw), nil
}

// DecodePrivateKey decodes a base64 Ed25519 private key.
func DecodePrivateKey(privateKey string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return nil, &CryptoError{Op: "decode private key", Reason: err.Error()}
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, &CryptoError{Op: "decode private key", Reason: fmt.Sprintf("expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))}
	}
	return ed25519.PrivateKey(raw), nil
}
