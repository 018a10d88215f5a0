package identity

import (
	"os"
	"path/filepath"
	"strings"
)

// Keystore holds per-actor Ed25519 private keys as owner-only files next to
// the actor records ({actorId}.key, 0600). Keys are loaded on demand and
// never cached.
type Keystore struct {
	dir string
}

// NewKeystore opens (creating if needed) the key directory.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Keystore{dir: dir}, nil
}

func (k *Keystore) path(actorID string) string {
	return filepath.Join(k.dir, actorID+".key")
}

// Write persists a base64 private key with owner-only permissions.
func (k *Keystore) Write(actorID, privateKey string) error {
	return os.WriteFile(k.path(actorID), []byte(privateKey+"\n"), 0o600)
}

// Read returns the base64 private key for actorID, or "" when no key file
// exists (signing then falls back to a placeholder signature).
func (k *Keystore) Read(actorID string) (string, error) {
	raw, err := os.ReadFile(k.path(actorID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Delete removes an actor's key file. Missing files are not an error.
func (k *Keystore) Delete(actorID string) error {
	err := os.Remove(k.path(actorID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
