package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// masterKeyInfo binds derived keys to their use.
const masterKeyInfo = "frigg credential encryption"

// Key is a configured master key. Secret is the raw AES_KEY value.
type Key struct {
	ID     string
	Secret string
}

// deriveMasterKey stretches the configured secret into a 256-bit AES key.
// The key id is the salt, so rotating the id alone changes the key.
func deriveMasterKey(k Key) ([]byte, error) {
	if k.ID == "" || k.Secret == "" {
		return nil, fmt.Errorf("encryption key requires both an id and a secret")
	}
	out := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(k.Secret), []byte(k.ID), []byte(masterKeyInfo))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	return out, nil
}
