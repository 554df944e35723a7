package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedCiphertext is returned when a stored value is not in
// keyID:dataKey:ciphertext form.
var ErrMalformedCiphertext = errors.New("malformed encrypted value")

// Cryptor performs envelope encryption of field values. Each value gets a
// fresh data key, which is stored encrypted under the current master key.
type Cryptor struct {
	currentID string
	keys      map[string][]byte
}

// NewCryptor creates a Cryptor that encrypts with current and can still
// decrypt values written under any of the deprecated keys.
func NewCryptor(current Key, deprecated ...Key) (*Cryptor, error) {
	master, err := deriveMasterKey(current)
	if err != nil {
		return nil, err
	}
	c := &Cryptor{
		currentID: current.ID,
		keys:      map[string][]byte{current.ID: master},
	}
	for _, k := range deprecated {
		if k.ID == "" {
			continue
		}
		dk, err := deriveMasterKey(k)
		if err != nil {
			return nil, fmt.Errorf("deprecated key %q: %w", k.ID, err)
		}
		c.keys[k.ID] = dk
	}
	return c, nil
}

// Encrypt returns base64(keyID):base64(encryptedDataKey):base64(ciphertext).
func (c *Cryptor) Encrypt(plaintext string) (string, error) {
	dataKey := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, dataKey); err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}

	encKey, err := seal(c.keys[c.currentID], dataKey)
	if err != nil {
		return "", fmt.Errorf("encrypt data key: %w", err)
	}
	ciphertext, err := seal(dataKey, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("encrypt value: %w", err)
	}

	enc := base64.StdEncoding
	return strings.Join([]string{
		enc.EncodeToString([]byte(c.currentID)),
		enc.EncodeToString(encKey),
		enc.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt reverses Encrypt using whichever known key the value names.
func (c *Cryptor) Decrypt(stored string) (string, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}

	enc := base64.StdEncoding
	keyID, err := enc.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: key id: %v", ErrMalformedCiphertext, err)
	}
	encKey, err := enc.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: data key: %v", ErrMalformedCiphertext, err)
	}
	ciphertext, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrMalformedCiphertext, err)
	}

	master, ok := c.keys[string(keyID)]
	if !ok {
		return "", fmt.Errorf("No encryption key found with ID %q", string(keyID))
	}
	dataKey, err := open(master, encKey)
	if err != nil {
		return "", fmt.Errorf("decrypt data key: %w", err)
	}
	plaintext, err := open(dataKey, ciphertext)
	if err != nil {
		return "", fmt.Errorf("decrypt value: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether s looks like an Encrypt output.
func IsEncrypted(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := base64.StdEncoding.DecodeString(p); err != nil || p == "" {
			return false
		}
	}
	return true
}

func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func open(key, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	n := gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, errors.New("ciphertext too short")
	}
	return gcm.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
