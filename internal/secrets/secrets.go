// Package secrets protects sensitive settings values at rest.
//
// Values are encrypted with Fernet tokens; the key is derived from the
// configured secret key via SHA-256, so the same secret always yields the
// same encryption key across restarts.
package secrets

import (
	"crypto/sha256"
	"fmt"

	"github.com/fernet/fernet-go"
)

// Box encrypts and decrypts opaque string values.
type Box struct {
	key *fernet.Key
}

// NewBox derives an encryption key from the given secret and returns a Box.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, fmt.Errorf("secret key must not be empty")
	}

	var key fernet.Key
	sum := sha256.Sum256([]byte(secret))
	copy(key[:], sum[:])

	return &Box{key: &key}, nil
}

// Encrypt encrypts the given plaintext. Empty input is returned unchanged so
// cleared settings stay empty rather than becoming an encrypted empty token.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	token, err := fernet.EncryptAndSign([]byte(plaintext), b.key)
	if err != nil {
		return "", fmt.Errorf("encrypting value: %w", err)
	}
	return string(token), nil
}

// Decrypt decrypts a value produced by Encrypt. Tokens never expire; a value
// that does not verify yields an error, which callers treat as the value
// being absent.
func (b *Box) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	plaintext := fernet.VerifyAndDecrypt([]byte(ciphertext), 0, []*fernet.Key{b.key})
	if plaintext == nil {
		return "", fmt.Errorf("decrypting value: token did not verify")
	}
	return string(plaintext), nil
}
