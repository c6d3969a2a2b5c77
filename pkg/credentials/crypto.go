// Package credentials resolves and decrypts the SSH/sudo material an asset
// connection needs, per the precedence order in spec §4.3: an external vault,
// then encrypted fields on the asset row, then environment variables (dev
// fallback only).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// ErrCiphertextTooShort is returned by Decrypt when the input is shorter than
// the GCM nonce, indicating it was never produced by Encrypt.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// aeadFromSecret derives a 256-bit AES-GCM key from the process secret the
// same way the original derives a Fernet key: sha256(secret) as key material.
// Standard library AEAD primitives are used directly rather than a
// third-party crypto package — see DESIGN.md.
func aeadFromSecret(secret string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-256-GCM keyed by secret, returning
// nonce||ciphertext.
func Encrypt(secret, plaintext string) ([]byte, error) {
	gcm, err := aeadFromSecret(secret)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext produced by Encrypt, keyed by the same secret.
func Decrypt(secret string, ciphertext []byte) (string, error) {
	gcm, err := aeadFromSecret(secret)
	if err != nil {
		return "", err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}
