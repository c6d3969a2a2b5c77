package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	secret := "a-very-long-process-secret-value-1234"
	ciphertext, err := Encrypt(secret, "super-secret-ssh-key")
	require.NoError(t, err)

	plaintext, err := Decrypt(secret, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-ssh-key", plaintext)
}

func TestDecrypt_WrongSecretFails(t *testing.T) {
	ciphertext, err := Encrypt("secret-one-aaaaaaaaaaaaaaaaaaaaaaaa", "plaintext")
	require.NoError(t, err)

	_, err = Decrypt("secret-two-bbbbbbbbbbbbbbbbbbbbbbbb", ciphertext)
	assert.Error(t, err)
}

func TestDecrypt_TooShortCiphertext(t *testing.T) {
	_, err := Decrypt("some-secret-cccccccccccccccccccccccc", []byte("x"))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestEncrypt_ProducesDistinctCiphertextEachCall(t *testing.T) {
	secret := "a-very-long-process-secret-value-1234"
	a, err := Encrypt(secret, "same-plaintext")
	require.NoError(t, err)
	b, err := Encrypt(secret, "same-plaintext")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "random nonce must make ciphertexts differ")
}
