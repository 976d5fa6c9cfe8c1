package vault

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/attachvault/pkg/crypto"
)

// fastParams keeps PBKDF2 at its floor so tests do not burn CPU.
func fastParams() crypto.PBKDF2Parameters {
	return crypto.PBKDF2Parameters{Iterations: 100_000, KeyLength: 32}
}

func newTestCrypto(t *testing.T) *Crypto {
	t.Helper()
	c, err := NewCrypto(WithPBKDF2Parameters(fastParams()))
	require.NoError(t, err)
	return c
}

func TestCryptoRoundTrip(t *testing.T) {
	c := newTestCrypto(t)

	plaintext := []byte("hello attachment")
	ciphertext, nonce, err := c.Encrypt(plaintext, "conv-1")
	require.NoError(t, err)
	require.NotEmpty(t, nonce)

	decrypted, err := c.Decrypt(ciphertext, nonce, "conv-1")
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestCryptoKeysAreConversationScoped(t *testing.T) {
	c := newTestCrypto(t)

	ciphertext, nonce, err := c.Encrypt([]byte("secret"), "conv-a")
	require.NoError(t, err)

	_, err = c.Decrypt(ciphertext, nonce, "conv-b")
	require.ErrorIs(t, err, crypto.ErrAuthentication)
}

func TestCryptoForgetRederives(t *testing.T) {
	c := newTestCrypto(t)

	ciphertext, nonce, err := c.Encrypt([]byte("payload"), "conv-1")
	require.NoError(t, err)

	c.Forget("conv-1")

	// Derivation is deterministic, so the re-derived key still decrypts.
	decrypted, err := c.Decrypt(ciphertext, nonce, "conv-1")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), decrypted)
}

func TestCryptoRejectsEmptyConversationID(t *testing.T) {
	c := newTestCrypto(t)

	_, _, err := c.Encrypt([]byte("x"), "")
	require.Error(t, err)
}

func TestCryptoSaltValidation(t *testing.T) {
	_, err := NewCrypto(WithSalt([]byte("short")))
	require.Error(t, err)

	c, err := NewCrypto(WithSalt(bytes.Repeat([]byte{0x7}, 16)), WithPBKDF2Parameters(fastParams()))
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x7}, 16), c.Salt())
}

func TestCryptoDifferentSaltsDiverge(t *testing.T) {
	c1, err := NewCrypto(WithSalt(bytes.Repeat([]byte{0x1}, 16)), WithPBKDF2Parameters(fastParams()))
	require.NoError(t, err)
	c2, err := NewCrypto(WithSalt(bytes.Repeat([]byte{0x2}, 16)), WithPBKDF2Parameters(fastParams()))
	require.NoError(t, err)

	ciphertext, nonce, err := c1.Encrypt([]byte("x"), "conv-1")
	require.NoError(t, err)

	_, err = c2.Decrypt(ciphertext, nonce, "conv-1")
	require.Error(t, err)
	require.True(t, errors.Is(err, crypto.ErrAuthentication))
}
