package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Parameters controls the cost factors for PBKDF2-HMAC-SHA256 key derivation.
type PBKDF2Parameters struct {
	// Iterations is the PBKDF2 round count.
	Iterations int
	// KeyLength is the desired length of the derived key in bytes.
	KeyLength int
}

// DefaultPBKDF2Params returns the parameters used for conversation key derivation.
// Every subsystem that derives keys from conversation identifiers must use the
// same parameters, or ciphertext written by one cannot be read by another.
func DefaultPBKDF2Params() PBKDF2Parameters {
	return PBKDF2Parameters{
		Iterations: 100_000,
		KeyLength:  32,
	}
}

// Validate ensures the parameters are suitable for key derivation.
func (p PBKDF2Parameters) Validate() error {
	if p.Iterations < 100_000 {
		return fmt.Errorf("pbkdf2: iteration count must be at least 100000 (got %d)", p.Iterations)
	}
	switch p.KeyLength {
	case 16, 24, 32:
	default:
		return fmt.Errorf("pbkdf2: key length must be 16, 24, or 32 bytes (got %d)", p.KeyLength)
	}
	return nil
}

// DeriveKeyPBKDF2 derives a symmetric key using PBKDF2-HMAC-SHA256.
func DeriveKeyPBKDF2(secret, salt []byte, params PBKDF2Parameters) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("pbkdf2: secret is required")
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("pbkdf2: salt must be at least 16 bytes (got %d)", len(salt))
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return pbkdf2.Key(secret, salt, params.Iterations, params.KeyLength, sha256.New), nil
}
