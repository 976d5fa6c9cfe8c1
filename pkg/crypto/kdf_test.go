package crypto

import (
	"bytes"
	"testing"
)

func TestDeriveKeyPBKDF2Deterministic(t *testing.T) {
	params := DefaultPBKDF2Params()
	secret := []byte("conversation-7f3a")
	salt := bytes.Repeat([]byte{0xA5}, 16)

	key1, err := DeriveKeyPBKDF2(secret, salt, params)
	if err != nil {
		t.Fatalf("derive key (first): %v", err)
	}
	key2, err := DeriveKeyPBKDF2(secret, salt, params)
	if err != nil {
		t.Fatalf("derive key (second): %v", err)
	}

	if !bytes.Equal(key1, key2) {
		t.Fatalf("expected deterministic key derivation; keys differ")
	}
	if len(key1) != params.KeyLength {
		t.Fatalf("expected key length %d, got %d", params.KeyLength, len(key1))
	}
}

func TestDeriveKeyPBKDF2DifferentSecrets(t *testing.T) {
	params := DefaultPBKDF2Params()
	salt := bytes.Repeat([]byte{0x01}, 16)

	keyA, err := DeriveKeyPBKDF2([]byte("conversation-a"), salt, params)
	if err != nil {
		t.Fatalf("derive key (A): %v", err)
	}
	keyB, err := DeriveKeyPBKDF2([]byte("conversation-b"), salt, params)
	if err != nil {
		t.Fatalf("derive key (B): %v", err)
	}

	if bytes.Equal(keyA, keyB) {
		t.Fatalf("expected different keys for different secrets")
	}
}

func TestDeriveKeyPBKDF2ValidatesInput(t *testing.T) {
	params := DefaultPBKDF2Params()
	salt := bytes.Repeat([]byte{0x01}, 16)

	if _, err := DeriveKeyPBKDF2(nil, salt, params); err == nil {
		t.Fatal("expected error when secret is empty")
	}

	if _, err := DeriveKeyPBKDF2([]byte("secret"), []byte("short"), params); err == nil {
		t.Fatal("expected error when salt is too short")
	}

	weak := PBKDF2Parameters{Iterations: 1000, KeyLength: 32}
	if _, err := DeriveKeyPBKDF2([]byte("secret"), salt, weak); err == nil {
		t.Fatal("expected error for iteration count below the floor")
	}

	odd := PBKDF2Parameters{Iterations: 100_000, KeyLength: 20}
	if _, err := DeriveKeyPBKDF2([]byte("secret"), salt, odd); err == nil {
		t.Fatal("expected error for unsupported key length")
	}
}
