package vault

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"github.com/charlesng35/attachvault/pkg/crypto"
)

const minSaltLength = 16

// defaultSeed feeds the fallback application salt when none is configured.
const defaultSeed = "attachvault/conversation-keys/v1"

// Crypto encrypts payloads under keys derived from conversation identifiers.
// Nothing about a derived key is ever persisted: re-deriving from the same
// conversation id and the application salt is always sufficient, which is what
// lets a logout cryptographically shred cached content without touching disk.
//
// Derived keys are memoized in memory because PBKDF2 at the configured
// iteration count is far too slow for the read path. Forget drops the
// memoized key for a conversation.
type Crypto struct {
	salt   []byte
	params crypto.PBKDF2Parameters

	mu   sync.RWMutex
	keys map[string][]byte
}

type cryptoConfig struct {
	params crypto.PBKDF2Parameters
	salt   []byte
}

// Option configures the conversation crypto engine.
type Option func(*cryptoConfig)

// WithSalt overrides the application-wide KDF salt.
func WithSalt(salt []byte) Option {
	cp := make([]byte, len(salt))
	copy(cp, salt)
	return func(cfg *cryptoConfig) {
		cfg.salt = cp
	}
}

// WithPBKDF2Parameters overrides the KDF cost parameters.
func WithPBKDF2Parameters(params crypto.PBKDF2Parameters) Option {
	return func(cfg *cryptoConfig) {
		cfg.params = params
	}
}

// NewCrypto builds a conversation crypto engine. The message store and the
// attachment cache must be constructed with the same salt and parameters or
// they cannot read each other's conversations.
func NewCrypto(opts ...Option) (*Crypto, error) {
	cfg := cryptoConfig{
		params: crypto.DefaultPBKDF2Params(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.salt) == 0 {
		cfg.salt = defaultSalt()
	} else if len(cfg.salt) < minSaltLength {
		return nil, fmt.Errorf("vault crypto: salt must be at least %d bytes (got %d)", minSaltLength, len(cfg.salt))
	}

	if err := cfg.params.Validate(); err != nil {
		return nil, fmt.Errorf("vault crypto: %w", err)
	}

	return &Crypto{
		salt:   append([]byte(nil), cfg.salt...),
		params: cfg.params,
		keys:   make(map[string][]byte),
	}, nil
}

// Encrypt encrypts plaintext under the key derived for the conversation,
// returning ciphertext and the fresh nonce used for this call.
func (c *Crypto) Encrypt(plaintext []byte, conversationID string) (ciphertext, nonce []byte, err error) {
	key, err := c.keyFor(conversationID)
	if err != nil {
		return nil, nil, err
	}
	return crypto.Encrypt(plaintext, key)
}

// Decrypt reverses Encrypt for the same conversation id. Authentication
// failures surface as crypto.ErrAuthentication.
func (c *Crypto) Decrypt(ciphertext, nonce []byte, conversationID string) ([]byte, error) {
	key, err := c.keyFor(conversationID)
	if err != nil {
		return nil, err
	}
	return crypto.Decrypt(ciphertext, nonce, key)
}

// Forget drops the memoized key for a conversation. Subsequent calls re-derive.
func (c *Crypto) Forget(conversationID string) {
	c.mu.Lock()
	delete(c.keys, conversationID)
	c.mu.Unlock()
}

// Parameters returns the KDF parameters in use.
func (c *Crypto) Parameters() crypto.PBKDF2Parameters {
	return c.params
}

// Salt returns a copy of the application salt.
func (c *Crypto) Salt() []byte {
	return append([]byte(nil), c.salt...)
}

func (c *Crypto) keyFor(conversationID string) ([]byte, error) {
	if conversationID == "" {
		return nil, errors.New("vault crypto: conversation id is required")
	}

	c.mu.RLock()
	key, ok := c.keys[conversationID]
	c.mu.RUnlock()
	if ok {
		return key, nil
	}

	derived, err := crypto.DeriveKeyPBKDF2([]byte(conversationID), c.salt, c.params)
	if err != nil {
		return nil, fmt.Errorf("vault crypto: derive key: %w", err)
	}

	c.mu.Lock()
	c.keys[conversationID] = derived
	c.mu.Unlock()

	return derived, nil
}

func defaultSalt() []byte {
	sum := sha256.Sum256([]byte(defaultSeed))
	return sum[:minSaltLength]
}
