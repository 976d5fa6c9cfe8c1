package attachments

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/attachvault/internal/database/testutil"
	"github.com/charlesng35/attachvault/internal/vault"
	"github.com/charlesng35/attachvault/pkg/crypto"
)

// fakeClock is a mutable time source shared between a test and the cache.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testVaultCrypto(t *testing.T) *vault.Crypto {
	t.Helper()
	vc, err := vault.NewCrypto(vault.WithPBKDF2Parameters(crypto.PBKDF2Parameters{
		Iterations: 100_000,
		KeyLength:  32,
	}))
	require.NoError(t, err)
	return vc
}

func newTestCache(t *testing.T, cfg Config, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	clock := newFakeClock()

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	cache, err := New(db, testVaultCrypto(t), cfg, opts...)
	require.NoError(t, err)

	return cache, clock
}

func testConfig() Config {
	return Config{
		MaxCacheBytes:  10_000,
		MaxEntryAge:    24 * time.Hour,
		MaxAccessCount: 100,
		RespectPrivacy: true,
		SignedURLTTL:   15 * time.Minute,
		StorageTimeout: 5 * time.Second,
	}
}

func pdfMeta(id, conversationID string, size int64) Metadata {
	return Metadata{
		AttachmentID:   id,
		FileName:       "document.pdf",
		MimeType:       "application/pdf",
		SizeBytes:      size,
		ConversationID: conversationID,
		MessageID:      "msg-1",
		UploadedBy:     "user-1",
		UploadedAt:     time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC),
	}
}

func privateMeta(id, conversationID string, size int64) Metadata {
	meta := pdfMeta(id, conversationID, size)
	meta.IsPrivate = true
	meta.EncryptionKeyID = conversationID
	return meta
}
