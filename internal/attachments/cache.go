package attachments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/attachvault/internal/models"
	"github.com/charlesng35/attachvault/internal/vault"
	apperrors "github.com/charlesng35/attachvault/pkg/errors"
	"github.com/charlesng35/attachvault/pkg/logger"
	"github.com/charlesng35/attachvault/pkg/metrics"
)

// Config is the cache policy, set at construction and replaceable only by
// building a new cache.
type Config struct {
	// MaxCacheBytes caps the aggregate stored payload size.
	MaxCacheBytes int64
	// MaxEntryAge is how long an entry may live after insertion.
	MaxEntryAge time.Duration
	// MaxAccessCount is the per-entry read budget. Zero disables the ceiling.
	MaxAccessCount int
	// RespectPrivacy enables the private-without-key admission rule.
	RespectPrivacy bool
	// SignedURLTTL is the default signed URL lifetime.
	SignedURLTTL time.Duration
	// StorageTimeout bounds every storage call issued by the façade.
	StorageTimeout time.Duration
}

// DefaultConfig returns the standard cache policy. Note that a zero
// MaxAccessCount in a hand-built Config disables the access ceiling rather
// than falling back to the default, and RespectPrivacy must be set
// explicitly; the configuration layer supplies both defaults.
func DefaultConfig() Config {
	return Config{
		MaxCacheBytes:  100 << 20, // 100 MiB
		MaxEntryAge:    7 * 24 * time.Hour,
		MaxAccessCount: 100,
		RespectPrivacy: true,
		SignedURLTTL:   15 * time.Minute,
		StorageTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxCacheBytes <= 0 {
		c.MaxCacheBytes = def.MaxCacheBytes
	}
	if c.MaxEntryAge <= 0 {
		c.MaxEntryAge = def.MaxEntryAge
	}
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = def.SignedURLTTL
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = def.StorageTimeout
	}
	return c
}

// Cache is the attachment cache façade. All public methods are safe for
// concurrent use: operations on one attachment id are serialized, sweeps and
// capacity-changing writes exclude everything else, and reads of unrelated
// ids proceed in parallel.
type Cache struct {
	store  *Store
	crypto *vault.Crypto
	signer *TokenSigner
	policy Policy
	evict  *evictor
	cfg    Config
	log    *zap.Logger

	guard sync.RWMutex
	ids   *keyedMutex
	now   func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Option customises the cache.
type Option func(*Cache)

// WithClock overrides the time source, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSignerSecret keys the token digest with a server-held secret. Leaving
// it unset keeps tokens reproducible from public inputs alone.
func WithSignerSecret(secret []byte) Option {
	return func(c *Cache) {
		c.signer = NewTokenSigner(secret)
	}
}

// New builds the cache façade over an opened database handle and a
// conversation crypto engine.
func New(db *gorm.DB, conversationCrypto *vault.Crypto, cfg Config, opts ...Option) (*Cache, error) {
	if conversationCrypto == nil {
		return nil, errors.New("attachments: conversation crypto is required")
	}

	store, err := NewStore(db)
	if err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()

	c := &Cache{
		store:  store,
		crypto: conversationCrypto,
		signer: NewTokenSigner(nil),
		policy: Policy{MaxCacheBytes: cfg.MaxCacheBytes, RespectPrivacy: cfg.RespectPrivacy},
		cfg:    cfg,
		log:    logger.WithModule("attachments"),
		ids:    newKeyedMutex(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.evict = &evictor{
		store:     store,
		maxBytes:  cfg.MaxCacheBytes,
		maxAge:    cfg.MaxEntryAge,
		maxAccess: cfg.MaxAccessCount,
		log:       c.log,
		now:       func() time.Time { return c.now() },
	}

	return c, nil
}

// Cache admits, encrypts, and persists an attachment. Re-caching an id
// replaces the prior entry; the byte counter moves by the size delta. On any
// failure the attachment stays absent: no partial entries, no counter drift.
func (c *Cache) Cache(ctx context.Context, attachmentID string, data []byte, meta Metadata, urlInfo *SignedURLInfo) error {
	if meta.AttachmentID == "" {
		meta.AttachmentID = attachmentID
	}
	if attachmentID == "" || meta.AttachmentID != attachmentID {
		return apperrors.NewBadRequest("attachment id mismatch")
	}
	if err := meta.Validate(); err != nil {
		return apperrors.NewBadRequest(err.Error())
	}

	if admission := c.policy.Evaluate(meta); !admission.Admitted {
		metrics.CacheAdmissions.WithLabelValues("rejected").Inc()
		c.log.Info("admission rejected",
			zap.String("attachment_id", attachmentID),
			zap.String("reason", admission.Reason),
		)
		return apperrors.ErrPolicyRejected.WithInternal(errors.New(admission.Reason))
	}

	// Capacity eviction can touch unrelated ids, so writes take the guard
	// exclusively.
	c.guard.Lock()
	defer c.guard.Unlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	payload := data
	var nonce []byte
	if meta.IsPrivate {
		var err error
		payload, nonce, err = c.crypto.Encrypt(data, meta.ConversationID)
		if err != nil {
			metrics.CacheAdmissions.WithLabelValues("failed").Inc()
			return apperrors.ErrCrypto.WithInternal(err)
		}
	}

	var replacedBytes int64
	if prior, err := c.store.Get(opCtx, attachmentID); err != nil {
		metrics.CacheAdmissions.WithLabelValues("failed").Inc()
		return c.storageError(err)
	} else if prior != nil {
		replacedBytes = prior.StoredBytes
	}

	if err := c.evict.ensureCapacity(opCtx, int64(len(payload)), replacedBytes, attachmentID); err != nil {
		metrics.CacheAdmissions.WithLabelValues("failed").Inc()
		if errors.Is(err, apperrors.ErrCacheFull) {
			return err
		}
		return c.storageError(err)
	}

	now := c.now()
	entry := &models.AttachmentCacheEntry{
		AttachmentID:    attachmentID,
		Payload:         payload,
		Nonce:           nonce,
		StoredBytes:     int64(len(payload)),
		FileName:        meta.FileName,
		MimeType:        meta.MimeType,
		SizeBytes:       meta.SizeBytes,
		ConversationID:  meta.ConversationID,
		MessageID:       meta.MessageID,
		UploadedBy:      meta.UploadedBy,
		UploadedAt:      meta.UploadedAt,
		ExpiresAt:       meta.ExpiresAt,
		IsPrivate:       meta.IsPrivate,
		EncryptionKeyID: meta.EncryptionKeyID,
		CachedAt:        now,
		LastAccessedAt:  now,
		AccessCount:     0,
	}
	applySignedURL(entry, urlInfo)

	if err := c.store.Put(opCtx, entry); err != nil {
		metrics.CacheAdmissions.WithLabelValues("failed").Inc()
		return c.storageError(err)
	}

	metrics.CacheAdmissions.WithLabelValues("stored").Inc()
	c.log.Debug("cached attachment",
		zap.String("attachment_id", attachmentID),
		zap.String("conversation_id", meta.ConversationID),
		zap.Int64("stored_bytes", entry.StoredBytes),
		zap.Bool("encrypted", meta.IsPrivate),
	)
	return nil
}

// Get retrieves a cached attachment. Missing, expired, and access-exhausted
// entries all collapse to the absent result (nil, nil); only decryption and
// storage failures are errors. Expired and exhausted entries are deleted as a
// side effect so two successive reads cannot disagree.
func (c *Cache) Get(ctx context.Context, attachmentID string) (*Item, error) {
	return c.get(ctx, attachmentID, false)
}

// Redeem is Get for the signed URL download path: it additionally spends one
// unit of the grant's access budget. Callers check the presented token with
// ValidateSignedURL before redeeming. Management reads go through Get and
// leave the grant budget untouched.
func (c *Cache) Redeem(ctx context.Context, attachmentID string) (*Item, error) {
	return c.get(ctx, attachmentID, true)
}

func (c *Cache) get(ctx context.Context, attachmentID string, spendGrant bool) (*Item, error) {
	c.guard.RLock()
	defer c.guard.RUnlock()
	unlock := c.ids.lock(attachmentID)
	defer unlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	entry, err := c.store.Get(opCtx, attachmentID)
	if err != nil {
		return nil, c.storageError(err)
	}
	if entry == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}

	now := c.now()
	if reason, dead := c.evict.deadReason(entry, now); dead {
		if err := c.evict.removeDead(opCtx, attachmentID, reason); err != nil {
			return nil, c.storageError(err)
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}

	data := entry.Payload
	if entry.IsPrivate {
		data, err = c.crypto.Decrypt(entry.Payload, entry.Nonce, entry.ConversationID)
		if err != nil {
			// Authentication failure means tampering or the wrong key; it is
			// never swallowed into the absent result.
			return nil, apperrors.ErrCrypto.WithInternal(err)
		}
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	if spendGrant && entry.SignedURL != "" {
		entry.SignedURLAccessCount++
	}

	if c.cfg.MaxAccessCount > 0 && entry.AccessCount >= c.cfg.MaxAccessCount {
		// Budget spent with this read: serve it, then delete the entry.
		if err := c.evict.removeDead(opCtx, attachmentID, evictAccessBudget); err != nil {
			return nil, c.storageError(err)
		}
	} else if err := c.store.UpdateAccess(opCtx, attachmentID, entry.AccessCount, entry.LastAccessedAt, entry.SignedURLAccessCount); err != nil {
		return nil, c.storageError(err)
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return &Item{
		Data:      data,
		Metadata:  metadataFromModel(entry),
		SignedURL: signedURLFromModel(entry),
	}, nil
}

// Remove deletes an entry explicitly. Reports whether one existed.
func (c *Cache) Remove(ctx context.Context, attachmentID string) (bool, error) {
	c.guard.RLock()
	defer c.guard.RUnlock()
	unlock := c.ids.lock(attachmentID)
	defer unlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	existed, err := c.store.Delete(opCtx, attachmentID)
	if err != nil {
		return false, c.storageError(err)
	}
	if existed {
		metrics.CacheEvictions.WithLabelValues("explicit").Inc()
		c.log.Debug("removed attachment", zap.String("attachment_id", attachmentID))
	}
	return existed, nil
}

// ClearConversation removes every entry of a conversation and forgets the
// memoized conversation key. Safe to re-run; a second call removes nothing.
func (c *Cache) ClearConversation(ctx context.Context, conversationID string) (int64, error) {
	c.guard.Lock()
	defer c.guard.Unlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	removed, err := c.store.ClearConversation(opCtx, conversationID)
	if err != nil {
		return 0, c.storageError(err)
	}

	c.crypto.Forget(conversationID)

	if removed > 0 {
		metrics.CacheEvictions.WithLabelValues("explicit").Add(float64(removed))
		c.log.Info("cleared conversation",
			zap.String("conversation_id", conversationID),
			zap.Int64("removed", removed),
		)
	}
	return removed, nil
}

// ListConversation returns metadata for a conversation's live entries,
// ordered by attachment id. Dead entries are skipped, not deleted; the next
// Get or Cleanup collects them.
func (c *Cache) ListConversation(ctx context.Context, conversationID string) ([]Metadata, error) {
	c.guard.RLock()
	defer c.guard.RUnlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	now := c.now()
	var out []Metadata
	for entry, err := range c.store.FindByConversation(opCtx, conversationID) {
		if err != nil {
			return nil, c.storageError(err)
		}
		if _, dead := c.evict.deadReason(entry, now); dead {
			continue
		}
		out = append(out, metadataFromModel(entry))
	}
	return out, nil
}

// Cleanup runs the full expiry/age/access sweep and reports how many entries
// were removed. Idempotent: a second run with no intervening writes removes
// zero.
func (c *Cache) Cleanup(ctx context.Context) (int, error) {
	c.guard.Lock()
	defer c.guard.Unlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	removed, err := c.evict.sweep(opCtx)
	if err != nil {
		return removed, c.storageError(err)
	}
	return removed, nil
}

// Stats derives occupancy statistics from one consistent store snapshot.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.guard.RLock()
	defer c.guard.RUnlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	count, bytes, oldest, newest, err := c.store.Snapshot(opCtx)
	if err != nil {
		return Stats{}, c.storageError(err)
	}

	stats := Stats{
		Count:       count,
		Bytes:       bytes,
		MaxBytes:    c.cfg.MaxCacheBytes,
		OldestEntry: oldest,
		NewestEntry: newest,
	}
	if c.cfg.MaxCacheBytes > 0 {
		stats.Utilization = float64(bytes) / float64(c.cfg.MaxCacheBytes)
	}
	return stats, nil
}

// IssueSignedURL grants a time- and count-limited capability over a cached
// attachment. Returns (nil, nil) when the attachment is not currently cached.
// A ttl of zero falls back to the configured default; a maxAccess of zero
// issues a grant with no access limit.
func (c *Cache) IssueSignedURL(ctx context.Context, attachmentID string, ttl time.Duration, maxAccess int) (*SignedURLInfo, error) {
	c.guard.RLock()
	defer c.guard.RUnlock()
	unlock := c.ids.lock(attachmentID)
	defer unlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	entry, err := c.store.Get(opCtx, attachmentID)
	if err != nil {
		return nil, c.storageError(err)
	}
	if entry == nil {
		return nil, nil
	}

	now := c.now()
	if reason, dead := c.evict.deadReason(entry, now); dead {
		if err := c.evict.removeDead(opCtx, attachmentID, reason); err != nil {
			return nil, c.storageError(err)
		}
		return nil, nil
	}

	if ttl <= 0 {
		ttl = c.cfg.SignedURLTTL
	}
	expiresAt := now.Add(ttl)
	token := c.signer.Issue(attachmentID, expiresAt)

	info := &SignedURLInfo{
		URL:       "/attachments/" + attachmentID + "?token=" + token + "&expires=" + strconv.FormatInt(expiresAt.Unix(), 10),
		ExpiresAt: expiresAt,
		MaxAccess: maxAccess,
	}

	if err := c.store.SetSignedURL(opCtx, attachmentID, info); err != nil {
		return nil, c.storageError(err)
	}

	c.log.Debug("issued signed url",
		zap.String("attachment_id", attachmentID),
		zap.Time("expires_at", expiresAt),
		zap.Int("max_access", maxAccess),
	)
	return info, nil
}

// ValidateSignedURL checks a presented capability without side effects. The
// three failure modes are evaluated in order: expiry, digest, access budget.
// Only storage failures are errors; every policy failure is simply false.
func (c *Cache) ValidateSignedURL(ctx context.Context, attachmentID, token string, expiresAt, now time.Time) (bool, error) {
	if now.After(expiresAt) {
		metrics.SignedURLValidations.WithLabelValues("expired").Inc()
		return false, nil
	}

	if !c.signer.Validate(attachmentID, token, expiresAt, now) {
		metrics.SignedURLValidations.WithLabelValues("forged").Inc()
		return false, nil
	}

	c.guard.RLock()
	defer c.guard.RUnlock()

	opCtx, cancel := c.opCtx(ctx)
	defer cancel()

	entry, err := c.store.Get(opCtx, attachmentID)
	if err != nil {
		return false, c.storageError(err)
	}
	if entry == nil {
		metrics.SignedURLValidations.WithLabelValues("missing").Inc()
		return false, nil
	}

	info := signedURLFromModel(entry)
	if info == nil || info.Exhausted() {
		metrics.SignedURLValidations.WithLabelValues("exhausted").Inc()
		return false, nil
	}

	metrics.SignedURLValidations.WithLabelValues("ok").Inc()
	return true, nil
}

// Close releases the underlying store handle. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.store.Close()
	})
	return c.closeErr
}

// Config returns the active cache policy.
func (c *Cache) Config() Config {
	return c.cfg
}

func (c *Cache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.StorageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.StorageTimeout)
}

func (c *Cache) storageError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.ErrStorageTimeout.WithInternal(err)
	}
	return apperrors.ErrStorage.WithInternal(fmt.Errorf("storage: %w", err))
}
