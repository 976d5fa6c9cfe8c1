package attachments

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/attachvault/internal/models"
	apperrors "github.com/charlesng35/attachvault/pkg/errors"
	"github.com/charlesng35/attachvault/pkg/metrics"
)

// Eviction reasons, used for logging and metrics labels.
const (
	evictCapacity       = "capacity"
	evictEntryAge       = "age"
	evictMetadataExpiry = "metadata_expiry"
	evictSignedURL      = "signed_url_expiry"
	evictAccessBudget   = "access"
)

// evictor enforces the three eviction ceilings. Callers are responsible for
// holding whatever locks the façade requires; the evictor only talks to the
// store.
type evictor struct {
	store     *Store
	maxBytes  int64
	maxAge    time.Duration
	maxAccess int
	log       *zap.Logger
	now       func() time.Time
}

// deadReason reports why an entry must be treated as absent, if at all.
// The checks mirror get(): entry age, metadata expiry, signed URL expiry,
// access budget.
func (e *evictor) deadReason(entry *models.AttachmentCacheEntry, now time.Time) (string, bool) {
	if e.maxAge > 0 && now.Sub(entry.CachedAt) > e.maxAge {
		return evictEntryAge, true
	}

	if entry.ExpiresAt != nil && now.After(*entry.ExpiresAt) {
		return evictMetadataExpiry, true
	}

	if entry.SignedURLExpiresAt != nil && now.After(*entry.SignedURLExpiresAt) {
		return evictSignedURL, true
	}

	if e.maxAccess > 0 && entry.AccessCount >= e.maxAccess {
		return evictAccessBudget, true
	}

	return "", false
}

// ensureCapacity frees space for an incoming payload by deleting
// least-recently-used entries. excludeID shields the entry being overwritten
// (its bytes are already accounted for via the put delta). Fails with
// ErrCacheFull when no further victims remain and the payload still does not
// fit.
func (e *evictor) ensureCapacity(ctx context.Context, incomingBytes, replacedBytes int64, excludeID string) error {
	if e.maxBytes <= 0 {
		return nil
	}

	projected := e.store.TotalBytes() - replacedBytes + incomingBytes
	if projected <= e.maxBytes {
		return nil
	}

	victims, err := e.store.LeastRecentlyUsed(ctx, excludeID)
	if err != nil {
		return err
	}

	for _, v := range victims {
		if projected <= e.maxBytes {
			break
		}

		existed, err := e.store.Delete(ctx, v.AttachmentID)
		if err != nil {
			return err
		}
		if !existed {
			continue
		}

		projected -= v.StoredBytes
		metrics.CacheEvictions.WithLabelValues(evictCapacity).Inc()
		e.log.Info("evicted entry for capacity",
			zap.String("attachment_id", v.AttachmentID),
			zap.Int64("freed_bytes", v.StoredBytes),
		)
	}

	if projected > e.maxBytes {
		return apperrors.ErrCacheFull
	}
	return nil
}

// removeDead deletes a dead entry and records the eviction.
func (e *evictor) removeDead(ctx context.Context, attachmentID, reason string) error {
	existed, err := e.store.Delete(ctx, attachmentID)
	if err != nil {
		return err
	}
	if existed {
		metrics.CacheEvictions.WithLabelValues(reason).Inc()
		e.log.Debug("evicted dead entry",
			zap.String("attachment_id", attachmentID),
			zap.String("reason", reason),
		)
	}
	return nil
}

// sweep walks the whole store and removes every dead entry. A failure on one
// entry is logged and skipped so a single corrupt record cannot abort the
// sweep.
func (e *evictor) sweep(ctx context.Context) (int, error) {
	now := e.now()
	removed := 0

	type candidate struct {
		id     string
		reason string
	}
	var candidates []candidate

	for entry, err := range e.store.Entries(ctx) {
		if err != nil {
			return removed, err
		}
		if reason, dead := e.deadReason(entry, now); dead {
			candidates = append(candidates, candidate{id: entry.AttachmentID, reason: reason})
		}
	}

	for _, c := range candidates {
		existed, err := e.store.Delete(ctx, c.id)
		if err != nil {
			e.log.Warn("sweep failed to remove entry",
				zap.String("attachment_id", c.id),
				zap.Error(err),
			)
			continue
		}
		if existed {
			removed++
			metrics.CacheEvictions.WithLabelValues(c.reason).Inc()
		}
	}

	if removed > 0 {
		e.log.Info("cleanup sweep finished", zap.Int("removed", removed))
	}
	return removed, nil
}
