package attachments

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/attachvault/internal/models"
	"github.com/charlesng35/attachvault/pkg/metrics"
)

// iterationBatchSize bounds how many entries an iteration loads at once.
const iterationBatchSize = 100

var errStopIteration = errors.New("attachments: stop iteration")

// Store persists cache entries keyed by attachment id and maintains the
// aggregate byte counter. The counter is recomputed from the table at open
// and adjusted in step with every mutation, so after any public call it
// equals the sum of stored payload sizes of live entries.
type Store struct {
	db *gorm.DB

	countMu    sync.Mutex
	totalBytes int64
}

// NewStore wraps the database handle and materializes the byte counter.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("attachments: database handle is required")
	}

	s := &Store{db: db}

	var total int64
	err := db.Model(&models.AttachmentCacheEntry{}).
		Select("COALESCE(SUM(stored_bytes), 0)").
		Scan(&total).Error
	if err != nil {
		return nil, err
	}

	s.totalBytes = total
	metrics.CacheBytes.Set(float64(total))
	return s, nil
}

// TotalBytes returns the aggregate size of live entries.
func (s *Store) TotalBytes() int64 {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.totalBytes
}

func (s *Store) addBytes(delta int64) {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	s.totalBytes += delta
	metrics.CacheBytes.Set(float64(s.totalBytes))
}

// Put upserts an entry and adjusts the byte counter by the size delta against
// any prior entry under the same id, so overwrites never double-count.
func (s *Store) Put(ctx context.Context, entry *models.AttachmentCacheEntry) error {
	var delta int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior models.AttachmentCacheEntry
		err := tx.Select("stored_bytes").
			Take(&prior, "attachment_id = ?", entry.AttachmentID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			delta = entry.StoredBytes
		case err != nil:
			return err
		default:
			delta = entry.StoredBytes - prior.StoredBytes
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "attachment_id"}},
			UpdateAll: true,
		}).Create(entry).Error
	})
	if err != nil {
		return err
	}

	s.addBytes(delta)
	return nil
}

// Get fetches an entry by id. A missing entry is (nil, nil), not an error.
func (s *Store) Get(ctx context.Context, attachmentID string) (*models.AttachmentCacheEntry, error) {
	var entry models.AttachmentCacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "attachment_id = ?", attachmentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Delete removes an entry, adjusting the byte counter. Reports whether an
// entry existed.
func (s *Store) Delete(ctx context.Context, attachmentID string) (bool, error) {
	var (
		existed bool
		freed   int64
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prior models.AttachmentCacheEntry
		err := tx.Select("stored_bytes").
			Take(&prior, "attachment_id = ?", attachmentID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		existed = true
		freed = prior.StoredBytes
		return tx.Delete(&models.AttachmentCacheEntry{}, "attachment_id = ?", attachmentID).Error
	})
	if err != nil {
		return false, err
	}

	if existed {
		s.addBytes(-freed)
	}
	return existed, nil
}

// UpdateAccess persists new access statistics for an entry without touching
// the payload or the byte counter.
func (s *Store) UpdateAccess(ctx context.Context, attachmentID string, accessCount int, lastAccess time.Time, signedURLAccessCount int) error {
	return s.db.WithContext(ctx).
		Model(&models.AttachmentCacheEntry{}).
		Where("attachment_id = ?", attachmentID).
		Updates(map[string]any{
			"access_count":            accessCount,
			"last_accessed_at":        lastAccess,
			"signed_url_access_count": signedURLAccessCount,
		}).Error
}

// SetSignedURL replaces the signed URL capability columns of an entry.
func (s *Store) SetSignedURL(ctx context.Context, attachmentID string, info *SignedURLInfo) error {
	values := map[string]any{
		"signed_url":              "",
		"signed_url_expires_at":   nil,
		"signed_url_access_count": 0,
		"signed_url_max_access":   0,
	}
	if info != nil {
		values["signed_url"] = info.URL
		values["signed_url_expires_at"] = info.ExpiresAt
		values["signed_url_access_count"] = info.AccessCount
		values["signed_url_max_access"] = info.MaxAccess
	}

	return s.db.WithContext(ctx).
		Model(&models.AttachmentCacheEntry{}).
		Where("attachment_id = ?", attachmentID).
		Updates(values).Error
}

// victim is the slim projection used for LRU selection.
type victim struct {
	AttachmentID string
	StoredBytes  int64
}

// LeastRecentlyUsed returns eviction candidates ordered by ascending
// last-access time, optionally excluding one id (the entry being written).
func (s *Store) LeastRecentlyUsed(ctx context.Context, excludeID string) ([]victim, error) {
	query := s.db.WithContext(ctx).
		Model(&models.AttachmentCacheEntry{}).
		Select("attachment_id", "stored_bytes").
		Order("last_accessed_at ASC")
	if excludeID != "" {
		query = query.Where("attachment_id <> ?", excludeID)
	}

	var victims []victim
	if err := query.Find(&victims).Error; err != nil {
		return nil, err
	}
	return victims, nil
}

// Entries returns a lazy, restartable sequence over all cache entries,
// loading them in batches. Iteration stops early when the consumer does.
func (s *Store) Entries(ctx context.Context) iter.Seq2[*models.AttachmentCacheEntry, error] {
	return func(yield func(*models.AttachmentCacheEntry, error) bool) {
		var batch []models.AttachmentCacheEntry
		result := s.db.WithContext(ctx).
			Model(&models.AttachmentCacheEntry{}).
			Order("attachment_id").
			FindInBatches(&batch, iterationBatchSize, func(tx *gorm.DB, _ int) error {
				for i := range batch {
					if !yield(&batch[i], nil) {
						return errStopIteration
					}
				}
				return nil
			})
		if result.Error != nil && !errors.Is(result.Error, errStopIteration) {
			yield(nil, result.Error)
		}
	}
}

// FindByConversation returns a lazy sequence over one conversation's entries.
func (s *Store) FindByConversation(ctx context.Context, conversationID string) iter.Seq2[*models.AttachmentCacheEntry, error] {
	return func(yield func(*models.AttachmentCacheEntry, error) bool) {
		var batch []models.AttachmentCacheEntry
		result := s.db.WithContext(ctx).
			Model(&models.AttachmentCacheEntry{}).
			Where("conversation_id = ?", conversationID).
			Order("attachment_id").
			FindInBatches(&batch, iterationBatchSize, func(tx *gorm.DB, _ int) error {
				for i := range batch {
					if !yield(&batch[i], nil) {
						return errStopIteration
					}
				}
				return nil
			})
		if result.Error != nil && !errors.Is(result.Error, errStopIteration) {
			yield(nil, result.Error)
		}
	}
}

// ClearConversation removes every entry for a conversation in one
// transaction, adjusting the byte counter by the freed total.
func (s *Store) ClearConversation(ctx context.Context, conversationID string) (int64, error) {
	var (
		removed int64
		freed   int64
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var agg struct {
			Count int64
			Bytes int64
		}
		err := tx.Model(&models.AttachmentCacheEntry{}).
			Select("COUNT(*) AS count, COALESCE(SUM(stored_bytes), 0) AS bytes").
			Where("conversation_id = ?", conversationID).
			Scan(&agg).Error
		if err != nil {
			return err
		}

		removed = agg.Count
		freed = agg.Bytes
		if removed == 0 {
			return nil
		}

		return tx.Delete(&models.AttachmentCacheEntry{}, "conversation_id = ?", conversationID).Error
	})
	if err != nil {
		return 0, err
	}

	if freed != 0 {
		s.addBytes(-freed)
	}
	return removed, nil
}

// Snapshot derives occupancy statistics from a single consistent read.
func (s *Store) Snapshot(ctx context.Context) (count, bytes int64, oldest, newest *time.Time, err error) {
	var agg struct {
		Count int64
		Bytes int64
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.AttachmentCacheEntry{}).
			Select("COUNT(*) AS count, COALESCE(SUM(stored_bytes), 0) AS bytes").
			Scan(&agg).Error
		if err != nil {
			return err
		}
		if agg.Count == 0 {
			return nil
		}

		// SQLite hands MIN/MAX over datetime columns back as strings, so the
		// cached_at bounds come from ordered limit-1 reads instead, which go
		// through gorm's column-typed scan path.
		var bound models.AttachmentCacheEntry
		if err := tx.Select("cached_at").Order("cached_at ASC").Limit(1).Take(&bound).Error; err != nil {
			return err
		}
		first := bound.CachedAt
		oldest = &first

		bound = models.AttachmentCacheEntry{}
		if err := tx.Select("cached_at").Order("cached_at DESC").Limit(1).Take(&bound).Error; err != nil {
			return err
		}
		last := bound.CachedAt
		newest = &last
		return nil
	})
	if err != nil {
		return 0, 0, nil, nil, err
	}
	return agg.Count, agg.Bytes, oldest, newest, nil
}

// Close releases the underlying sql handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
