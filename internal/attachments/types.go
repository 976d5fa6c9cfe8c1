package attachments

import (
	"time"

	"github.com/charlesng35/attachvault/internal/models"
	"github.com/charlesng35/attachvault/pkg/validator"
)

// Metadata is the immutable description of an attachment. Validation happens
// at construction time via Validate; the cache never stores a metadata record
// that failed it.
type Metadata struct {
	AttachmentID    string     `json:"attachment_id" validate:"required,max=128"`
	FileName        string     `json:"file_name" validate:"required,max=512"`
	MimeType        string     `json:"mime_type" validate:"required,max=255"`
	SizeBytes       int64      `json:"size_bytes" validate:"gte=0"`
	ConversationID  string     `json:"conversation_id" validate:"required,max=128"`
	MessageID       string     `json:"message_id" validate:"max=128"`
	UploadedBy      string     `json:"uploaded_by" validate:"max=128"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IsPrivate       bool       `json:"is_private"`
	EncryptionKeyID string     `json:"encryption_key_id,omitempty" validate:"max=128"`
}

// Validate checks structural constraints. Policy rules (privacy, size, MIME)
// are the admission policy's concern, not validation's.
func (m Metadata) Validate() error {
	return validator.ValidateStruct(m)
}

// SignedURLInfo is a capability over one cached attachment.
type SignedURLInfo struct {
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
	AccessCount int       `json:"access_count"`
	MaxAccess   int       `json:"max_access"`
}

// Expired reports whether the capability lifetime has passed.
func (u SignedURLInfo) Expired(now time.Time) bool {
	return now.After(u.ExpiresAt)
}

// Exhausted reports whether the access budget has been spent. A zero
// MaxAccess means unbounded.
func (u SignedURLInfo) Exhausted() bool {
	return u.MaxAccess > 0 && u.AccessCount >= u.MaxAccess
}

// Item is the result of a successful cache lookup. Data is plaintext; the
// cache decrypts private payloads before returning them.
type Item struct {
	Data      []byte
	Metadata  Metadata
	SignedURL *SignedURLInfo
}

// Stats is a consistent snapshot of cache occupancy.
type Stats struct {
	Count       int64      `json:"count"`
	Bytes       int64      `json:"bytes"`
	MaxBytes    int64      `json:"max_bytes"`
	Utilization float64    `json:"utilization"`
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
	NewestEntry *time.Time `json:"newest_entry,omitempty"`
}

func metadataFromModel(e *models.AttachmentCacheEntry) Metadata {
	return Metadata{
		AttachmentID:    e.AttachmentID,
		FileName:        e.FileName,
		MimeType:        e.MimeType,
		SizeBytes:       e.SizeBytes,
		ConversationID:  e.ConversationID,
		MessageID:       e.MessageID,
		UploadedBy:      e.UploadedBy,
		UploadedAt:      e.UploadedAt,
		ExpiresAt:       e.ExpiresAt,
		IsPrivate:       e.IsPrivate,
		EncryptionKeyID: e.EncryptionKeyID,
	}
}

func signedURLFromModel(e *models.AttachmentCacheEntry) *SignedURLInfo {
	if e.SignedURL == "" || e.SignedURLExpiresAt == nil {
		return nil
	}
	return &SignedURLInfo{
		URL:         e.SignedURL,
		ExpiresAt:   *e.SignedURLExpiresAt,
		AccessCount: e.SignedURLAccessCount,
		MaxAccess:   e.SignedURLMaxAccess,
	}
}

func applySignedURL(e *models.AttachmentCacheEntry, info *SignedURLInfo) {
	if info == nil {
		e.SignedURL = ""
		e.SignedURLExpiresAt = nil
		e.SignedURLAccessCount = 0
		e.SignedURLMaxAccess = 0
		return
	}
	expires := info.ExpiresAt
	e.SignedURL = info.URL
	e.SignedURLExpiresAt = &expires
	e.SignedURLAccessCount = info.AccessCount
	e.SignedURLMaxAccess = info.MaxAccess
}
