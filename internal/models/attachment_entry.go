package models

import "time"

// AttachmentCacheEntry is the stored unit of the attachment cache. Payload
// holds ciphertext for private attachments and plaintext otherwise; Nonce is
// empty when the payload is not encrypted. StoredBytes mirrors len(Payload)
// so the aggregate byte counter can be recomputed with a single SUM.
type AttachmentCacheEntry struct {
	AttachmentID string `gorm:"primaryKey;size:128" json:"attachment_id"`

	Payload     []byte `gorm:"type:blob" json:"-"`
	Nonce       []byte `gorm:"type:blob" json:"-"`
	StoredBytes int64  `json:"stored_bytes"`

	FileName        string     `gorm:"size:512" json:"file_name"`
	MimeType        string     `gorm:"size:255" json:"mime_type"`
	SizeBytes       int64      `json:"size_bytes"`
	ConversationID  string     `gorm:"index;size:128" json:"conversation_id"`
	MessageID       string     `gorm:"size:128" json:"message_id"`
	UploadedBy      string     `gorm:"size:128" json:"uploaded_by"`
	UploadedAt      time.Time  `json:"uploaded_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	IsPrivate       bool       `json:"is_private"`
	EncryptionKeyID string     `gorm:"size:128" json:"encryption_key_id,omitempty"`

	SignedURL            string     `gorm:"size:1024" json:"-"`
	SignedURLExpiresAt   *time.Time `json:"-"`
	SignedURLAccessCount int        `json:"-"`
	SignedURLMaxAccess   int        `json:"-"`

	CachedAt       time.Time `json:"cached_at"`
	LastAccessedAt time.Time `gorm:"index" json:"last_accessed_at"`
	AccessCount    int       `json:"access_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName keeps the collection name aligned with the persisted state layout.
func (AttachmentCacheEntry) TableName() string {
	return "attachments"
}
