package models

import "time"

// Message is one record of the append-only encrypted message log. Content is
// always ciphertext under the conversation-derived key; Nonce is stored
// alongside for decryption.
type Message struct {
	ConversationID string `gorm:"primaryKey;size:128" json:"conversation_id"`
	MessageID      string `gorm:"primaryKey;size:128" json:"message_id"`

	Content []byte `gorm:"type:blob" json:"-"`
	Nonce   []byte `gorm:"type:blob" json:"-"`

	Sender    string `gorm:"size:128" json:"sender"`
	Recipient string `gorm:"size:128" json:"recipient"`
	Type      string `gorm:"size:64" json:"type"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
