package messages

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/attachvault/internal/models"
	"github.com/charlesng35/attachvault/internal/vault"
	apperrors "github.com/charlesng35/attachvault/pkg/errors"
	"github.com/charlesng35/attachvault/pkg/logger"
)

// StoredMessage is a decrypted message returned to callers.
type StoredMessage struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Content        []byte    `json:"content"`
	Sender         string    `json:"sender"`
	Recipient      string    `json:"recipient"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
}

// Service persists conversation messages encrypted under the same
// conversation-derived keys the attachment cache uses. Clearing a
// conversation's messages and attachments together therefore removes every
// trace of it.
type Service struct {
	db      *gorm.DB
	crypto  *vault.Crypto
	log     *zap.Logger
	maxAge  time.Duration
	timeNow func() time.Time
}

// NewService constructs a message service. maxAge bounds how long messages are
// retained; zero disables age-based cleanup.
func NewService(db *gorm.DB, conversationCrypto *vault.Crypto, maxAge time.Duration) (*Service, error) {
	if db == nil {
		return nil, errors.New("messages: database handle is required")
	}
	if conversationCrypto == nil {
		return nil, errors.New("messages: conversation crypto is required")
	}
	return &Service{
		db:      db,
		crypto:  conversationCrypto,
		log:     logger.WithModule("messages"),
		maxAge:  maxAge,
		timeNow: time.Now,
	}, nil
}

// Store encrypts and saves one message. Storing the same conversation/message
// pair again overwrites the previous record.
func (s *Service) Store(ctx context.Context, msg StoredMessage) error {
	if msg.ConversationID == "" || msg.MessageID == "" {
		return apperrors.NewBadRequest("conversation id and message id are required")
	}

	ciphertext, nonce, err := s.crypto.Encrypt(msg.Content, msg.ConversationID)
	if err != nil {
		return apperrors.ErrCrypto.WithInternal(err)
	}

	record := &models.Message{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
		Content:        ciphertext,
		Nonce:          nonce,
		Sender:         msg.Sender,
		Recipient:      msg.Recipient,
		Type:           msg.Type,
		CreatedAt:      s.timeNow(),
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(record).Error; err != nil {
		return apperrors.ErrStorage.WithInternal(err)
	}
	return nil
}

// Get returns one decrypted message, or (nil, nil) when it does not exist.
func (s *Service) Get(ctx context.Context, conversationID, messageID string) (*StoredMessage, error) {
	var record models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND message_id = ?", conversationID, messageID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	content, err := s.crypto.Decrypt(record.Content, record.Nonce, record.ConversationID)
	if err != nil {
		return nil, apperrors.ErrCrypto.WithInternal(err)
	}

	return &StoredMessage{
		ConversationID: record.ConversationID,
		MessageID:      record.MessageID,
		Content:        content,
		Sender:         record.Sender,
		Recipient:      record.Recipient,
		Type:           record.Type,
		CreatedAt:      record.CreatedAt,
	}, nil
}

// List returns every message of a conversation in insertion order, decrypted.
func (s *Service) List(ctx context.Context, conversationID string) ([]StoredMessage, error) {
	var records []models.Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, apperrors.ErrStorage.WithInternal(err)
	}

	out := make([]StoredMessage, 0, len(records))
	for _, record := range records {
		content, err := s.crypto.Decrypt(record.Content, record.Nonce, record.ConversationID)
		if err != nil {
			return nil, apperrors.ErrCrypto.WithInternal(err)
		}
		out = append(out, StoredMessage{
			ConversationID: record.ConversationID,
			MessageID:      record.MessageID,
			Content:        content,
			Sender:         record.Sender,
			Recipient:      record.Recipient,
			Type:           record.Type,
			CreatedAt:      record.CreatedAt,
		})
	}
	return out, nil
}

// ClearConversation deletes every message of a conversation and drops the
// conversation's cached key.
func (s *Service) ClearConversation(ctx context.Context, conversationID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Delete(&models.Message{})
	if result.Error != nil {
		return 0, apperrors.ErrStorage.WithInternal(result.Error)
	}

	s.crypto.Forget(conversationID)

	if result.RowsAffected > 0 {
		s.log.Info("cleared conversation messages",
			zap.String("conversation_id", conversationID),
			zap.Int64("removed", result.RowsAffected),
		)
	}
	return result.RowsAffected, nil
}

// Cleanup removes messages older than the retention window. A zero window
// makes it a no-op.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}

	cutoff := s.timeNow().Add(-s.maxAge)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.Message{})
	if result.Error != nil {
		return 0, apperrors.ErrStorage.WithInternal(result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("removed expired messages", zap.Int64("removed", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
