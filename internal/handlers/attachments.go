package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/attachvault/internal/attachments"
	appErrors "github.com/charlesng35/attachvault/pkg/errors"
	"github.com/charlesng35/attachvault/pkg/logger"
	"github.com/charlesng35/attachvault/pkg/response"
)

// AttachmentsHandler exposes the attachment cache over HTTP: a public signed
// URL download endpoint plus the JWT guarded management API.
type AttachmentsHandler struct {
	cache *attachments.Cache
	log   *zap.Logger
}

// NewAttachmentsHandler constructs a handler backed by the given cache.
func NewAttachmentsHandler(cache *attachments.Cache) *AttachmentsHandler {
	return &AttachmentsHandler{
		cache: cache,
		log:   logger.WithModule("handlers.attachments"),
	}
}

type cacheAttachmentPayload struct {
	Data            []byte     `json:"data" validate:"required"`
	FileName        string     `json:"file_name" validate:"required,max=512"`
	MimeType        string     `json:"mime_type" validate:"required,max=255"`
	ConversationID  string     `json:"conversation_id" validate:"required,max=128"`
	MessageID       string     `json:"message_id" validate:"max=128"`
	UploadedBy      string     `json:"uploaded_by" validate:"max=128"`
	UploadedAt      *time.Time `json:"uploaded_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	IsPrivate       bool       `json:"is_private"`
	EncryptionKeyID string     `json:"encryption_key_id" validate:"max=128"`
}

type issueSignedURLPayload struct {
	TTLSeconds int `json:"ttl_seconds" validate:"gte=0"`
	MaxAccess  int `json:"max_access" validate:"gte=0"`
}

type attachmentEnvelope struct {
	Metadata  attachments.Metadata       `json:"metadata"`
	Data      []byte                     `json:"data"`
	SignedURL *attachments.SignedURLInfo `json:"signed_url,omitempty"`
}

// Download serves an attachment through a signed URL. Token and expiry travel
// as query parameters; any failed check yields 403 without distinguishing the
// cause.
func (h *AttachmentsHandler) Download(c *gin.Context) {
	id := c.Param("id")
	token := strings.TrimSpace(c.Query("token"))
	expiresRaw := strings.TrimSpace(c.Query("expires"))

	expiresUnix, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil || token == "" {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	expiresAt := time.Unix(expiresUnix, 0)

	ctx := requestContext(c)
	ok, err := h.cache.ValidateSignedURL(ctx, id, token, expiresAt, time.Now())
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	item, err := h.cache.Redeem(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if item == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+item.Metadata.FileName+`"`)
	c.Data(http.StatusOK, item.Metadata.MimeType, item.Data)
}

// Cache stores an attachment under the given id.
func (h *AttachmentsHandler) Cache(c *gin.Context) {
	id := c.Param("id")

	var payload cacheAttachmentPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	meta := attachments.Metadata{
		AttachmentID:    id,
		FileName:        payload.FileName,
		MimeType:        payload.MimeType,
		SizeBytes:       int64(len(payload.Data)),
		ConversationID:  payload.ConversationID,
		MessageID:       payload.MessageID,
		UploadedBy:      payload.UploadedBy,
		ExpiresAt:       payload.ExpiresAt,
		IsPrivate:       payload.IsPrivate,
		EncryptionKeyID: payload.EncryptionKeyID,
	}
	if payload.UploadedAt != nil {
		meta.UploadedAt = *payload.UploadedAt
	} else {
		meta.UploadedAt = time.Now()
	}

	if err := h.cache.Cache(requestContext(c), id, payload.Data, meta, nil); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"attachment_id": id})
}

// Get returns a cached attachment with its metadata, or 404 when absent.
func (h *AttachmentsHandler) Get(c *gin.Context) {
	item, err := h.cache.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if item == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, attachmentEnvelope{
		Metadata:  item.Metadata,
		Data:      item.Data,
		SignedURL: item.SignedURL,
	})
}

// Remove deletes one attachment.
func (h *AttachmentsHandler) Remove(c *gin.Context) {
	existed, err := h.cache.Remove(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": existed})
}

// ListConversation returns metadata for every live attachment of one
// conversation.
func (h *AttachmentsHandler) ListConversation(c *gin.Context) {
	list, err := h.cache.ListConversation(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []attachments.Metadata{}
	}
	response.Success(c, http.StatusOK, list)
}

// ClearConversation removes every attachment of one conversation.
func (h *AttachmentsHandler) ClearConversation(c *gin.Context) {
	conversationID := c.Param("id")
	removed, err := h.cache.ClearConversation(requestContext(c), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.log.Info("conversation attachments cleared",
		zap.String("conversation_id", conversationID),
		zap.String("operator", operatorID(c)),
		zap.Int64("removed", removed))
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

// IssueSignedURL grants a signed download capability over one attachment.
func (h *AttachmentsHandler) IssueSignedURL(c *gin.Context) {
	var payload issueSignedURLPayload
	if !bindAndValidate(c, &payload) {
		return
	}

	ttl := time.Duration(payload.TTLSeconds) * time.Second
	info, err := h.cache.IssueSignedURL(requestContext(c), c.Param("id"), ttl, payload.MaxAccess)
	if err != nil {
		response.Error(c, err)
		return
	}
	if info == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, info)
}

// Cleanup runs an immediate sweep of dead entries.
func (h *AttachmentsHandler) Cleanup(c *gin.Context) {
	removed, err := h.cache.Cleanup(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.log.Info("cache sweep requested",
		zap.String("operator", operatorID(c)),
		zap.Int("removed", removed))
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}

// Stats returns cache occupancy.
func (h *AttachmentsHandler) Stats(c *gin.Context) {
	stats, err := h.cache.Stats(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
