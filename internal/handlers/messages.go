package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/attachvault/internal/messages"
	appErrors "github.com/charlesng35/attachvault/pkg/errors"
	"github.com/charlesng35/attachvault/pkg/response"
)

// MessagesHandler exposes the encrypted message log.
type MessagesHandler struct {
	service *messages.Service
}

// NewMessagesHandler constructs a handler for the message service.
func NewMessagesHandler(svc *messages.Service) *MessagesHandler {
	return &MessagesHandler{service: svc}
}

type storeMessagePayload struct {
	MessageID string `json:"message_id" validate:"required,max=128"`
	Content   []byte `json:"content" validate:"required"`
	Sender    string `json:"sender" validate:"max=128"`
	Recipient string `json:"recipient" validate:"max=128"`
	Type      string `json:"type" validate:"max=64"`
}

// Store persists one message in a conversation.
func (h *MessagesHandler) Store(c *gin.Context) {
	var payload storeMessagePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	err := h.service.Store(requestContext(c), messages.StoredMessage{
		ConversationID: c.Param("id"),
		MessageID:      payload.MessageID,
		Content:        payload.Content,
		Sender:         payload.Sender,
		Recipient:      payload.Recipient,
		Type:           payload.Type,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message_id": payload.MessageID})
}

// Get returns one decrypted message.
func (h *MessagesHandler) Get(c *gin.Context) {
	msg, err := h.service.Get(requestContext(c), c.Param("id"), c.Param("messageID"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if msg == nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	response.Success(c, http.StatusOK, msg)
}

// List returns a conversation's messages in insertion order.
func (h *MessagesHandler) List(c *gin.Context) {
	list, err := h.service.List(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if list == nil {
		list = []messages.StoredMessage{}
	}
	response.Success(c, http.StatusOK, list)
}

// ClearConversation deletes every message of one conversation.
func (h *MessagesHandler) ClearConversation(c *gin.Context) {
	removed, err := h.service.ClearConversation(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": removed})
}
