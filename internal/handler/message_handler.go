package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aite-labs/aite-api/internal/service"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
	"github.com/aite-labs/aite-api/pkg/response"
)

// MessageHandler exposes two-party chat endpoints.
type MessageHandler struct {
	messages *service.MessageService
}

// NewMessageHandler constructs MessageHandler.
func NewMessageHandler(messages *service.MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// Send godoc
// @Summary Send a direct message
// @Description Deliver a message to a contact and update both inboxes
// @Tags Messages
// @Accept json
// @Produce json
// @Param contactId path string true "Contact user ID"
// @Param payload body service.SendMessageRequest true "Message payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /messages/{contactId} [post]
func (h *MessageHandler) Send(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	msg, err := h.messages.Send(c.Request.Context(), claims.UserID, c.Param("contactId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// Conversation godoc
// @Summary List messages with a contact
// @Description Return the shared conversation, oldest first, and clear the caller's unread counter
// @Tags Messages
// @Produce json
// @Param contactId path string true "Contact user ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /messages/{contactId} [get]
func (h *MessageHandler) Conversation(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, pagination, err := h.messages.Conversation(c.Request.Context(), claims.UserID, c.Param("contactId"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, pagination)
}

// Inbox godoc
// @Summary List the caller's conversations
// @Description Return one entry per contact with the last message and unread count
// @Tags Messages
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /messages [get]
func (h *MessageHandler) Inbox(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	entries, err := h.messages.Inbox(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
