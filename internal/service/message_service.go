package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
)

type messageRepository interface {
	Send(ctx context.Context, msg *models.Message) error
	ListConversation(ctx context.Context, key models.ConversationKey, page, pageSize int) ([]models.Message, int, error)
	ListInbox(ctx context.Context, ownerID string) ([]models.ConversationEntry, error)
	MarkRead(ctx context.Context, ownerID, contactID string) error
}

type contactChecker interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// SendMessageRequest holds the direct-message payload.
type SendMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// MessageService handles two-party direct messaging.
type MessageService struct {
	repo      messageRepository
	users     contactChecker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMessageService constructs the message service.
func NewMessageService(repo messageRepository, users contactChecker, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{repo: repo, users: users, validator: validate, logger: logger}
}

// Send stores a message in the shared conversation bucket and fans the
// summary out to both participants' inboxes.
func (s *MessageService) Send(ctx context.Context, senderID, contactID string, req SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if senderID == contactID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot message yourself")
	}
	if _, err := s.users.FindByID(ctx, contactID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "contact not found")
	}

	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: contactID,
		Content:     strings.TrimSpace(req.Content),
	}
	if err := s.repo.Send(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return msg, nil
}

// Conversation returns the message history with a contact, oldest first, and
// clears the caller's unread counter.
func (s *MessageService) Conversation(ctx context.Context, userID, contactID string, page, pageSize int) ([]models.Message, *models.Pagination, error) {
	key := models.NewConversationKey(userID, contactID)
	messages, total, err := s.repo.ListConversation(ctx, key, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if err := s.repo.MarkRead(ctx, userID, contactID); err != nil {
		s.logger.Warn("failed to clear unread counter", zap.String("owner", userID), zap.Error(err))
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return messages, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Inbox lists the caller's conversation entries, most recent first.
func (s *MessageService) Inbox(ctx context.Context, userID string) ([]models.ConversationEntry, error) {
	entries, err := s.repo.ListInbox(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load inbox")
	}
	return entries, nil
}
