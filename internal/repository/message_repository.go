package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aite-labs/aite-api/internal/models"
)

// MessageRepository stores direct messages and their denormalised inbox rows.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs a MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Send inserts the message and fans the last-message summary out into both
// participants' inbox rows in one transaction. The duplication is a
// deliberate read optimisation: inbox listings never join over messages.
func (r *MessageRepository) Send(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	key := models.NewConversationKey(msg.SenderID, msg.RecipientID)
	msg.ConversationKey = key.String()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin send message: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const msgQuery = `INSERT INTO messages (id, conversation_key, sender_id, recipient_id, content, created_at)
        VALUES (:id, :conversation_key, :sender_id, :recipient_id, :content, :created_at)`
	if _, err := tx.NamedExecContext(ctx, msgQuery, msg); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	const entryQuery = `INSERT INTO conversation_entries (owner_id, contact_id, conversation_key, last_message, last_sender_id, unread_count, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (owner_id, contact_id) DO UPDATE SET
            last_message = EXCLUDED.last_message,
            last_sender_id = EXCLUDED.last_sender_id,
            unread_count = conversation_entries.unread_count + $6,
            updated_at = EXCLUDED.updated_at`

	// Sender's own row stays read; the recipient's unread counter advances
	// atomically in the upsert.
	if _, err := tx.ExecContext(ctx, entryQuery, msg.SenderID, msg.RecipientID, msg.ConversationKey, msg.Content, msg.SenderID, 0, msg.CreatedAt); err != nil {
		return fmt.Errorf("upsert sender inbox entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, entryQuery, msg.RecipientID, msg.SenderID, msg.ConversationKey, msg.Content, msg.SenderID, 1, msg.CreatedAt); err != nil {
		return fmt.Errorf("upsert recipient inbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit send message: %w", err)
	}
	return nil
}

// ListConversation returns messages for the pair, oldest first.
func (r *MessageRepository) ListConversation(ctx context.Context, key models.ConversationKey, page, pageSize int) ([]models.Message, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT id, conversation_key, sender_id, recipient_id, content, created_at
        FROM messages WHERE conversation_key = $1 ORDER BY created_at ASC LIMIT %d OFFSET %d`, pageSize, offset)

	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, key.String()); err != nil {
		return nil, 0, fmt.Errorf("list conversation: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM messages WHERE conversation_key = $1`, key.String()); err != nil {
		return nil, 0, fmt.Errorf("count conversation: %w", err)
	}
	return messages, total, nil
}

// ListInbox returns the owner's conversation entries, most recent first.
func (r *MessageRepository) ListInbox(ctx context.Context, ownerID string) ([]models.ConversationEntry, error) {
	const query = `SELECT owner_id, contact_id, conversation_key, last_message, last_sender_id, unread_count, updated_at
        FROM conversation_entries WHERE owner_id = $1 ORDER BY updated_at DESC`
	var entries []models.ConversationEntry
	if err := r.db.SelectContext(ctx, &entries, query, ownerID); err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return entries, nil
}

// MarkRead resets the owner's unread counter for one contact.
func (r *MessageRepository) MarkRead(ctx context.Context, ownerID, contactID string) error {
	const query = `UPDATE conversation_entries SET unread_count = 0 WHERE owner_id = $1 AND contact_id = $2`
	if _, err := r.db.ExecContext(ctx, query, ownerID, contactID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}
