package models

import "time"

// ConversationKey identifies the shared bucket for messages between exactly
// two participants. The constructor normalises ordering so that both sides
// resolve to the same key regardless of who sends first.
type ConversationKey struct {
	a string
	b string
}

// NewConversationKey builds a normalised key for two participant identifiers.
func NewConversationKey(first, second string) ConversationKey {
	if second < first {
		first, second = second, first
	}
	return ConversationKey{a: first, b: second}
}

// Participants returns the two identifiers in canonical order.
func (k ConversationKey) Participants() (string, string) {
	return k.a, k.b
}

// String renders the storage key.
func (k ConversationKey) String() string {
	return k.a + ":" + k.b
}

// Message is a single direct message stored under its conversation key.
type Message struct {
	ID              string    `db:"id" json:"id"`
	ConversationKey string    `db:"conversation_key" json:"-"`
	SenderID        string    `db:"sender_id" json:"sender_id"`
	RecipientID     string    `db:"recipient_id" json:"recipient_id"`
	Content         string    `db:"content" json:"content"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// ConversationEntry is one row of a participant's inbox. Each message send
// fans out into two of these rows, duplicating the last-message summary so
// inbox reads never join over the messages table.
type ConversationEntry struct {
	OwnerID         string    `db:"owner_id" json:"owner_id"`
	ContactID       string    `db:"contact_id" json:"contact_id"`
	ConversationKey string    `db:"conversation_key" json:"-"`
	LastMessage     string    `db:"last_message" json:"last_message"`
	LastSenderID    string    `db:"last_sender_id" json:"last_sender_id"`
	UnreadCount     int       `db:"unread_count" json:"unread_count"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
