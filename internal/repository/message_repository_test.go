package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aite-labs/aite-api/internal/models"
)

func TestMessageRepositorySendFansOutBothEntries(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// sender entry keeps unread at 0
	mock.ExpectExec("INSERT INTO conversation_entries").
		WithArgs("bob", "alice", "alice:bob", "hi", "bob", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	// recipient entry advances unread by 1
	mock.ExpectExec("INSERT INTO conversation_entries").
		WithArgs("alice", "bob", "alice:bob", "hi", "bob", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	msg := &models.Message{SenderID: "bob", RecipientID: "alice", Content: "hi"}
	err := repo.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "alice:bob", msg.ConversationKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositoryListConversationOldestFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	rows := sqlmock.NewRows([]string{"id", "conversation_key", "sender_id", "recipient_id", "content", "created_at"}).
		AddRow("m1", "alice:bob", "alice", "bob", "first", time.Now().Add(-time.Minute)).
		AddRow("m2", "alice:bob", "bob", "alice", "second", time.Now())
	mock.ExpectQuery(`SELECT (.+) FROM messages WHERE conversation_key = \$1 ORDER BY created_at ASC`).
		WithArgs("alice:bob").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM messages`).
		WithArgs("alice:bob").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	messages, total, err := repo.ListConversation(context.Background(), models.NewConversationKey("bob", "alice"), 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec("UPDATE conversation_entries SET unread_count = 0").
		WithArgs("alice", "bob").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRead(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
