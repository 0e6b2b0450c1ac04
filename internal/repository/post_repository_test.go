package repository

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aite-labs/aite-api/internal/models"
)

func TestPostRepositoryToggleLikeAdds(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM post_likes").
		WithArgs("post-1", "user-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO post_likes").
		WithArgs("post-1", "user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("UPDATE posts SET like_count = like_count \\+ 1").
		WithArgs("post-1").
		WillReturnRows(sqlmock.NewRows([]string{"like_count"}).AddRow(5))
	mock.ExpectCommit()

	action, likes, err := repo.ToggleLike(context.Background(), "post-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.LikeActionLiked, action)
	assert.Equal(t, 5, likes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryToggleLikeRemoves(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1 FROM post_likes").
		WithArgs("post-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec("DELETE FROM post_likes").
		WithArgs("post-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE posts SET like_count = GREATEST").
		WithArgs("post-1").
		WillReturnRows(sqlmock.NewRows([]string{"like_count"}).AddRow(4))
	mock.ExpectCommit()

	action, likes, err := repo.ToggleLike(context.Background(), "post-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.LikeActionUnliked, action)
	assert.Equal(t, 4, likes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepositoryAddComment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO comments").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE posts SET comment_count = comment_count \\+ 1").
		WithArgs("post-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	comment := &models.Comment{PostID: "post-1", AuthorID: "user-1", AuthorName: "User", Content: "hello"}
	err := repo.AddComment(context.Background(), comment)
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
