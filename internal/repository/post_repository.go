package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aite-labs/aite-api/internal/models"
)

// PostRepository manages community posts, likes and comments. Like and
// comment counters are only ever changed through guarded atomic SQL
// increments so concurrent toggles cannot lose updates.
type PostRepository struct {
	db *sqlx.DB
}

// NewPostRepository constructs a PostRepository.
func NewPostRepository(db *sqlx.DB) *PostRepository {
	return &PostRepository{db: db}
}

// Create inserts a new post.
func (r *PostRepository) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO posts (id, author_id, author_name, content, media_url, media_type, like_count, comment_count, created_at)
        VALUES (:id, :author_id, :author_name, :content, :media_url, :media_type, :like_count, :comment_count, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

// FindByID fetches a single post.
func (r *PostRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	const query = `SELECT id, author_id, author_name, content, media_url, media_type, like_count, comment_count, created_at
        FROM posts WHERE id = $1`
	var post models.Post
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		return nil, err
	}
	return &post, nil
}

// ListFeed returns posts newest first.
func (r *PostRepository) ListFeed(ctx context.Context, filter models.FeedFilter) ([]models.Post, int, error) {
	base := "FROM posts WHERE 1=1"
	args := []interface{}{}
	if filter.AuthorID != "" {
		base += fmt.Sprintf(" AND author_id = $%d", len(args)+1)
		args = append(args, filter.AuthorID)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, author_id, author_name, content, media_url, media_type, like_count, comment_count, created_at
        %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)

	var posts []models.Post
	if err := r.db.SelectContext(ctx, &posts, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list feed: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, fmt.Sprintf("SELECT COUNT(*) %s", base), args...); err != nil {
		return nil, 0, fmt.Errorf("count feed: %w", err)
	}
	return posts, total, nil
}

// Delete removes a post. Likes and comments cascade.
func (r *PostRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ToggleLike flips the (post, user) like marker inside one transaction. The
// counter moves via an atomic increment/decrement in the same statement set,
// never through a read-modify-write from this process. The decrement is
// floored at 0.
func (r *PostRepository) ToggleLike(ctx context.Context, postID, userID string) (models.LikeAction, int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", 0, fmt.Errorf("begin toggle like: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var exists int
	err = tx.GetContext(ctx, &exists, `SELECT 1 FROM post_likes WHERE post_id = $1 AND user_id = $2 FOR UPDATE`, postID, userID)
	liked := err == nil
	if err != nil && err != sql.ErrNoRows {
		return "", 0, fmt.Errorf("check like marker: %w", err)
	}

	var action models.LikeAction
	var likes int
	if liked {
		if _, err := tx.ExecContext(ctx, `DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2`, postID, userID); err != nil {
			return "", 0, fmt.Errorf("remove like marker: %w", err)
		}
		if err := tx.GetContext(ctx, &likes, `UPDATE posts SET like_count = GREATEST(like_count - 1, 0) WHERE id = $1 RETURNING like_count`, postID); err != nil {
			return "", 0, fmt.Errorf("decrement like count: %w", err)
		}
		action = models.LikeActionUnliked
	} else {
		if _, err := tx.ExecContext(ctx, `INSERT INTO post_likes (post_id, user_id, created_at) VALUES ($1, $2, $3)`, postID, userID, time.Now().UTC()); err != nil {
			return "", 0, fmt.Errorf("insert like marker: %w", err)
		}
		if err := tx.GetContext(ctx, &likes, `UPDATE posts SET like_count = like_count + 1 WHERE id = $1 RETURNING like_count`, postID); err != nil {
			return "", 0, fmt.Errorf("increment like count: %w", err)
		}
		action = models.LikeActionLiked
	}

	if err := tx.Commit(); err != nil {
		return "", 0, fmt.Errorf("commit toggle like: %w", err)
	}
	return action, likes, nil
}

// AddComment appends a comment and bumps the post counter atomically.
func (r *PostRepository) AddComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add comment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO comments (id, post_id, author_id, author_name, content, created_at)
        VALUES (:id, :post_id, :author_id, :author_name, :content, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, comment); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE posts SET comment_count = comment_count + 1 WHERE id = $1`, comment.PostID); err != nil {
		return fmt.Errorf("increment comment count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add comment: %w", err)
	}
	return nil
}

// ListComments returns comments under a post, oldest first.
func (r *PostRepository) ListComments(ctx context.Context, postID string, page, pageSize int) ([]models.Comment, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`SELECT id, post_id, author_id, author_name, content, created_at
        FROM comments WHERE post_id = $1 ORDER BY created_at ASC LIMIT %d OFFSET %d`, pageSize, offset)

	var comments []models.Comment
	if err := r.db.SelectContext(ctx, &comments, query, postID); err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM comments WHERE post_id = $1`, postID); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}
	return comments, total, nil
}
