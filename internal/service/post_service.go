package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
	"github.com/aite-labs/aite-api/pkg/media"
)

type postRepository interface {
	Create(ctx context.Context, post *models.Post) error
	FindByID(ctx context.Context, id string) (*models.Post, error)
	ListFeed(ctx context.Context, filter models.FeedFilter) ([]models.Post, int, error)
	Delete(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, postID, userID string) (models.LikeAction, int, error)
	AddComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, postID string, page, pageSize int) ([]models.Comment, int, error)
}

type mediaUploader interface {
	UploadBase64(ctx context.Context, data string) (*media.UploadResult, error)
}

// CreatePostRequest holds the payload for publishing a feed post.
type CreatePostRequest struct {
	Content   string `json:"content"`
	MediaData string `json:"media_data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// AddCommentRequest holds the payload for commenting on a post.
type AddCommentRequest struct {
	Content string `json:"content" validate:"required"`
}

// feedCachePrefix namespaces cached feed pages.
const feedCachePrefix = "feed:"

// PostService handles the community feed use-cases.
type PostService struct {
	repo      postRepository
	uploader  mediaUploader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPostService constructs the post service. The uploader may be nil when
// media uploads are disabled.
func NewPostService(repo postRepository, uploader mediaUploader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PostService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostService{repo: repo, uploader: uploader, cache: cache, validator: validate, logger: logger}
}

// Create publishes a post, uploading the optional media attachment first.
func (s *PostService) Create(ctx context.Context, author models.UserInfo, req CreatePostRequest) (*models.Post, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" && req.MediaData == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "post needs content or an attachment")
	}

	post := &models.Post{
		AuthorID:   author.ID,
		AuthorName: author.FullName,
		Content:    content,
	}

	if req.MediaData != "" {
		if s.uploader == nil {
			return nil, appErrors.Clone(appErrors.ErrUnavailable, "media uploads are not configured")
		}
		result, err := s.uploader.UploadBase64(ctx, req.MediaData)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to upload attachment")
		}
		post.MediaURL = &result.SecureURL
		mediaType := req.MediaType
		if mediaType == "" {
			mediaType = result.Format
		}
		post.MediaType = &mediaType
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create post")
	}
	s.invalidateFeed(ctx)
	return post, nil
}

// Feed lists posts newest first, serving cached pages when possible.
func (s *PostService) Feed(ctx context.Context, filter models.FeedFilter) ([]models.Post, *models.Pagination, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	type cachedFeed struct {
		Posts []models.Post     `json:"posts"`
		Meta  models.Pagination `json:"meta"`
	}

	key := fmt.Sprintf("%sauthor=%s:page=%d:size=%d", feedCachePrefix, filter.AuthorID, page, size)
	if s.cache.Enabled() {
		var cached cachedFeed
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Posts, &cached.Meta, nil
		}
	}

	posts, total, err := s.repo.ListFeed(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list feed")
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}

	s.cache.Set(ctx, key, cachedFeed{Posts: posts, Meta: *pagination})
	return posts, pagination, nil
}

// ToggleLike flips the caller's like for the post and returns the new count.
// Two consecutive toggles by the same user restore the original state.
func (s *PostService) ToggleLike(ctx context.Context, postID, userID string) (*models.ToggleLikeResult, error) {
	if _, err := s.repo.FindByID(ctx, postID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}

	action, likes, err := s.repo.ToggleLike(ctx, postID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle like")
	}
	s.invalidateFeed(ctx)
	return &models.ToggleLikeResult{Action: action, Likes: likes}, nil
}

// AddComment appends a comment under the post.
func (s *PostService) AddComment(ctx context.Context, postID string, author models.UserInfo, req AddCommentRequest) (*models.Comment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid comment payload")
	}
	if _, err := s.repo.FindByID(ctx, postID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}

	comment := &models.Comment{
		PostID:     postID,
		AuthorID:   author.ID,
		AuthorName: author.FullName,
		Content:    strings.TrimSpace(req.Content),
	}
	if err := s.repo.AddComment(ctx, comment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add comment")
	}
	s.invalidateFeed(ctx)
	return comment, nil
}

// ListComments returns comments for a post, oldest first.
func (s *PostService) ListComments(ctx context.Context, postID string, page, pageSize int) ([]models.Comment, *models.Pagination, error) {
	if _, err := s.repo.FindByID(ctx, postID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	comments, total, err := s.repo.ListComments(ctx, postID, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list comments")
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return comments, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Delete removes a post. Authors may delete their own posts; admins any.
func (s *PostService) Delete(ctx context.Context, postID string, actor models.UserInfo) error {
	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "post not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load post")
	}
	if actor.Role != models.RoleAdmin && post.AuthorID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "cannot delete another member's post")
	}
	if err := s.repo.Delete(ctx, postID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete post")
	}
	s.invalidateFeed(ctx)
	return nil
}

func (s *PostService) invalidateFeed(ctx context.Context) {
	s.cache.Invalidate(ctx, feedCachePrefix+"*")
}
