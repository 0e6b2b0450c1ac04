package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aite-labs/aite-api/internal/models"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
	"github.com/aite-labs/aite-api/pkg/media"
)

type postRepoStub struct {
	posts    map[string]*models.Post
	likes    map[string]map[string]bool
	comments map[string][]models.Comment
}

func newPostRepoStub() *postRepoStub {
	return &postRepoStub{
		posts:    map[string]*models.Post{},
		likes:    map[string]map[string]bool{},
		comments: map[string][]models.Comment{},
	}
}

func (r *postRepoStub) Create(ctx context.Context, post *models.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	clone := *post
	r.posts[post.ID] = &clone
	return nil
}

func (r *postRepoStub) FindByID(ctx context.Context, id string) (*models.Post, error) {
	post, ok := r.posts[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *post
	return &clone, nil
}

func (r *postRepoStub) ListFeed(ctx context.Context, filter models.FeedFilter) ([]models.Post, int, error) {
	var posts []models.Post
	for _, post := range r.posts {
		if filter.AuthorID != "" && post.AuthorID != filter.AuthorID {
			continue
		}
		posts = append(posts, *post)
	}
	return posts, len(posts), nil
}

func (r *postRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := r.posts[id]; !ok {
		return sql.ErrNoRows
	}
	delete(r.posts, id)
	return nil
}

func (r *postRepoStub) ToggleLike(ctx context.Context, postID, userID string) (models.LikeAction, int, error) {
	post := r.posts[postID]
	if r.likes[postID] == nil {
		r.likes[postID] = map[string]bool{}
	}
	if r.likes[postID][userID] {
		delete(r.likes[postID], userID)
		post.LikeCount--
		return models.LikeActionUnliked, post.LikeCount, nil
	}
	r.likes[postID][userID] = true
	post.LikeCount++
	return models.LikeActionLiked, post.LikeCount, nil
}

func (r *postRepoStub) AddComment(ctx context.Context, comment *models.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	r.comments[comment.PostID] = append(r.comments[comment.PostID], *comment)
	r.posts[comment.PostID].CommentCount++
	return nil
}

func (r *postRepoStub) ListComments(ctx context.Context, postID string, page, pageSize int) ([]models.Comment, int, error) {
	comments := r.comments[postID]
	return comments, len(comments), nil
}

type uploaderStub struct {
	result *media.UploadResult
	err    error
	calls  int
}

func (u *uploaderStub) UploadBase64(ctx context.Context, data string) (*media.UploadResult, error) {
	u.calls++
	if u.err != nil {
		return nil, u.err
	}
	return u.result, nil
}

func newPostServiceForTest(uploader mediaUploader) (*PostService, *postRepoStub) {
	repo := newPostRepoStub()
	return NewPostService(repo, uploader, nil, nil, zap.NewNop()), repo
}

var testAuthor = models.UserInfo{ID: "u1", FullName: "Ali", Role: models.RoleMember}

func TestPostCreateRequiresContentOrMedia(t *testing.T) {
	svc, _ := newPostServiceForTest(nil)

	_, err := svc.Create(context.Background(), testAuthor, CreatePostRequest{Content: "   "})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPostCreateWithMedia(t *testing.T) {
	uploader := &uploaderStub{result: &media.UploadResult{SecureURL: "https://cdn.example/img.png", Format: "png"}}
	svc, repo := newPostServiceForTest(uploader)

	post, err := svc.Create(context.Background(), testAuthor, CreatePostRequest{MediaData: "data:image/png;base64,AAAA"})
	require.NoError(t, err)
	require.NotNil(t, post.MediaURL)
	assert.Equal(t, "https://cdn.example/img.png", *post.MediaURL)
	assert.Equal(t, 1, uploader.calls)
	assert.Len(t, repo.posts, 1)
}

func TestPostCreateMediaWithoutUploader(t *testing.T) {
	svc, _ := newPostServiceForTest(nil)

	_, err := svc.Create(context.Background(), testAuthor, CreatePostRequest{MediaData: "data:image/png;base64,AAAA"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErrors.FromError(err).Code)
}

func TestToggleLikeIsSelfInverse(t *testing.T) {
	svc, repo := newPostServiceForTest(nil)
	post, err := svc.Create(context.Background(), testAuthor, CreatePostRequest{Content: "hello"})
	require.NoError(t, err)

	first, err := svc.ToggleLike(context.Background(), post.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.LikeActionLiked, first.Action)
	assert.Equal(t, 1, first.Likes)

	second, err := svc.ToggleLike(context.Background(), post.ID, "u2")
	require.NoError(t, err)
	assert.Equal(t, models.LikeActionUnliked, second.Action)
	assert.Equal(t, 0, second.Likes)
	assert.Equal(t, 0, repo.posts[post.ID].LikeCount)
}

func TestToggleLikeUnknownPost(t *testing.T) {
	svc, _ := newPostServiceForTest(nil)

	_, err := svc.ToggleLike(context.Background(), "missing", "u2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAddCommentBumpsCounter(t *testing.T) {
	svc, repo := newPostServiceForTest(nil)
	post, err := svc.Create(context.Background(), testAuthor, CreatePostRequest{Content: "hello"})
	require.NoError(t, err)

	comment, err := svc.AddComment(context.Background(), post.ID, testAuthor, AddCommentRequest{Content: "nice"})
	require.NoError(t, err)
	assert.Equal(t, "nice", comment.Content)
	assert.Equal(t, 1, repo.posts[post.ID].CommentCount)
}

func TestDeletePostAuthorization(t *testing.T) {
	svc, _ := newPostServiceForTest(nil)
	post, err := svc.Create(context.Background(), testAuthor, CreatePostRequest{Content: "hello"})
	require.NoError(t, err)

	stranger := models.UserInfo{ID: "u9", Role: models.RoleMember}
	err = svc.Delete(context.Background(), post.ID, stranger)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	admin := models.UserInfo{ID: "admin", Role: models.RoleAdmin}
	require.NoError(t, svc.Delete(context.Background(), post.ID, admin))
}
