package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aite-labs/aite-api/internal/models"
	"github.com/aite-labs/aite-api/internal/service"
	appErrors "github.com/aite-labs/aite-api/pkg/errors"
	"github.com/aite-labs/aite-api/pkg/response"
)

// PostHandler exposes the social feed endpoints.
type PostHandler struct {
	posts *service.PostService
}

// NewPostHandler constructs PostHandler.
func NewPostHandler(posts *service.PostService) *PostHandler {
	return &PostHandler{posts: posts}
}

// Create godoc
// @Summary Create a post
// @Description Publish a post with optional base64 media
// @Tags Posts
// @Accept json
// @Produce json
// @Param payload body service.CreatePostRequest true "Post payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /posts [post]
func (h *PostHandler) Create(c *gin.Context) {
	var req service.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	post, err := h.posts.Create(c.Request.Context(), userInfoFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

// Feed godoc
// @Summary List the post feed
// @Tags Posts
// @Produce json
// @Param author query string false "Filter by author"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /posts [get]
func (h *PostHandler) Feed(c *gin.Context) {
	var filter models.FeedFilter
	filter.AuthorID = c.Query("author")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	posts, pagination, err := h.posts.Feed(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, posts, pagination)
}

// ToggleLike godoc
// @Summary Toggle a like on a post
// @Description Like the post, or remove the caller's existing like
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /posts/{id}/like [post]
func (h *PostHandler) ToggleLike(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.posts.ToggleLike(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AddComment godoc
// @Summary Comment on a post
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param payload body service.AddCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /posts/{id}/comments [post]
func (h *PostHandler) AddComment(c *gin.Context) {
	var req service.AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	comment, err := h.posts.AddComment(c.Request.Context(), c.Param("id"), userInfoFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// ListComments godoc
// @Summary List comments on a post
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /posts/{id}/comments [get]
func (h *PostHandler) ListComments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	comments, pagination, err := h.posts.ListComments(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, pagination)
}

// Delete godoc
// @Summary Delete a post
// @Description Authors can delete their own posts; admins can delete any
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /posts/{id} [delete]
func (h *PostHandler) Delete(c *gin.Context) {
	if err := h.posts.Delete(c.Request.Context(), c.Param("id"), userInfoFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
