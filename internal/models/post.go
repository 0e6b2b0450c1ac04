package models

import "time"

// Post is a community feed entry with optional media attachment. The like and
// comment counters are maintained by atomic SQL increments, never by
// application-side read-modify-write.
type Post struct {
	ID           string    `db:"id" json:"id"`
	AuthorID     string    `db:"author_id" json:"author_id"`
	AuthorName   string    `db:"author_name" json:"author_name"`
	Content      string    `db:"content" json:"content"`
	MediaURL     *string   `db:"media_url" json:"media_url,omitempty"`
	MediaType    *string   `db:"media_type" json:"media_type,omitempty"`
	LikeCount    int       `db:"like_count" json:"like_count"`
	CommentCount int       `db:"comment_count" json:"comment_count"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LikeAction reports which way a toggle went.
type LikeAction string

const (
	LikeActionLiked   LikeAction = "liked"
	LikeActionUnliked LikeAction = "unliked"
)

// ToggleLikeResult carries the toggle outcome and the resulting counter.
type ToggleLikeResult struct {
	Action LikeAction `json:"action"`
	Likes  int        `json:"likes"`
}

// Comment is an append-only reply under a post.
type Comment struct {
	ID         string    `db:"id" json:"id"`
	PostID     string    `db:"post_id" json:"post_id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// FeedFilter scopes feed listings.
type FeedFilter struct {
	AuthorID string
	Page     int
	PageSize int
}
