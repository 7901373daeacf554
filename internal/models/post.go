package models

import "time"

// Post is one entry in the community feed.
type Post struct {
	ID        string    `db:"id" json:"id"`
	AuthorID  string    `db:"author_id" json:"author_id"`
	Title     string    `db:"title" json:"title"`
	Content   string    `db:"content" json:"content"`
	Pinned    bool      `db:"pinned" json:"pinned"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PostDetail includes the author's display name for feed rendering.
type PostDetail struct {
	Post
	AuthorName string `db:"author_name" json:"author_name"`
}

// PostFilter captures filtering criteria for the feed. Pinned posts sort
// first regardless of the requested order.
type PostFilter struct {
	ListParams
	AuthorID string
}
