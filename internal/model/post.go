package model

import "time"

// PostType distinguishes text posts from image posts. A post created with an
// image is a photo post and may have no body text.
type PostType string

const (
	PostTypeBlog  PostType = "blog"
	PostTypePhoto PostType = "photo"
)

type Post struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"img_url,omitempty"`
	IsPublic  bool      `json:"is_public"`
	Type      PostType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Filled on reads only.
	Author   *Author   `json:"author,omitempty"`
	// Nil on listings, where it is left out; always an array from Get.
	Comments []Comment `json:"comments,omitzero"`
}

// OwnedBy reports whether userID owns the post.
func (p *Post) OwnedBy(userID string) bool {
	return userID != "" && p.OwnerID == userID
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"post_id"`
	OwnerID   string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	Author *Author `json:"author,omitempty"`
}

// PostPage is one page of a paginated post listing.
type PostPage struct {
	Posts       []Post `json:"posts"`
	Total       int    `json:"total"`
	Pages       int    `json:"pages"`
	CurrentPage int    `json:"current_page"`
	PerPage     int    `json:"per_page"`
}
