package model

import (
	"math"
	"time"

	"github.com/and161185/flasky/internal/markup"
	"github.com/gofrs/uuid/v5"
)

// Post is a blog article.
type Post struct {
	ID        uuid.UUID
	Body      string
	BodyHTML  string // derived from Body, see SetBody
	CreatedAt time.Time
	AuthorID  uuid.UUID
	Comments  int // comment count, filled by read queries
}

// SetBody replaces the markdown body and recomputes its sanitized HTML.
func (p *Post) SetBody(body string) {
	p.Body = body
	p.BodyHTML = markup.Post(body)
}

// Comment is a reader's reply to a post.
type Comment struct {
	ID        uuid.UUID
	Body      string
	BodyHTML  string // derived from Body, see SetBody
	CreatedAt time.Time
	Disabled  bool // hidden by a moderator
	AuthorID  uuid.UUID
	PostID    uuid.UUID
}

// SetBody replaces the markdown body and recomputes its sanitized HTML.
func (c *Comment) SetBody(body string) {
	c.Body = body
	c.BodyHTML = markup.Comment(body)
}

// Page is one slice of a paginated listing. Page numbers start at 1.
type Page[T any] struct {
	Items   []T
	Page    int
	PerPage int
	Total   int
}

// Pages returns the number of pages, at least 1.
func (p Page[T]) Pages() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// HasPrev reports whether a previous page exists.
func (p Page[T]) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a following page exists.
func (p Page[T]) HasNext() bool { return p.Page < p.Pages() }

// Offset converts a 1-based page number into a row offset.
// Pages past the representable range saturate instead of wrapping negative.
func Offset(page, perPage int) int {
	if page < 1 || perPage <= 0 {
		return 0
	}
	if page-1 > math.MaxInt/perPage {
		return math.MaxInt / perPage * perPage
	}
	return (page - 1) * perPage
}
