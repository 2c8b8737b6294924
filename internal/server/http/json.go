package httpserver

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/service"
)

const disabledCommentHTML = "<i>This comment has been disabled by a moderator.</i>"

// links builds absolute URLs relative to the request host.
type links struct {
	base string
}

func linksFor(r *http.Request) links {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return links{base: scheme + "://" + r.Host}
}

func (l links) api(format string, args ...any) string {
	return l.base + "/api/v1" + fmt.Sprintf(format, args...)
}

func (l links) post(id uuid.UUID) string    { return l.api("/posts/%s", id) }
func (l links) comment(id uuid.UUID) string { return l.api("/comments/%s", id) }
func (l links) user(id uuid.UUID) string    { return l.api("/users/%s", id) }

type postJSON struct {
	URL          string    `json:"url"`
	Body         string    `json:"body"`
	BodyHTML     string    `json:"body_html"`
	Timestamp    time.Time `json:"timestamp"`
	AuthorURL    string    `json:"author_url"`
	CommentsURL  string    `json:"comments_url"`
	CommentCount int       `json:"comment_count"`
}

func (l links) postJSON(p model.Post) postJSON {
	return postJSON{
		URL:          l.post(p.ID),
		Body:         p.Body,
		BodyHTML:     p.BodyHTML,
		Timestamp:    p.CreatedAt,
		AuthorURL:    l.user(p.AuthorID),
		CommentsURL:  l.post(p.ID) + "/comments",
		CommentCount: p.Comments,
	}
}

type commentJSON struct {
	URL       string    `json:"url"`
	PostURL   string    `json:"post_url"`
	Body      string    `json:"body"`
	BodyHTML  string    `json:"body_html"`
	Timestamp time.Time `json:"timestamp"`
	AuthorURL string    `json:"author_url"`
	Disabled  bool      `json:"disabled"`
}

// commentJSON hides the text of disabled comments from non-moderators.
func (l links) commentJSON(c model.Comment, viewer model.Principal) commentJSON {
	out := commentJSON{
		URL:       l.comment(c.ID),
		PostURL:   l.post(c.PostID),
		Body:      c.Body,
		BodyHTML:  c.BodyHTML,
		Timestamp: c.CreatedAt,
		AuthorURL: l.user(c.AuthorID),
		Disabled:  c.Disabled,
	}
	if c.Disabled && !viewer.Can(model.PermModerateComments) {
		out.Body = ""
		out.BodyHTML = disabledCommentHTML
	}
	return out
}

type userJSON struct {
	URL              string    `json:"url"`
	Username         string    `json:"username"`
	Name             string    `json:"name,omitempty"`
	Location         string    `json:"location,omitempty"`
	AboutMe          string    `json:"about_me,omitempty"`
	MemberSince      time.Time `json:"member_since"`
	LastSeen         time.Time `json:"last_seen"`
	PostsURL         string    `json:"posts_url"`
	FollowedPostsURL string    `json:"followed_posts_url"`
	PostCount        int       `json:"post_count"`
	Avatar           string    `json:"avatar"`
}

func (l links) userJSON(u model.User, postCount int) userJSON {
	return userJSON{
		URL:              l.user(u.ID),
		Username:         u.Username,
		Name:             u.Name,
		Location:         u.Location,
		AboutMe:          u.AboutMe,
		MemberSince:      u.MemberSince,
		LastSeen:         u.LastSeen,
		PostsURL:         l.user(u.ID) + "/posts",
		FollowedPostsURL: l.user(u.ID) + "/timeline",
		PostCount:        postCount,
		Avatar:           u.Gravatar(100, true),
	}
}

type followJSON struct {
	URL       string    `json:"url"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

func (l links) followJSON(f model.FollowEntry) followJSON {
	return followJSON{URL: l.user(f.User.ID), Username: f.User.Username, Timestamp: f.Since}
}

// pageLinks returns the prev and next URLs of a listing, nil when absent.
func pageLinks[T any](r *http.Request, l links, pg model.Page[T]) (prev, next *string) {
	at := func(n int) *string {
		q := url.Values{}
		for k, v := range r.URL.Query() {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		u := l.base + r.URL.Path + "?" + q.Encode()
		return &u
	}
	if pg.HasPrev() {
		prev = at(min(pg.Page-1, pg.Pages()))
	}
	if pg.HasNext() {
		next = at(pg.Page + 1)
	}
	return prev, next
}

// listing renders a page as {key: items, prev, next, count}.
func listing[T, J any](r *http.Request, l links, key string, pg model.Page[T], conv func(T) J) map[string]any {
	items := make([]J, 0, len(pg.Items))
	for _, it := range pg.Items {
		items = append(items, conv(it))
	}
	prev, next := pageLinks(r, l, pg)
	return map[string]any{
		key:     items,
		"prev":  prev,
		"next":  next,
		"count": pg.Total,
	}
}

// pageParam reads ?page=, defaulting to 1. With allowLast, -1 is passed
// through to address the last page.
func pageParam(r *http.Request, allowLast bool) int {
	n, err := strconv.Atoi(r.URL.Query().Get("page"))
	switch {
	case err != nil:
		return 1
	case allowLast && n == service.LastPage:
		return n
	case n < 1:
		return 1
	}
	return n
}

func idParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.FromString(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
