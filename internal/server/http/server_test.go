package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/flasky/internal/limiter"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/and161185/flasky/internal/repository/memory"
	"github.com/and161185/flasky/internal/service"
	"github.com/and161185/flasky/internal/token"
)

type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string // "template/to" -> token
}

func (m *captureMailer) Send(_ context.Context, to, _, tmpl string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := data["Token"].(string); ok {
		m.tokens[tmpl+"/"+to] = tok
	}
}

func (m *captureMailer) token(t *testing.T, tmpl, to string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[tmpl+"/"+to]
	require.True(t, ok, "no %s mail to %s", tmpl, to)
	return tok
}

type testServer struct {
	srv   *httptest.Server
	store repository.Store
	mail  *captureMailer
}

// cred is a Basic (email, password) or bearer (token only) credential.
type cred struct {
	user, pass string
	bearer     string
}

var anon = cred{}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()
	store := memory.New()
	require.NoError(t, service.NewRoleService(store.Roles).SeedRoles(context.Background(), model.DefaultRoles))

	mail := &captureMailer{tokens: map[string]string{}}
	codec := token.NewCodec([]byte("test-secret"))
	auth := service.NewAuthService(store.Users, store.Roles, codec, mail, service.AuthOptions{
		AdminEmail: "admin@example.com",
		TokenTTL:   time.Hour,
	})
	svc := Services{
		Auth:     auth,
		Posts:    service.NewPostService(store.Posts, store.Users, 2),
		Comments: service.NewCommentService(store.Comments, store.Posts, 2),
		Social:   service.NewSocialService(store.Users, store.Follows, 50),
		Users:    service.NewUserService(store.Users, store.Roles, store.Posts),
	}
	srv := httptest.NewServer(New(svc, zaptest.NewLogger(t), opts...).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, mail: mail}
}

func (ts *testServer) do(t *testing.T, method, path string, c cred, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	url := path
	if !strings.HasPrefix(path, "http") {
		url = ts.srv.URL + path
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	switch {
	case c.bearer != "":
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	case c.user != "":
		req.SetBasicAuth(c.user, c.pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.ContentLength != 0 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

// signup registers a user over HTTP and marks the account confirmed.
func (ts *testServer) signup(t *testing.T, email, username string) (cred, string) {
	t.Helper()
	resp, body := ts.do(t, http.MethodPost, "/auth/register", anon, map[string]string{
		"email": email, "username": username, "password": "cat",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	ctx := context.Background()
	u, err := ts.store.Users.GetByEmail(ctx, email)
	require.NoError(t, err)
	u.Confirmed = true
	require.NoError(t, ts.store.Users.Update(ctx, u))
	return cred{user: email, pass: "cat"}, body["url"].(string)
}

func TestAnonymousAccess(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/posts", anon, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 0, body["count"])
	require.Nil(t, body["prev"])
	require.Nil(t, body["next"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/token", anon, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Invalid credentials", body["message"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/posts", anon, map[string]string{"body": "x"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Insufficient permissions", body["message"])
}

func TestBadCredentials(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.signup(t, "john@example.com", "john")

	resp, body := ts.do(t, http.MethodGet, "/api/v1/posts", cred{user: "john@example.com", pass: "dog"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", body["error"])
	require.Equal(t, "Invalid credentials", body["message"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/posts", cred{bearer: "not-a-token"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterAndConfirm(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john := cred{user: "john@example.com", pass: "cat"}

	resp, body := ts.do(t, http.MethodPost, "/auth/register", anon, map[string]string{
		"email": "john@example.com", "username": "john", "password": "cat",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "john", body["username"])
	require.Equal(t, body["url"], resp.Header.Get("Location"))

	resp, body = ts.do(t, http.MethodPost, "/auth/register", anon, map[string]string{
		"email": "john@example.com", "username": "johnny", "password": "cat",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Email already registered.", body["message"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/posts", john, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Unconfirmed account", body["message"])

	resp, body = ts.do(t, http.MethodGet, "/auth/confirm/bogus", john, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "The confirmation link is invalid or has expired.", body["message"])

	tok := ts.mail.token(t, service.MailConfirm, "john@example.com")
	resp, _ = ts.do(t, http.MethodGet, "/auth/confirm/"+tok, john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/posts", john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTokenAuthentication(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, _ := ts.signup(t, "john@example.com", "john")

	resp, body := ts.do(t, http.MethodGet, "/api/v1/token", john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 3600, body["expiration"])
	tok := body["token"].(string)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/me", cred{bearer: tok}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "john", body["username"])

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/me", cred{user: tok}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/token", cred{bearer: tok}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPostsAndComments(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, johnURL := ts.signup(t, "john@example.com", "john")
	susan, _ := ts.signup(t, "susan@example.com", "susan")

	resp, body := ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "post does not have a body", body["message"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": "body of the *blog* post"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	postURL := resp.Header.Get("Location")
	require.NotEmpty(t, postURL)
	require.Equal(t, postURL, body["url"])
	require.Contains(t, body["body_html"], "<em>blog</em>")
	require.Equal(t, johnURL, body["author_url"])

	resp, body = ts.do(t, http.MethodGet, postURL, john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "body of the *blog* post", body["body"])

	resp, _ = ts.do(t, http.MethodPut, postURL, susan, map[string]string{"body": "hijack"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPut, postURL, john, map[string]string{"body": "updated body"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "updated body", body["body"])

	resp, body = ts.do(t, http.MethodPost, postURL+"/comments", susan, map[string]string{"body": "Good [post](http://example.com)!"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, postURL, body["post_url"])
	require.Contains(t, body["body_html"], `rel="nofollow"`)

	resp, body = ts.do(t, http.MethodGet, postURL+"/comments", john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])
	require.Len(t, body["comments"], 1)

	resp, body = ts.do(t, http.MethodGet, postURL, john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["comment_count"])

	resp, body = ts.do(t, http.MethodGet, johnURL, susan, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["post_count"])
	require.Contains(t, body["avatar"], "https://secure.gravatar.com/avatar/")
}

func TestPagination(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, _ := ts.signup(t, "john@example.com", "john")

	for _, b := range []string{"one", "two", "three"} {
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": b})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	_, body := ts.do(t, http.MethodGet, "/api/v1/posts", john, nil)
	require.EqualValues(t, 3, body["count"])
	require.Len(t, body["posts"], 2)
	require.Nil(t, body["prev"])
	next, ok := body["next"].(string)
	require.True(t, ok)
	require.Contains(t, next, "page=2")

	_, body = ts.do(t, http.MethodGet, next, john, nil)
	require.Len(t, body["posts"], 1)
	require.NotNil(t, body["prev"])
	require.Nil(t, body["next"])
}

func TestPaginationPastTheEnd(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, johnURL := ts.signup(t, "john@example.com", "john")

	for _, b := range []string{"one", "two", "three"} {
		resp, _ := ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": b})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	for _, path := range []string{
		"/api/v1/posts?page=9223372036854775807",
		"/api/v1/posts?page=4611686018427387904",
		johnURL + "/posts?page=9223372036854775807",
		johnURL + "/timeline?page=9223372036854775807",
	} {
		resp, body := ts.do(t, http.MethodGet, path, john, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Empty(t, body["posts"], path)
		require.EqualValues(t, 3, body["count"], path)
		require.Nil(t, body["next"], path)
		prev, ok := body["prev"].(string)
		require.True(t, ok, path)
		require.Contains(t, prev, "page=2", path)
	}
}

func TestFollowAndTimeline(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, johnURL := ts.signup(t, "john@example.com", "john")
	susan, susanURL := ts.signup(t, "susan@example.com", "susan")

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": "from john"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, body := ts.do(t, http.MethodGet, susanURL+"/timeline", susan, nil)
	require.EqualValues(t, 0, body["count"])

	resp, _ = ts.do(t, http.MethodPost, johnURL+"/follow", susan, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPost, johnURL+"/follow", susan, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = ts.do(t, http.MethodGet, susanURL+"/timeline", susan, nil)
	require.EqualValues(t, 1, body["count"])

	_, body = ts.do(t, http.MethodGet, johnURL+"/followers", susan, nil)
	require.EqualValues(t, 1, body["count"])
	followers := body["followers"].([]any)
	require.Equal(t, "susan", followers[0].(map[string]any)["username"])

	resp, body = ts.do(t, http.MethodDelete, susanURL+"/follow", susan, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "You cannot unfollow yourself.", body["message"])

	resp, _ = ts.do(t, http.MethodDelete, johnURL+"/follow", susan, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = ts.do(t, http.MethodGet, susanURL+"/timeline", susan, nil)
	require.EqualValues(t, 0, body["count"])
}

func TestModeration(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, _ := ts.signup(t, "john@example.com", "john")
	admin, _ := ts.signup(t, "admin@example.com", "admin")

	resp, _ := ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": "post"})
	postURL := resp.Header.Get("Location")
	resp, _ = ts.do(t, http.MethodPost, postURL+"/comments", john, map[string]string{"body": "rude words"})
	commentURL := resp.Header.Get("Location")

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/moderate", john, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodPut, commentURL+"/disable", john, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPut, commentURL+"/disable", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["disabled"])
	require.Equal(t, "rude words", body["body"])

	_, body = ts.do(t, http.MethodGet, commentURL, john, nil)
	require.Equal(t, "", body["body"])
	require.Equal(t, disabledCommentHTML, body["body_html"])

	_, body = ts.do(t, http.MethodGet, "/api/v1/moderate", admin, nil)
	require.EqualValues(t, 1, body["count"])

	resp, body = ts.do(t, http.MethodPut, commentURL+"/enable", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["disabled"])
}

func TestAdminUserManagement(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, johnURL := ts.signup(t, "john@example.com", "john")
	admin, _ := ts.signup(t, "admin@example.com", "admin")

	resp, _ := ts.do(t, http.MethodPut, johnURL, john, map[string]string{"role": "Administrator"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := ts.do(t, http.MethodPut, "/api/v1/profile", john, map[string]string{"location": "Seattle"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Seattle", body["location"])

	resp, body = ts.do(t, http.MethodPut, johnURL, admin, map[string]string{"name": "John Doe"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "John Doe", body["name"])

	resp, _ = ts.do(t, http.MethodDelete, johnURL, admin, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, johnURL, admin, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	for _, path := range []string{
		"/nowhere",
		"/api/v1/nowhere",
		"/api/v1/posts/not-a-uuid",
		"/api/v1/posts/6ba7b810-9dad-11d1-80b4-00c04fd430c8",
	} {
		resp, body := ts.do(t, http.MethodGet, path, anon, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		require.Equal(t, "not found", body["error"], path)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	ts.signup(t, "john@example.com", "john")

	resp, _ := ts.do(t, http.MethodPost, "/auth/reset", anon, map[string]string{"email": "john@example.com"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	tok := ts.mail.token(t, service.MailResetPassword, "john@example.com")

	resp, _ = ts.do(t, http.MethodPost, "/auth/reset/"+tok, anon, map[string]string{
		"email": "john@example.com", "password": "dog",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/me", cred{user: "john@example.com", pass: "cat"}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/me", cred{user: "john@example.com", pass: "dog"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginLockout(t *testing.T) {
	t.Parallel()
	lim := limiter.NewMemory(limiter.Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Minute})
	ts := newTestServer(t, WithLimiter(lim))
	john, _ := ts.signup(t, "john@example.com", "john")
	wrong := cred{user: "john@example.com", pass: "dog"}

	resp, _ := ts.do(t, http.MethodGet, "/api/v1/me", john, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	for i := 0; i < 2; i++ {
		resp, _ = ts.do(t, http.MethodGet, "/api/v1/me", wrong, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	resp, body := ts.do(t, http.MethodGet, "/api/v1/me", john, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "too many requests", body["error"])
	require.Equal(t, "60", resp.Header.Get("Retry-After"))

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/posts", anon, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEditPostChecksPermissionFirst(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)
	john, _ := ts.signup(t, "john@example.com", "john")
	const ghost = "/api/v1/posts/6f1c2d4e-8a3b-4c5d-9e7f-0a1b2c3d4e5f"

	resp, body := ts.do(t, http.MethodPut, ghost, anon, map[string]string{})
	require.Equal(t, http.StatusForbidden, resp.StatusCode, body)

	resp, _ = ts.do(t, http.MethodPut, ghost, john, map[string]string{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/posts", john, map[string]string{"body": "keep me"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = ts.do(t, http.MethodPut, body["url"].(string), john, map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "keep me", body["body"])
}
