// Package httpserver exposes the blog services over a JSON HTTP API.
package httpserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/and161185/flasky/internal/limiter"
	"github.com/and161185/flasky/internal/service"
)

// Services bundles the application services served over HTTP.
type Services struct {
	Auth     service.AuthService
	Posts    service.PostService
	Comments service.CommentService
	Social   service.SocialService
	Users    service.UserService
}

// Server routes HTTP requests to the services.
type Server struct {
	svc     Services
	log     *zap.Logger
	limiter limiter.Limiter
}

// Option configures Server.
type Option func(*Server)

// WithLimiter throttles failed password logins.
func WithLimiter(l limiter.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// New constructs Server.
func New(svc Services, log *zap.Logger, opts ...Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{svc: svc, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the fully wired handler chain.
func (s *Server) Handler() http.Handler {
	auth := http.NewServeMux()
	auth.HandleFunc("POST /auth/register", s.register)
	auth.HandleFunc("GET /auth/confirm/{token}", s.confirm)
	auth.HandleFunc("POST /auth/confirm", s.resendConfirmation)
	auth.HandleFunc("POST /auth/change-password", s.changePassword)
	auth.HandleFunc("POST /auth/reset", s.requestReset)
	auth.HandleFunc("POST /auth/reset/{token}", s.resetPassword)
	auth.HandleFunc("POST /auth/change-email", s.requestEmailChange)
	auth.HandleFunc("GET /auth/change-email/{token}", s.changeEmail)
	auth.HandleFunc("/auth/", s.notFound)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/v1/token", s.issueToken)
	api.HandleFunc("GET /api/v1/me", s.me)
	api.HandleFunc("PUT /api/v1/profile", s.editProfile)

	api.HandleFunc("GET /api/v1/posts", s.listPosts)
	api.HandleFunc("POST /api/v1/posts", s.createPost)
	api.HandleFunc("GET /api/v1/posts/{id}", s.getPost)
	api.HandleFunc("PUT /api/v1/posts/{id}", s.editPost)
	api.HandleFunc("GET /api/v1/posts/{id}/comments", s.listPostComments)
	api.HandleFunc("POST /api/v1/posts/{id}/comments", s.createComment)

	api.HandleFunc("GET /api/v1/comments", s.listComments)
	api.HandleFunc("GET /api/v1/comments/{id}", s.getComment)
	api.HandleFunc("PUT /api/v1/comments/{id}/enable", s.enableComment)
	api.HandleFunc("PUT /api/v1/comments/{id}/disable", s.disableComment)
	api.HandleFunc("GET /api/v1/moderate", s.moderate)

	api.HandleFunc("GET /api/v1/users/{id}", s.getUser)
	api.HandleFunc("PUT /api/v1/users/{id}", s.adminEditUser)
	api.HandleFunc("DELETE /api/v1/users/{id}", s.deleteUser)
	api.HandleFunc("GET /api/v1/users/{id}/posts", s.listUserPosts)
	api.HandleFunc("GET /api/v1/users/{id}/timeline", s.timeline)
	api.HandleFunc("GET /api/v1/users/{id}/followers", s.followers)
	api.HandleFunc("GET /api/v1/users/{id}/followed", s.followed)
	api.HandleFunc("POST /api/v1/users/{id}/follow", s.follow)
	api.HandleFunc("DELETE /api/v1/users/{id}/follow", s.unfollow)
	api.HandleFunc("/api/v1/", s.notFound)

	root := http.NewServeMux()
	root.Handle("/auth/", s.authenticate(auth))
	root.Handle("/api/v1/", s.authenticate(s.requireConfirmed(api)))
	root.HandleFunc("/", s.notFound)

	return s.recoverer(s.logging(root))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type message struct {
	Message string `json:"message"`
}

// decode reads a JSON request body; a failure is reported as 400.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.badRequest(w, "invalid JSON body")
		return false
	}
	return true
}
