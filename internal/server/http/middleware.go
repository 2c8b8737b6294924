package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/flasky/internal/errs"
	"github.com/and161185/flasky/internal/limiter"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logging logs method, path, status and duration of every request.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

// recoverer converts panics into 500 responses.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic",
					zap.Any("reason", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the request principal. Missing credentials yield the
// anonymous principal; bad credentials are rejected with 401.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, secret := credentials(r)
		password := identity != "" && secret != ""
		email, ip := strings.ToLower(identity), limiter.HashIP(r.RemoteAddr)

		if password && s.limiter != nil {
			ok, retry, err := s.limiter.Allow(r.Context(), email, ip)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			if !ok {
				s.tooManyAttempts(w, retry)
				return
			}
		}

		p, err := s.svc.Auth.Authenticate(r.Context(), identity, secret)
		if password && s.limiter != nil {
			s.recordAttempt(r, email, ip, err)
		}
		if errors.Is(err, errs.ErrUnauthorized) {
			s.unauthorized(w, "Invalid credentials")
			return
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.svc.Auth.Ping(r.Context(), p); err != nil {
			s.log.Warn("record last seen", zap.Error(err))
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (s *Server) recordAttempt(r *http.Request, email string, ip []byte, authErr error) {
	switch {
	case authErr == nil:
		if err := s.limiter.Success(r.Context(), email, ip); err != nil {
			s.log.Warn("limiter success", zap.Error(err))
		}
	case errors.Is(authErr, errs.ErrUnauthorized):
		blocked, dur, err := s.limiter.Failure(r.Context(), email, ip)
		if err != nil {
			s.log.Warn("limiter failure", zap.Error(err))
			return
		}
		if blocked {
			s.log.Warn("login blocked", zap.String("email", email), zap.Duration("for", dur))
		}
	}
}

// requireConfirmed blocks signed-in principals whose account is unconfirmed.
func (s *Server) requireConfirmed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromCtx(r.Context())
		if !p.IsAnonymous() && !p.Confirmed() {
			s.forbidden(w, "Unconfirmed account")
			return
		}
		next.ServeHTTP(w, r)
	})
}
