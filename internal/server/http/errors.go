package httpserver

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/flasky/internal/errs"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad request", Message: msg})
}

func (s *Server) unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: msg})
}

func (s *Server) forbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: msg})
}

func (s *Server) tooManyAttempts(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests", Message: "Too many failed logins, try again later"})
}

func (s *Server) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
}

// writeError maps service errors onto the API error contract.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		s.badRequest(w, ve.Msg)
	case errors.Is(err, errs.ErrAlreadyExists):
		s.badRequest(w, "resource already exists")
	case errors.Is(err, errs.ErrInvalidToken):
		s.badRequest(w, "The link is invalid or has expired.")
	case errors.Is(err, errs.ErrUnauthorized):
		s.unauthorized(w, "Invalid credentials")
	case errors.Is(err, errs.ErrUnconfirmed):
		s.forbidden(w, "Unconfirmed account")
	case errors.Is(err, errs.ErrForbidden):
		s.forbidden(w, "Insufficient permissions")
	case errors.Is(err, errs.ErrNotFound):
		s.notFound(w, r)
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}
