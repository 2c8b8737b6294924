package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/flasky/internal/errs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.svc.Auth.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l := linksFor(r)
	w.Header().Set("Location", l.user(u.ID))
	writeJSON(w, http.StatusCreated, l.userJSON(*u, 0))
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Auth.Confirm(r.Context(), PrincipalFromCtx(r.Context()), r.PathValue("token"))
	if errors.Is(err, errs.ErrInvalidToken) {
		s.badRequest(w, "The confirmation link is invalid or has expired.")
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"You have confirmed your account. Thanks!"})
}

func (s *Server) resendConfirmation(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.ResendConfirmation(r.Context(), PrincipalFromCtx(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, message{"A new confirmation email has been sent to you by email."})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	Password    string `json:"password"`
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.svc.Auth.ChangePassword(r.Context(), PrincipalFromCtx(r.Context()), req.OldPassword, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Your password has been updated."})
}

type resetRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) requestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, message{"An email with instructions to reset your password has been sent to you."})
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Auth.ResetPassword(r.Context(), r.PathValue("token"), req.Email, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Your password has been updated."})
}

type emailChangeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) requestEmailChange(w http.ResponseWriter, r *http.Request) {
	var req emailChangeRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.svc.Auth.RequestEmailChange(r.Context(), PrincipalFromCtx(r.Context()), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, message{"An email with instructions to confirm your new email address has been sent to you."})
}

func (s *Server) changeEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Auth.ChangeEmail(r.Context(), PrincipalFromCtx(r.Context()), r.PathValue("token")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, message{"Your email address has been updated."})
}

type tokenResponse struct {
	Token      string `json:"token"`
	Expiration int64  `json:"expiration"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.svc.Auth.IssueToken(r.Context(), PrincipalFromCtx(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok.Token, Expiration: int64(tok.Expiration.Seconds())})
}
