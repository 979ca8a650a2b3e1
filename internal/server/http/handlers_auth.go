package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionUser struct {
	ID       uuid.UUID  `json:"id"`
	Username string     `json:"username,omitempty"`
	Role     model.Role `json:"role"`
}

type sessionResponse struct {
	Success      bool        `json:"success"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    time.Time   `json:"expiresAt"`
	User         sessionUser `json:"user"`
}

type verifyResponse struct {
	Success bool        `json:"success"`
	User    sessionUser `json:"user"`
}

type okResponse struct {
	Success bool `json:"success"`
}

func newSessionResponse(t model.Tokens, u *model.User) sessionResponse {
	return sessionResponse{
		Success:      true,
		Token:        t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    t.AccessExpiresAt,
		User:         sessionUser{ID: u.ID, Username: u.Username, Role: u.Role},
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err, msgInvalidCredentials)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		fields := map[string]string{}
		if req.Username == "" {
			fields["username"] = "is required"
		}
		if req.Password == "" {
			fields["password"] = "is required"
		}
		writeError(w, r, s.log, &errs.ValidationError{Fields: fields}, msgInvalidCredentials)
		return
	}

	tok, u, err := s.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, s.log, err, msgInvalidCredentials)
		return
	}
	s.cookies.setSession(w, tok)
	respondJSON(w, http.StatusOK, newSessionResponse(tok, u))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	p, err := s.guard.RequireAuth(TokenFromRequest(r))
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, verifyResponse{Success: true, User: sessionUser{ID: p.UserID, Role: p.Role}})
}

// presentedRefreshToken reads the refresh cookie, falling back to the JSON body.
func presentedRefreshToken(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if r.ContentLength == 0 {
		return ""
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented := presentedRefreshToken(w, r)
	tok, u, err := s.sessions.Refresh(r.Context(), presented)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) || errors.Is(err, errs.ErrTokenReused) {
			s.cookies.clearSession(w)
		}
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	s.cookies.setSession(w, tok)
	respondJSON(w, http.StatusOK, newSessionResponse(tok, u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor := uuid.Nil
	if p, err := s.guard.RequireAuth(TokenFromRequest(r)); err == nil {
		actor = p.UserID
	}
	if err := s.sessions.Logout(r.Context(), actor, presentedRefreshToken(w, r)); err != nil {
		s.log.Warn("logout revoke failed", zap.Error(err))
	}
	s.cookies.clearSession(w)
	respondJSON(w, http.StatusOK, okResponse{Success: true})
}
