package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
)

// userView is the admin representation of an account. It never carries the hash.
type userView struct {
	ID        uuid.UUID  `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	IsActive  bool       `json:"isActive"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastLogin *time.Time `json:"lastLogin"`
}

func toView(u *model.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		LastLogin: u.LastLogin,
	}
}

type userResponse struct {
	Success bool     `json:"success"`
	User    userView `json:"user"`
}

type usersResponse struct {
	Success bool       `json:"success"`
	Users   []userView `json:"users"`
}

type revokeResponse struct {
	Success bool  `json:"success"`
	Revoked int64 `json:"revoked"`
}

// principal is set by Guard.Authenticate on every admin route.
func principal(r *http.Request) model.Principal {
	p, _ := PrincipalFromCtx(r.Context())
	return p
}

func userID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil || id.IsNil() {
		return uuid.Nil, errs.NewValidation("id", "must be a UUID")
	}
	return id, nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.accounts.List(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		out = append(out, toView(&users[i]))
	}
	respondJSON(w, http.StatusOK, usersResponse{Success: true, Users: out})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in model.NewUser
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	u, err := s.accounts.Create(r.Context(), principal(r), in)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	respondJSON(w, http.StatusCreated, userResponse{Success: true, User: toView(u)})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	u, err := s.accounts.Get(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, userResponse{Success: true, User: toView(u)})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	var upd model.UserUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	u, err := s.accounts.Update(r.Context(), principal(r), id, upd)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, userResponse{Success: true, User: toView(u)})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	if err := s.accounts.Delete(r.Context(), principal(r), id); err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, okResponse{Success: true})
}

func (s *Server) handleRevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	n, err := s.accounts.RevokeSessions(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, s.log, err, msgUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, revokeResponse{Success: true, Revoked: n})
}
