// Package memory keeps users and refresh tokens in process memory. It backs
// `serve --memory` for local development and the HTTP tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/and161185/console-auth/internal/repository"
)

// Store holds both tables under one lock so rotation can reload the owner and
// user deletion can cascade.
type Store struct {
	mu     sync.Mutex
	now    func() time.Time
	users  map[uuid.UUID]*model.User
	tokens map[string]*model.RefreshToken
}

// New returns an empty store. A nil clock means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now, users: map[uuid.UUID]*model.User{}, tokens: map[string]*model.RefreshToken{}}
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Tokens returns the refresh-token repository view.
func (s *Store) Tokens() repository.RefreshTokenRepository { return tokenRepo{s} }

// Sessions reports how many refresh tokens of userID are stored and how many
// of them are neither spent nor expired.
func (s *Store) Sessions(userID uuid.UUID) (stored, live int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, t := range s.tokens {
		if t.UserID != userID {
			continue
		}
		stored++
		if t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			live++
		}
	}
	return stored, live
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, u *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.users {
		if o.Username == u.Username {
			return &errs.ConflictError{Field: "username"}
		}
		if o.Email == u.Email {
			return &errs.ConflictError{Field: "email"}
		}
	}
	u.CreatedAt = r.s.now()
	u.UpdatedAt = u.CreatedAt
	c := *u
	r.s.users[u.ID] = &c
	return nil
}

func (r userRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r userRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (r userRepo) List(context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Username < out[j].Username
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r userRepo) Update(_ context.Context, id uuid.UUID, upd model.UserUpdate, passwordHash string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	for oid, o := range r.s.users {
		if oid == id {
			continue
		}
		if upd.Username != nil && o.Username == *upd.Username {
			return nil, &errs.ConflictError{Field: "username"}
		}
		if upd.Email != nil && o.Email == *upd.Email {
			return nil, &errs.ConflictError{Field: "email"}
		}
	}
	if upd.Username != nil {
		u.Username = *upd.Username
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.IsActive != nil {
		u.IsActive = *upd.IsActive
	}
	if upd.Password != nil {
		u.PasswordHash = passwordHash
	}
	u.UpdatedAt = r.s.now()
	c := *u
	return &c, nil
}

func (r userRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.s.users, id)
	for h, t := range r.s.tokens {
		if t.UserID == id {
			delete(r.s.tokens, h)
		}
	}
	return nil
}

func (r userRepo) TouchLastLogin(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return errs.ErrNotFound
	}
	now := r.s.now()
	u.LastLogin = &now
	return nil
}

type tokenRepo struct{ s *Store }

func (r tokenRepo) Create(_ context.Context, t *model.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tokens[t.Hash]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := r.s.users[t.UserID]; !ok {
		return errs.ErrNotFound
	}
	c := *t
	c.CreatedAt = r.s.now()
	r.s.tokens[t.Hash] = &c
	return nil
}

func (r tokenRepo) Rotate(_ context.Context, oldHash string, next *model.RefreshToken) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[oldHash]
	if !ok {
		return nil, errs.ErrNotFound
	}
	u, ok := r.s.users[t.UserID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	now := r.s.now()
	if t.RevokedAt != nil || !now.Before(t.ExpiresAt) {
		c := *u
		return &c, errs.ErrTokenReused
	}
	t.RevokedAt = &now
	t.ReplacedBy = &next.ID
	if !u.IsActive {
		c := *u
		return &c, errs.ErrUnauthorized
	}
	n := *next
	n.UserID = u.ID
	n.CreatedAt = now
	r.s.tokens[n.Hash] = &n
	c := *u
	return &c, nil
}

func (r tokenRepo) DeleteByHash(_ context.Context, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, hash)
	return nil
}

func (r tokenRepo) DeleteByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for h, t := range r.s.tokens {
		if t.UserID == userID {
			delete(r.s.tokens, h)
			n++
		}
	}
	return n, nil
}

func (r tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for h, t := range r.s.tokens {
		if t.ExpiresAt.Before(now) {
			delete(r.s.tokens, h)
			n++
		}
	}
	return n, nil
}
