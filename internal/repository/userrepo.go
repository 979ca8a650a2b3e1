// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/console-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides CRUD access for console accounts.
type UserRepository interface {
	// Create inserts a new user. Duplicate username/email yields *errs.ConflictError.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByUsername loads a user by username.
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	// List returns all users ordered by creation time.
	List(ctx context.Context) ([]model.User, error)
	// Update applies the non-nil fields of upd. passwordHash replaces upd.Password when set.
	Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate, passwordHash string) (*model.User, error)
	// Delete removes the user; refresh tokens cascade.
	Delete(ctx context.Context, id uuid.UUID) error
	// TouchLastLogin records a successful authentication.
	TouchLastLogin(ctx context.Context, id uuid.UUID) error
}
