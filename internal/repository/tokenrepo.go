package repository

import (
	"context"
	"time"

	"github.com/and161185/console-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

// RefreshTokenRepository persists refresh-token digests and performs atomic rotation.
type RefreshTokenRepository interface {
	// Create stores a new refresh token row.
	Create(ctx context.Context, t *model.RefreshToken) error

	// Rotate atomically spends the live token with digest oldHash and stores next for the same owner.
	// It returns the owner as currently persisted. When the token is known but already spent or expired,
	// it returns the owner together with errs.ErrTokenReused; when unknown, errs.ErrNotFound.
	// An inactive owner gets the old token spent, no successor, and errs.ErrUnauthorized.
	Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (*model.User, error)

	// DeleteByHash removes one token. Deleting a missing token is not an error.
	DeleteByHash(ctx context.Context, hash string) error

	// DeleteByUser removes every token of a user and returns how many were removed.
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteExpired removes rows that expired before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
