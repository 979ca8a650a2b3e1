package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// TokenRepo implements RefreshTokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a refresh-token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Create inserts a refresh token row.
func (r *TokenRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	const q = `
INSERT INTO refresh_tokens (id, token, user_id, expires_at)
VALUES ($1, $2, $3, $4)`
	_, err := r.db.Pool.Exec(ctx, q, t.ID, t.Hash, t.UserID, t.ExpiresAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Rotate spends the presented token and stores its successor in one transaction.
// The conditional UPDATE takes the row lock, so concurrent rotations of the same
// token serialize and every loser sees revoked_at already set.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (u *model.User, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		// an inactive owner still gets the presented token spent
		if err != nil && !errors.Is(err, errs.ErrUnauthorized) {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const spend = `
UPDATE refresh_tokens
SET revoked_at = now(), replaced_by = $2
WHERE token = $1 AND revoked_at IS NULL AND expires_at > now()
RETURNING user_id`
	var owner uuid.UUID
	if err = tx.QueryRow(ctx, spend, oldHash, next.ID).Scan(&owner); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		const who = `SELECT user_id FROM refresh_tokens WHERE token = $1`
		if e := tx.QueryRow(ctx, who, oldHash).Scan(&owner); e != nil {
			if errors.Is(e, pgx.ErrNoRows) {
				return nil, errs.ErrNotFound
			}
			return nil, e
		}
		return &model.User{ID: owner}, errs.ErrTokenReused
	}

	u, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, owner))
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return u, errs.ErrUnauthorized
	}

	next.UserID = u.ID
	const ins = `
INSERT INTO refresh_tokens (id, token, user_id, expires_at)
VALUES ($1, $2, $3, $4)`
	if _, err = tx.Exec(ctx, ins, next.ID, next.Hash, next.UserID, next.ExpiresAt); err != nil {
		return nil, err
	}
	return u, nil
}

// DeleteByHash removes a single token (logout).
func (r *TokenRepo) DeleteByHash(ctx context.Context, hash string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token=$1`, hash)
	return err
}

// DeleteByUser removes the whole token family of a user.
func (r *TokenRepo) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired sweeps rows past their expiry, spent or not.
func (r *TokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
