package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, username, email, password_hash, role, is_active, created_at, updated_at, last_login`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u         model.User
		role      string
		lastLogin pgtype.Timestamptz
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive,
		&u.CreatedAt, &u.UpdatedAt, &lastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	u.Role = model.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return &u, nil
}

// Create inserts a new user row and fills its timestamps.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, username, email, password_hash, role, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return conflictFrom(err)
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByUsername selects a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE username=$1`
	return scanUser(r.db.Pool.QueryRow(ctx, q, username))
}

// List returns every user, oldest first.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, username ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Update writes only the columns named by upd; nothing else is reachable from callers.
func (r *UserRepo) Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate, passwordHash string) (*model.User, error) {
	args := []any{id}
	var sets []string
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Username != nil {
		set("username", *upd.Username)
	}
	if upd.Email != nil {
		set("email", *upd.Email)
	}
	if upd.Role != nil {
		set("role", string(*upd.Role))
	}
	if upd.IsActive != nil {
		set("is_active", *upd.IsActive)
	}
	if upd.Password != nil {
		set("password_hash", passwordHash)
	}
	if len(sets) == 0 {
		return nil, errs.NewValidation("update", "no fields to update")
	}
	sets = append(sets, "updated_at=now()")

	q := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 RETURNING ` + userColumns
	u, err := scanUser(r.db.Pool.QueryRow(ctx, q, args...))
	if isUniqueViolation(err) {
		return nil, conflictFrom(err)
	}
	return u, err
}

// Delete removes a user row; refresh_tokens rows cascade.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps last_login with the database clock.
func (r *UserRepo) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE users SET last_login=now() WHERE id=$1`, id)
	return err
}
