// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is one of exactly two authorization levels.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// User represents an account of the admin console. The password is only ever stored hashed.
type User struct {
	ID           uuid.UUID // PK
	Username     string    // unique
	Email        string    // unique
	PasswordHash string    // bcrypt
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLogin    *time.Time
}

// NewUser is the validated input for account creation.
type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=50,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     Role   `json:"role" validate:"required,oneof=admin user"`
}

// UserUpdate lists the only fields an admin may change. Nil means "leave as is".
type UserUpdate struct {
	Username *string `json:"username,omitempty" validate:"omitnil,min=3,max=50,username"`
	Email    *string `json:"email,omitempty" validate:"omitnil,email,max=254"`
	Role     *Role   `json:"role,omitempty" validate:"omitnil,oneof=admin user"`
	IsActive *bool   `json:"isActive,omitempty"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=8,max=72"`
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Username == nil && u.Email == nil && u.Role == nil && u.IsActive == nil && u.Password == nil
}

// ChangedFields returns the names of the fields set in the update, for audit records.
func (u UserUpdate) ChangedFields() []string {
	var out []string
	if u.Username != nil {
		out = append(out, "username")
	}
	if u.Email != nil {
		out = append(out, "email")
	}
	if u.Role != nil {
		out = append(out, "role")
	}
	if u.IsActive != nil {
		out = append(out, "is_active")
	}
	if u.Password != nil {
		out = append(out, "password")
	}
	return out
}

// RefreshToken is a persisted refresh token row. Hash is the SHA-256 digest of the opaque value.
type RefreshToken struct {
	ID         uuid.UUID
	Hash       string
	UserID     uuid.UUID
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *uuid.UUID
}

// Principal is the identity and role derived from a verified access token.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
