// Package errs contains sentinel errors and typed errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication: bad credentials, inactive account,
	// missing, malformed or expired token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates a valid session without the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrTokenReused indicates presentation of a refresh token that was already rotated or expired.
	ErrTokenReused = errors.New("refresh token reused")

	// ErrRateLimited indicates the caller exhausted a rate-limit category.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates a malformed or missing field.
	ErrValidation = errors.New("validation")

	// ErrDependency indicates an unreachable or failing store.
	ErrDependency = errors.New("dependency failure")
)

// ValidationError carries field-level detail that is safe to show to the caller.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation builds a ValidationError for a single field.
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports which unique field collided.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string { return e.Field + " already exists" }

// Is makes errors.Is(err, ErrAlreadyExists) hold.
func (e *ConflictError) Is(target error) bool { return target == ErrAlreadyExists }

// RateLimitError carries the back-off hint for a denied request.
type RateLimitError struct {
	Category   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (%s), retry after %s", e.Category, e.RetryAfter)
}

// Is makes errors.Is(err, ErrRateLimited) hold.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// Dependency marks err as a store failure while keeping the cause inspectable.
func Dependency(err error) error {
	if err == nil || errors.Is(err, ErrDependency) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDependency, err)
}
