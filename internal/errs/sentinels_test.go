package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidationError_IsAndMessage(t *testing.T) {
	t.Parallel()

	err := &ValidationError{Fields: map[string]string{"role": "invalid", "email": "required"}}
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, "validation: email: required; role: invalid", err.Error())

	wrapped := fmt.Errorf("update: %w", NewValidation("username", "too short"))
	var ve *ValidationError
	require.ErrorAs(t, wrapped, &ve)
	require.Equal(t, "too short", ve.Fields["username"])
}

func TestConflictError_Is(t *testing.T) {
	t.Parallel()

	err := &ConflictError{Field: "email"}
	require.ErrorIs(t, err, ErrAlreadyExists)
	require.Equal(t, "email already exists", err.Error())
}

func TestRateLimitError_Is(t *testing.T) {
	t.Parallel()

	err := &RateLimitError{Category: "login", RetryAfter: time.Minute}
	require.ErrorIs(t, err, ErrRateLimited)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestDependency_WrapsOnce(t *testing.T) {
	t.Parallel()

	require.NoError(t, Dependency(nil))

	cause := context.DeadlineExceeded
	err := Dependency(cause)
	require.ErrorIs(t, err, ErrDependency)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	again := Dependency(err)
	require.Equal(t, err, again)
	require.False(t, errors.Is(err, ErrNotFound))
}
