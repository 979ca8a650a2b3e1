package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &errStore{}
	s := NewBreakerStore(inner, "test", zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Take(ctx, "k", 1, time.Minute)
		require.ErrorIs(t, err, errs.ErrDependency)
	}
	require.Equal(t, gobreaker.StateOpen, s.State())

	_, err := s.Take(ctx, "k", 1, time.Minute)
	require.ErrorIs(t, err, errs.ErrDependency)
	require.True(t, errors.Is(err, gobreaker.ErrOpenState))
	require.Equal(t, 3, inner.calls)
}

func TestBreakerStore_PassesResults(t *testing.T) {
	s := NewBreakerStore(NewMemoryStore(), "mem", nil)
	res, err := s.Take(context.Background(), "k", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	require.EqualValues(t, 1, res.Count)
	require.Equal(t, gobreaker.StateClosed, s.State())
}
