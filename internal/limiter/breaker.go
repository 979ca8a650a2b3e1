package limiter

import (
	"context"
	"time"

	"github.com/and161185/console-auth/internal/errs"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerStore stops calling a failing Store for a while so requests are not
// held up waiting on a dead backend.
type BreakerStore struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next Store, name string, log *zap.Logger) *BreakerStore {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("rate limit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

// State reports the breaker state.
func (s *BreakerStore) State() gobreaker.State { return s.cb.State() }

// Take implements Store.
func (s *BreakerStore) Take(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	v, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Take(ctx, key, max, window)
	})
	if err != nil {
		return Result{}, errs.Dependency(err)
	}
	return v.(Result), nil
}
