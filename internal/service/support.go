// Package service contains the token, authentication and account services.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/errs"
	"go.uber.org/zap"
)

// DefaultStoreTimeout bounds every store call unless configured otherwise.
const DefaultStoreTimeout = 10 * time.Second

// domainErr reports whether err is a classified outcome rather than a store failure.
func domainErr(err error) bool {
	return errors.Is(err, errs.ErrNotFound) ||
		errors.Is(err, errs.ErrAlreadyExists) ||
		errors.Is(err, errs.ErrValidation) ||
		errors.Is(err, errs.ErrUnauthorized) ||
		errors.Is(err, errs.ErrForbidden) ||
		errors.Is(err, errs.ErrTokenReused) ||
		errors.Is(err, errs.ErrDependency)
}

// storeErr tags unclassified store errors as dependency failures.
func storeErr(err error) error {
	if err == nil || domainErr(err) {
		return err
	}
	return errs.Dependency(err)
}

// bounded runs fn under the store timeout.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := fn(cctx)
	return v, storeErr(err)
}

// boundedErr is bounded for calls without a result.
func boundedErr(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := bounded(ctx, timeout, func(c context.Context) (struct{}, error) { return struct{}{}, fn(c) })
	return err
}

// readRetry runs a read-only call and retries it once on a dependency failure.
// Writes never go through here.
func readRetry[T any](ctx context.Context, timeout time.Duration, log *zap.Logger, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := bounded(ctx, timeout, fn)
	if err == nil || !errors.Is(err, errs.ErrDependency) || ctx.Err() != nil {
		return v, err
	}
	log.Warn("retrying read after store failure", zap.String("op", op), zap.Error(err))
	return bounded(ctx, timeout, fn)
}

// eventSink stamps and records security events; failures are logged only.
type eventSink struct {
	rec     audit.Recorder
	log     *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

func (s eventSink) emit(ctx context.Context, ev audit.Event) {
	if s.rec == nil {
		return
	}
	ev, err := audit.Stamp(ctx, ev, s.now())
	if err != nil {
		s.log.Error("audit event id", zap.Error(err))
		return
	}
	timeout := s.timeout
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	// recorded even when the request context is already cancelled
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := s.rec.Record(cctx, ev); err != nil {
		s.log.Warn("audit record failed",
			zap.String("action", ev.Action),
			zap.String("outcome", ev.Outcome),
			zap.Error(err),
		)
	}
}
