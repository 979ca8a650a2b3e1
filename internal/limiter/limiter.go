// Package limiter implements tiered fixed-window request limiting.
package limiter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Category names a limiting policy.
type Category string

const (
	CategoryLogin   Category = "login"
	CategoryAdmin   Category = "admin"
	CategoryContact Category = "contact"
	CategoryAPI     Category = "api"
)

// Outcome labels reported to an Observer.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeFailOpen   = "fail_open"
	OutcomeFailClosed = "fail_closed"
)

// DefaultFailClosedRetry is reported when a fail-closed category cannot reach its counter store.
const DefaultFailClosedRetry = 30 * time.Second

// Policy is the budget of one category.
type Policy struct {
	Max        int
	Window     time.Duration
	FailClosed bool
}

// DefaultPolicies returns the stock budgets; login and admin fail closed.
func DefaultPolicies() map[Category]Policy {
	return map[Category]Policy{
		CategoryLogin:   {Max: 50, Window: 15 * time.Minute, FailClosed: true},
		CategoryAdmin:   {Max: 200, Window: 15 * time.Minute, FailClosed: true},
		CategoryContact: {Max: 5, Window: time.Hour},
		CategoryAPI:     {Max: 100, Window: 15 * time.Minute},
	}
}

// Result is what a Store reports for one hit.
type Result struct {
	// Count is the number of hits recorded in the current window, never above max.
	Count int64
	// Allowed reports whether this hit was counted.
	Allowed bool
	// ResetIn is the time left until the window resets.
	ResetIn time.Duration
}

// Store is an atomic per-key fixed-window counter.
type Store interface {
	// Take records a hit for key unless max is already reached in the current window.
	Take(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Observer receives one call per decision.
type Observer interface {
	ObserveRateLimit(category, outcome string)
}

// Decision is the outcome of Check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	// Degraded is set when the counter store failed and the policy decided alone.
	Degraded bool
}

// Limiter maps (category, client key) onto a Store using per-category policies.
type Limiter struct {
	store     Store
	policies  map[Category]Policy
	failRetry time.Duration
	log       *zap.Logger
	obs       Observer
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for store failures.
func WithLogger(log *zap.Logger) Option { return func(l *Limiter) { l.log = log } }

// WithObserver sets the decision observer.
func WithObserver(o Observer) Option { return func(l *Limiter) { l.obs = o } }

// WithFailClosedRetry sets the retry hint returned on fail-closed denials.
func WithFailClosedRetry(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.failRetry = d
		}
	}
}

// New validates policies and constructs a Limiter.
func New(store Store, policies map[Category]Policy, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("limiter: nil store")
	}
	if len(policies) == 0 {
		return nil, fmt.Errorf("limiter: no policies")
	}
	cp := make(map[Category]Policy, len(policies))
	for c, p := range policies {
		if p.Max <= 0 || p.Window <= 0 {
			return nil, fmt.Errorf("limiter: category %q needs positive max and window", c)
		}
		cp[c] = p
	}
	l := &Limiter{store: store, policies: cp, failRetry: DefaultFailClosedRetry, log: zap.NewNop()}
	for _, o := range opts {
		o(l)
	}
	return l, nil
}

// Policy returns the policy configured for c.
func (l *Limiter) Policy(c Category) (Policy, bool) {
	p, ok := l.policies[c]
	return p, ok
}

// Check counts one request of clientKey against category c.
// The only error is an unknown category; store failures are resolved by the policy.
func (l *Limiter) Check(ctx context.Context, c Category, clientKey string) (Decision, error) {
	p, ok := l.policies[c]
	if !ok {
		return Decision{}, fmt.Errorf("limiter: unknown category %q", c)
	}

	res, err := l.store.Take(ctx, string(c)+":"+clientKey, p.Max, p.Window)
	if err != nil {
		l.log.Warn("rate limit store unavailable",
			zap.String("category", string(c)),
			zap.Bool("fail_closed", p.FailClosed),
			zap.Error(err),
		)
		if p.FailClosed {
			l.observe(c, OutcomeFailClosed)
			return Decision{Limit: p.Max, RetryAfter: l.failRetry, Degraded: true}, nil
		}
		l.observe(c, OutcomeFailOpen)
		return Decision{Allowed: true, Limit: p.Max, Remaining: p.Max, Degraded: true}, nil
	}

	d := Decision{Allowed: res.Allowed, Limit: p.Max, Remaining: p.Max - int(res.Count)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !res.Allowed {
		d.RetryAfter = res.ResetIn
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
		l.observe(c, OutcomeDenied)
		return d, nil
	}
	l.observe(c, OutcomeAllowed)
	return d, nil
}

func (l *Limiter) observe(c Category, outcome string) {
	if l.obs != nil {
		l.obs.ObserveRateLimit(string(c), outcome)
	}
}
