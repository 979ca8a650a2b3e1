package limiter

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
	dead    bool
}

// MemoryStore keeps counters in process memory with one mutex per key.
type MemoryStore struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	now        func() time.Time
	pruneEvery time.Duration
	lastPrune  time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption { return func(s *MemoryStore) { s.now = now } }

// WithPruneInterval sets how often expired buckets are dropped.
func WithPruneInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.pruneEvery = d }
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{buckets: map[string]*bucket{}, now: time.Now, pruneEvery: time.Minute}
	for _, o := range opts {
		o(s)
	}
	s.lastPrune = s.now()
	return s
}

// Take implements Store.
func (s *MemoryStore) Take(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	for {
		b := s.bucket(key)
		b.mu.Lock()
		if b.dead {
			// pruned between lookup and lock
			b.mu.Unlock()
			continue
		}
		now := s.now()
		if !now.Before(b.resetAt) {
			b.count = 0
			b.resetAt = now.Add(window)
		}
		res := Result{ResetIn: b.resetAt.Sub(now)}
		if b.count < int64(max) {
			b.count++
			res.Allowed = true
		}
		res.Count = b.count
		b.mu.Unlock()
		return res, nil
	}
}

// Len reports how many keys are tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

func (s *MemoryStore) bucket(key string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.pruneEvery > 0 && now.Sub(s.lastPrune) >= s.pruneEvery {
		s.prune(now)
		s.lastPrune = now
	}
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	return b
}

// prune drops expired buckets; caller holds s.mu.
func (s *MemoryStore) prune(now time.Time) {
	for k, b := range s.buckets {
		b.mu.Lock()
		if !now.Before(b.resetAt) {
			b.dead = true
			delete(s.buckets, k)
		}
		b.mu.Unlock()
	}
}
