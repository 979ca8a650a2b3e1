package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/and161185/console-auth/internal/audit"
	pkgcrypto "github.com/and161185/console-auth/internal/crypto"
	"github.com/and161185/console-auth/internal/model"
	"github.com/and161185/console-auth/internal/repository"
	"github.com/and161185/console-auth/internal/repository/memory"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// faultStore wraps memory.Store with failure injection and call counters.
type faultStore struct {
	*memory.Store

	mu sync.Mutex
	// readFailures makes the next N user reads fail with a transient error.
	readFailures int
	readCalls    int
	writeErr     error
	touched      int
	created      []string
}

func newFaultStore(now func() time.Time) *faultStore {
	return &faultStore{Store: memory.New(now)}
}

func (f *faultStore) readFail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if f.readFailures > 0 {
		f.readFailures--
		return errors.New("connection reset by peer")
	}
	return nil
}

func (f *faultStore) writeFail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeErr
}

func (f *faultStore) users() fakeUsers   { return fakeUsers{f.Store.Users(), f} }
func (f *faultStore) tokens() fakeTokens { return fakeTokens{f.Store.Tokens(), f} }

func (f *faultStore) tokensOf(id uuid.UUID) int {
	stored, _ := f.Sessions(id)
	return stored
}

func (f *faultStore) liveTokensOf(id uuid.UUID) int {
	_, live := f.Sessions(id)
	return live
}

func (f *faultStore) storedHashes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

type fakeUsers struct {
	repository.UserRepository
	f *faultStore
}

var _ repository.UserRepository = fakeUsers{}

func (u fakeUsers) Create(ctx context.Context, in *model.User) error {
	if err := u.f.writeFail(); err != nil {
		return err
	}
	return u.UserRepository.Create(ctx, in)
}

func (u fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if err := u.f.readFail(); err != nil {
		return nil, err
	}
	return u.UserRepository.GetByID(ctx, id)
}

func (u fakeUsers) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if err := u.f.readFail(); err != nil {
		return nil, err
	}
	return u.UserRepository.GetByUsername(ctx, username)
}

func (u fakeUsers) List(ctx context.Context) ([]model.User, error) {
	if err := u.f.readFail(); err != nil {
		return nil, err
	}
	return u.UserRepository.List(ctx)
}

func (u fakeUsers) Update(ctx context.Context, id uuid.UUID, upd model.UserUpdate, passwordHash string) (*model.User, error) {
	if err := u.f.writeFail(); err != nil {
		return nil, err
	}
	return u.UserRepository.Update(ctx, id, upd, passwordHash)
}

func (u fakeUsers) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	if err := u.UserRepository.TouchLastLogin(ctx, id); err != nil {
		return err
	}
	u.f.mu.Lock()
	u.f.touched++
	u.f.mu.Unlock()
	return nil
}

type fakeTokens struct {
	repository.RefreshTokenRepository
	f *faultStore
}

var _ repository.RefreshTokenRepository = fakeTokens{}

func (r fakeTokens) Create(ctx context.Context, t *model.RefreshToken) error {
	if err := r.f.writeFail(); err != nil {
		return err
	}
	if err := r.RefreshTokenRepository.Create(ctx, t); err != nil {
		return err
	}
	r.f.mu.Lock()
	r.f.created = append(r.f.created, t.Hash)
	r.f.mu.Unlock()
	return nil
}

func (r fakeTokens) Rotate(ctx context.Context, oldHash string, next *model.RefreshToken) (*model.User, error) {
	if err := r.f.writeFail(); err != nil {
		return nil, err
	}
	return r.RefreshTokenRepository.Rotate(ctx, oldHash, next)
}

func (r fakeTokens) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := r.f.writeFail(); err != nil {
		return 0, err
	}
	return r.RefreshTokenRepository.DeleteByUser(ctx, userID)
}

type captureRecorder struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (r *captureRecorder) Record(_ context.Context, ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *captureRecorder) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return audit.Event{}
	}
	return r.events[len(r.events)-1]
}

func (r *captureRecorder) count(action, outcome string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Action == action && ev.Outcome == outcome {
			n++
		}
	}
	return n
}

// env wires real services over the in-memory store.
type env struct {
	clock    *testClock
	store    *faultStore
	tokens   *TokenService
	auth     *AuthService
	accounts *AccountService
	hasher   *pkgcrypto.Hasher
	rec      *captureRecorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := newTestClock()
	store := newFaultStore(clk.Now)
	log := zaptest.NewLogger(t)
	ts, err := NewTokenService(store.tokens(), TokenConfig{
		Secret:     []byte("test-secret"),
		Algorithm:  "HS256",
		Issuer:     "console-auth",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, WithTokenClock(clk.Now), WithTokenLogger(log))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	hasher := pkgcrypto.NewHasher(bcrypt.MinCost)
	rec := &captureRecorder{}
	return &env{
		clock:  clk,
		store:  store,
		tokens: ts,
		hasher: hasher,
		rec:    rec,
		auth: NewAuthService(AuthDeps{
			Users: store.users(), Tokens: ts, Hasher: hasher, Audit: rec, Log: log, Now: clk.Now,
		}),
		accounts: NewAccountService(AccountDeps{
			Users: store.users(), Tokens: ts, Hasher: hasher, Audit: rec, Log: log, Now: clk.Now,
		}),
	}
}

// seed stores a user with the given password directly.
func (e *env) seed(t *testing.T, username, password string, role model.Role, active bool) *model.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &model.User{
		ID:           uuid.Must(uuid.NewV4()),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Role:         role,
		IsActive:     active,
	}
	if err := e.store.Store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return u
}

func adminPrincipal(u *model.User) model.Principal {
	return model.Principal{UserID: u.ID, Role: model.RoleAdmin}
}
