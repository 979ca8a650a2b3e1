package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/and161185/console-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
	// VerifyDummy spends the same work as Verify and always fails.
	VerifyDummy(plaintext string) bool
}

// AuthService implements login, refresh, verify and logout.
type AuthService struct {
	users   repository.UserRepository
	tokens  *TokenService
	hasher  PasswordHasher
	events  eventSink
	log     *zap.Logger
	timeout time.Duration
}

// AuthDeps bundles AuthService collaborators.
type AuthDeps struct {
	Users        repository.UserRepository
	Tokens       *TokenService
	Hasher       PasswordHasher
	Audit        audit.Recorder
	Log          *zap.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(d AuthDeps) *AuthService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:   d.Users,
		tokens:  d.Tokens,
		hasher:  d.Hasher,
		events:  eventSink{rec: d.Audit, log: log, now: now, timeout: d.StoreTimeout},
		log:     log,
		timeout: d.StoreTimeout,
	}
}

// Login verifies credentials and issues a token pair. The username is trimmed
// the same way account creation stores it.
// Unknown user, wrong password and inactive account all yield errs.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (model.Tokens, *model.User, error) {
	username = strings.TrimSpace(username)
	fail := func(target uuid.UUID, reason string) (model.Tokens, *model.User, error) {
		s.events.emit(ctx, audit.Event{
			Action:   audit.ActionLogin,
			TargetID: target,
			Outcome:  audit.OutcomeFailure,
			Fields:   map[string]any{"reason": reason},
		})
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}

	u, err := bounded(ctx, s.timeout, func(c context.Context) (*model.User, error) {
		return s.users.GetByUsername(c, username)
	})
	if errors.Is(err, errs.ErrNotFound) {
		s.hasher.VerifyDummy(password)
		return fail(uuid.Nil, "unknown_user")
	}
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return fail(u.ID, "bad_password")
	}
	if !u.IsActive {
		return fail(u.ID, "inactive")
	}

	tokens, err := s.tokens.IssuePair(ctx, u)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	if err := boundedErr(ctx, s.timeout, func(c context.Context) error { return s.users.TouchLastLogin(c, u.ID) }); err != nil {
		s.log.Warn("update last_login", zap.String("user_id", u.ID.String()), zap.Error(err))
	}

	s.events.emit(ctx, audit.Event{Action: audit.ActionLogin, ActorID: u.ID, Outcome: audit.OutcomeSuccess})
	return tokens, u, nil
}

// Refresh rotates the presented refresh token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.Tokens, *model.User, error) {
	tokens, u, err := s.tokens.RotateRefreshToken(ctx, refreshToken)
	switch {
	case err == nil:
		s.events.emit(ctx, audit.Event{Action: audit.ActionRefresh, ActorID: u.ID, Outcome: audit.OutcomeSuccess})
		return tokens, u, nil
	case errors.Is(err, errs.ErrTokenReused):
		s.events.emit(ctx, audit.Event{
			Action:   audit.ActionRefreshReuse,
			TargetID: u.ID,
			Outcome:  audit.OutcomeFailure,
			Fields:   map[string]any{"sessions_revoked": true},
		})
	case errors.Is(err, errs.ErrUnauthorized):
		ev := audit.Event{Action: audit.ActionRefresh, Outcome: audit.OutcomeFailure}
		if u != nil {
			ev.TargetID = u.ID
			ev.Fields = map[string]any{"reason": "inactive"}
		}
		s.events.emit(ctx, ev)
	}
	return model.Tokens{}, nil, err
}

// Verify maps an access token to its principal.
func (s *AuthService) Verify(token string) (model.Principal, error) {
	return s.tokens.VerifyAccessToken(token)
}

// Logout revokes the presented refresh token. actor may be uuid.Nil when the
// caller has no valid access token.
func (s *AuthService) Logout(ctx context.Context, actor uuid.UUID, refreshToken string) error {
	err := s.tokens.Revoke(ctx, refreshToken)
	outcome := audit.OutcomeSuccess
	if err != nil {
		outcome = audit.OutcomeFailure
	}
	s.events.emit(ctx, audit.Event{Action: audit.ActionLogout, ActorID: actor, Outcome: outcome})
	return err
}
