package service

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/and161185/console-auth/internal/repository"
	"github.com/and161185/console-auth/internal/validate"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// AccountService implements admin-only user management. Refused mutations are
// recorded as failure events.
type AccountService struct {
	users   repository.UserRepository
	tokens  *TokenService
	hasher  PasswordHasher
	events  eventSink
	log     *zap.Logger
	timeout time.Duration
}

// AccountDeps bundles AccountService collaborators.
type AccountDeps struct {
	Users        repository.UserRepository
	Tokens       *TokenService
	Hasher       PasswordHasher
	Audit        audit.Recorder
	Log          *zap.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

// NewAccountService constructs AccountService.
func NewAccountService(d AccountDeps) *AccountService {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &AccountService{
		users:   d.Users,
		tokens:  d.Tokens,
		hasher:  d.Hasher,
		events:  eventSink{rec: d.Audit, log: log, now: now, timeout: d.StoreTimeout},
		log:     log,
		timeout: d.StoreTimeout,
	}
}

func requireAdmin(actor model.Principal) error {
	if !actor.IsAdmin() {
		return errs.ErrForbidden
	}
	return nil
}

// refusalReason classifies why an admin mutation did not happen.
func refusalReason(err error) string {
	switch {
	case errors.Is(err, errs.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errs.ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, errs.ErrValidation):
		return "invalid"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// refuse records a failed admin mutation and returns err unchanged.
func (s *AccountService) refuse(ctx context.Context, action string, actor model.Principal, target uuid.UUID, err error) error {
	fields := map[string]any{"reason": refusalReason(err)}
	var ce *errs.ConflictError
	if errors.As(err, &ce) {
		fields["field"] = ce.Field
	}
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		fields["fields"] = slices.Sorted(maps.Keys(ve.Fields))
	}
	s.events.emit(ctx, audit.Event{
		Action:   action,
		ActorID:  actor.UserID,
		TargetID: target,
		Outcome:  audit.OutcomeFailure,
		Fields:   fields,
	})
	return err
}

func normalizeNewUser(in model.NewUser) model.NewUser {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	return in
}

// Create adds an account. Duplicate username or email yields *errs.ConflictError.
func (s *AccountService) Create(ctx context.Context, actor model.Principal, in model.NewUser) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, s.refuse(ctx, audit.ActionUserCreate, actor, uuid.Nil, err)
	}
	u, err := s.create(ctx, in)
	if err != nil {
		return nil, s.refuse(ctx, audit.ActionUserCreate, actor, uuid.Nil, err)
	}
	s.events.emit(ctx, audit.Event{
		Action:   audit.ActionUserCreate,
		ActorID:  actor.UserID,
		TargetID: u.ID,
		Outcome:  audit.OutcomeSuccess,
		Fields:   map[string]any{"username": u.Username, "role": string(u.Role)},
	})
	return u, nil
}

func (s *AccountService) create(ctx context.Context, in model.NewUser) (*model.User, error) {
	in = normalizeNewUser(in)
	if err := validate.Struct(&in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	u := &model.User{
		ID:           id,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
	}
	if err := boundedErr(ctx, s.timeout, func(c context.Context) error { return s.users.Create(c, u) }); err != nil {
		return nil, err
	}
	return u, nil
}

// Get loads one account.
func (s *AccountService) Get(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return readRetry(ctx, s.timeout, s.log, "users.get", func(c context.Context) (*model.User, error) {
		return s.users.GetByID(c, id)
	})
}

// List returns every account ordered by creation time.
func (s *AccountService) List(ctx context.Context, actor model.Principal) ([]model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return readRetry(ctx, s.timeout, s.log, "users.list", func(c context.Context) ([]model.User, error) {
		return s.users.List(c)
	})
}

// Update applies the fields set in upd. A password change or deactivation
// revokes every refresh token of the target. An admin cannot deactivate or
// demote their own account.
func (s *AccountService) Update(ctx context.Context, actor model.Principal, id uuid.UUID, upd model.UserUpdate) (*model.User, error) {
	refuse := func(err error) (*model.User, error) {
		return nil, s.refuse(ctx, audit.ActionUserUpdate, actor, id, err)
	}
	if err := requireAdmin(actor); err != nil {
		return refuse(err)
	}
	if upd.Empty() {
		return refuse(errs.NewValidation("update", "no fields to update"))
	}
	if upd.Username != nil {
		v := strings.TrimSpace(*upd.Username)
		upd.Username = &v
	}
	if upd.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*upd.Email))
		upd.Email = &v
	}
	if err := validate.Struct(&upd); err != nil {
		return refuse(err)
	}
	if id == actor.UserID {
		if upd.IsActive != nil && !*upd.IsActive {
			return refuse(errs.NewValidation("isActive", "cannot deactivate your own account"))
		}
		if upd.Role != nil && *upd.Role != model.RoleAdmin {
			return refuse(errs.NewValidation("role", "cannot remove your own admin role"))
		}
	}

	var hash string
	if upd.Password != nil {
		h, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return refuse(err)
		}
		hash = h
	}

	u, err := bounded(ctx, s.timeout, func(c context.Context) (*model.User, error) {
		return s.users.Update(c, id, upd, hash)
	})
	if err != nil {
		return refuse(err)
	}

	fields := map[string]any{"changed": upd.ChangedFields()}
	if upd.Password != nil || (upd.IsActive != nil && !*upd.IsActive) {
		n, err := s.tokens.RevokeAll(ctx, id)
		if err != nil {
			// the update is already committed
			s.log.Error("revoke sessions after update", zap.String("user_id", id.String()), zap.Error(err))
			return refuse(err)
		}
		fields["sessions_revoked"] = n
	}
	s.events.emit(ctx, audit.Event{
		Action:   audit.ActionUserUpdate,
		ActorID:  actor.UserID,
		TargetID: id,
		Outcome:  audit.OutcomeSuccess,
		Fields:   fields,
	})
	return u, nil
}

// Delete removes an account; its refresh tokens cascade. Self-deletion is refused.
func (s *AccountService) Delete(ctx context.Context, actor model.Principal, id uuid.UUID) error {
	if err := requireAdmin(actor); err != nil {
		return s.refuse(ctx, audit.ActionUserDelete, actor, id, err)
	}
	if id == actor.UserID {
		return s.refuse(ctx, audit.ActionUserDelete, actor, id, errs.NewValidation("id", "cannot delete your own account"))
	}
	if err := boundedErr(ctx, s.timeout, func(c context.Context) error { return s.users.Delete(c, id) }); err != nil {
		return s.refuse(ctx, audit.ActionUserDelete, actor, id, err)
	}
	s.events.emit(ctx, audit.Event{
		Action:   audit.ActionUserDelete,
		ActorID:  actor.UserID,
		TargetID: id,
		Outcome:  audit.OutcomeSuccess,
	})
	return nil
}

// RevokeSessions deletes every refresh token of the target (forced logout).
func (s *AccountService) RevokeSessions(ctx context.Context, actor model.Principal, id uuid.UUID) (int64, error) {
	if err := requireAdmin(actor); err != nil {
		return 0, s.refuse(ctx, audit.ActionSessionsRevoke, actor, id, err)
	}
	if _, err := s.Get(ctx, actor, id); err != nil {
		return 0, s.refuse(ctx, audit.ActionSessionsRevoke, actor, id, err)
	}
	n, err := s.tokens.RevokeAll(ctx, id)
	if err != nil {
		return 0, s.refuse(ctx, audit.ActionSessionsRevoke, actor, id, err)
	}
	s.events.emit(ctx, audit.Event{
		Action:   audit.ActionSessionsRevoke,
		ActorID:  actor.UserID,
		TargetID: id,
		Outcome:  audit.OutcomeSuccess,
		Fields:   map[string]any{"sessions_revoked": n},
	})
	return n, nil
}

// EnsureAdmin creates the bootstrap admin unless the username already exists.
func (s *AccountService) EnsureAdmin(ctx context.Context, in model.NewUser) (bool, error) {
	in.Role = model.RoleAdmin
	in = normalizeNewUser(in)
	_, err := readRetry(ctx, s.timeout, s.log, "users.get_by_username", func(c context.Context) (*model.User, error) {
		return s.users.GetByUsername(c, in.Username)
	})
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return false, err
	}
	u, err := s.create(ctx, in)
	if err != nil {
		return false, err
	}
	s.events.emit(ctx, audit.Event{
		Action:   audit.ActionUserCreate,
		TargetID: u.ID,
		Outcome:  audit.OutcomeSuccess,
		Fields:   map[string]any{"username": u.Username, "role": string(u.Role), "bootstrap": true},
	})
	return true, nil
}
