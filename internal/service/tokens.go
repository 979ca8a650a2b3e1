package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgcrypto "github.com/and161185/console-auth/internal/crypto"
	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/and161185/console-auth/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 32

// TokenConfig configures TokenService.
type TokenConfig struct {
	Secret       []byte
	Algorithm    string // HS256, HS384 or HS512
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration
}

// TokenService issues and verifies access tokens and owns refresh-token rotation.
type TokenService struct {
	tokens     repository.RefreshTokenRepository
	method     jwt.SigningMethod
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	timeout    time.Duration
	now        func() time.Time
	log        *zap.Logger
}

// TokenOption customizes TokenService.
type TokenOption func(*TokenService)

// WithTokenClock replaces time.Now.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

// WithTokenLogger sets the logger.
func WithTokenLogger(log *zap.Logger) TokenOption {
	return func(s *TokenService) { s.log = log }
}

// SigningMethod resolves a configured HMAC algorithm name.
func SigningMethod(alg string) (jwt.SigningMethod, error) {
	switch alg {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

// NewTokenService validates cfg and constructs the service.
func NewTokenService(tokens repository.RefreshTokenRepository, cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token service: empty signing secret")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token service: token lifetimes must be positive")
	}
	method, err := SigningMethod(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	s := &TokenService{
		tokens:     tokens,
		method:     method,
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		timeout:    cfg.StoreTimeout,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

type accessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs a short-lived token carrying subject and role.
func (s *TokenService) IssueAccessToken(userID uuid.UUID, role model.Role) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := accessClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.issuer,
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	return signed, exp, err
}

// VerifyAccessToken checks signature, algorithm, issuer and expiry.
// Every failure is reported as errs.ErrUnauthorized.
func (s *TokenService) VerifyAccessToken(token string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, errs.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		s.log.Debug("access token rejected", zap.Error(err))
		return model.Principal{}, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil || id.IsNil() {
		return model.Principal{}, errs.ErrUnauthorized
	}
	role := model.Role(claims.Role)
	if !role.Valid() {
		return model.Principal{}, errs.ErrUnauthorized
	}
	return model.Principal{UserID: id, Role: role}, nil
}

func (s *TokenService) newRefresh() (string, *model.RefreshToken, error) {
	raw, err := pkgcrypto.NewOpaqueToken(refreshTokenBytes)
	if err != nil {
		return "", nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", nil, err
	}
	return raw, &model.RefreshToken{
		ID:        id,
		Hash:      pkgcrypto.TokenDigest(raw),
		ExpiresAt: s.now().Add(s.refreshTTL),
	}, nil
}

// IssueRefreshToken persists a fresh opaque token for userID and returns the raw value.
func (s *TokenService) IssueRefreshToken(ctx context.Context, userID uuid.UUID) (string, time.Time, error) {
	raw, rt, err := s.newRefresh()
	if err != nil {
		return "", time.Time{}, err
	}
	rt.UserID = userID
	if err := boundedErr(ctx, s.timeout, func(c context.Context) error { return s.tokens.Create(c, rt) }); err != nil {
		return "", time.Time{}, err
	}
	return raw, rt.ExpiresAt, nil
}

// IssuePair issues an access token and a refresh token for u.
func (s *TokenService) IssuePair(ctx context.Context, u *model.User) (model.Tokens, error) {
	access, accessExp, err := s.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, refreshExp, err := s.IssueRefreshToken(ctx, u.ID)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// RotateRefreshToken exchanges a live refresh token for a new pair.
//
// A known token that is spent or expired revokes every token of its owner and
// returns the owner with errs.ErrTokenReused. An unknown token returns
// errs.ErrUnauthorized. An inactive owner loses all tokens and gets
// errs.ErrUnauthorized. The new access token carries the owner's current role.
func (s *TokenService) RotateRefreshToken(ctx context.Context, presented string) (model.Tokens, *model.User, error) {
	if presented == "" {
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}
	raw, next, err := s.newRefresh()
	if err != nil {
		return model.Tokens{}, nil, err
	}

	u, err := bounded(ctx, s.timeout, func(c context.Context) (*model.User, error) {
		return s.tokens.Rotate(c, pkgcrypto.TokenDigest(presented), next)
	})
	if err != nil && u == nil && (errors.Is(err, errs.ErrTokenReused) || errors.Is(err, errs.ErrUnauthorized)) {
		return model.Tokens{}, nil, errs.ErrUnauthorized
	}
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrTokenReused):
		s.log.Warn("refresh token reuse; revoking lineage", zap.String("user_id", u.ID.String()))
		if _, rerr := s.RevokeAll(ctx, u.ID); rerr != nil {
			s.log.Error("revoke after reuse", zap.String("user_id", u.ID.String()), zap.Error(rerr))
		}
		return model.Tokens{}, u, errs.ErrTokenReused
	case errors.Is(err, errs.ErrUnauthorized):
		if _, rerr := s.RevokeAll(ctx, u.ID); rerr != nil {
			s.log.Error("revoke inactive user", zap.String("user_id", u.ID.String()), zap.Error(rerr))
		}
		return model.Tokens{}, u, errs.ErrUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		return model.Tokens{}, nil, errs.ErrUnauthorized
	default:
		return model.Tokens{}, nil, err
	}

	access, accessExp, err := s.IssueAccessToken(u.ID, u.Role)
	if err != nil {
		return model.Tokens{}, nil, err
	}
	return model.Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     raw,
		RefreshExpiresAt: next.ExpiresAt,
	}, u, nil
}

// Revoke deletes a single refresh token. Unknown tokens are ignored.
func (s *TokenService) Revoke(ctx context.Context, presented string) error {
	if presented == "" {
		return nil
	}
	return boundedErr(ctx, s.timeout, func(c context.Context) error {
		return s.tokens.DeleteByHash(c, pkgcrypto.TokenDigest(presented))
	})
}

// RevokeAll deletes every refresh token of userID.
func (s *TokenService) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return bounded(ctx, s.timeout, func(c context.Context) (int64, error) {
		return s.tokens.DeleteByUser(c, userID)
	})
}

// Sweep deletes refresh tokens past their expiry.
func (s *TokenService) Sweep(ctx context.Context) (int64, error) {
	return bounded(ctx, s.timeout, func(c context.Context) (int64, error) {
		return s.tokens.DeleteExpired(c, s.now())
	})
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *TokenService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.log.Warn("refresh token sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("swept expired refresh tokens", zap.Int64("removed", n))
			}
		}
	}
}
