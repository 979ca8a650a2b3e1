package httpserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
)

// AccessCookie and RefreshCookie name the session cookies.
const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// TokenVerifier checks an access token and returns its principal.
type TokenVerifier interface {
	Verify(token string) (model.Principal, error)
}

// Guard authenticates requests from their access token. Role checks read only
// the verified claims.
type Guard struct {
	verifier TokenVerifier
	rec      audit.Recorder
	log      *zap.Logger
	now      func() time.Time
}

// NewGuard constructs a Guard. Requests it turns away are recorded through
// rec; a nil rec records nothing.
func NewGuard(v TokenVerifier, rec audit.Recorder, log *zap.Logger) *Guard {
	if rec == nil {
		rec = audit.Nop
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{verifier: v, rec: rec, log: log, now: time.Now}
}

// deny records an admin route refusal. Recording failures are logged only.
func (g *Guard) deny(r *http.Request, actor uuid.UUID, reason string) {
	ev, err := audit.Stamp(r.Context(), audit.Event{
		Action:  audit.ActionAdminAccess,
		ActorID: actor,
		Outcome: audit.OutcomeFailure,
		Fields:  map[string]any{"reason": reason, "method": r.Method, "path": r.URL.Path},
	}, g.now())
	if err != nil {
		g.log.Error("audit event id", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := g.rec.Record(ctx, ev); err != nil {
		g.log.Warn("audit record failed", zap.String("action", ev.Action), zap.Error(err))
	}
}

// TokenFromRequest returns the access token from the cookie, falling back to
// an Authorization: Bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireAuth verifies token. Every failure is errs.ErrUnauthorized.
func (g *Guard) RequireAuth(token string) (model.Principal, error) {
	if token == "" {
		return model.Principal{}, errs.ErrUnauthorized
	}
	p, err := g.verifier.Verify(token)
	if err != nil {
		return model.Principal{}, errs.ErrUnauthorized
	}
	return p, nil
}

// IsAdmin reports whether p may use admin routes.
func IsAdmin(p model.Principal) bool { return p.IsAdmin() }

// Authenticate rejects requests without a valid access token and stores the
// principal in the request context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		p, err := g.RequireAuth(token)
		if err != nil {
			reason := "invalid_token"
			if token == "" {
				reason = "no_token"
			}
			g.deny(r, uuid.Nil, reason)
			respondError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin must run after Authenticate. A non-admin gets the same 401 as a
// missing session.
func (g *Guard) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromCtx(r.Context())
		if !ok || !IsAdmin(p) {
			g.deny(r, p.UserID, "not_admin")
			respondError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
