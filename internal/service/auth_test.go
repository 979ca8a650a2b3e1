package service

import (
	"context"
	"errors"
	"testing"

	"github.com/and161185/console-auth/internal/audit"
	"github.com/and161185/console-auth/internal/errs"
	"github.com/and161185/console-auth/internal/model"
	"github.com/gofrs/uuid/v5"
)

func TestLogin_SuccessThenVerify(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	u := e.seed(t, "alice", "correct-horse", model.RoleUser, true)
	ctx := audit.WithRemote(context.Background(), "203.0.113.9")

	tok, got, err := e.auth.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got.ID != u.ID || tok.AccessToken == "" || tok.RefreshToken == "" {
		t.Fatalf("bad login result: %+v %+v", tok, got)
	}

	p, err := e.auth.Verify(tok.AccessToken)
	if err != nil || p.UserID != u.ID || p.Role != model.RoleUser {
		t.Fatalf("verify after login: %+v %v", p, err)
	}
	if e.store.touched != 1 {
		t.Fatalf("last_login must be updated")
	}
	ev := e.rec.last()
	if ev.Action != audit.ActionLogin || ev.Outcome != audit.OutcomeSuccess || ev.ActorID != u.ID {
		t.Fatalf("bad audit event: %+v", ev)
	}
	if ev.Remote != "203.0.113.9" || ev.ID.IsNil() || ev.At.IsZero() {
		t.Fatalf("event not stamped: %+v", ev)
	}
}

func TestLogin_TrimsUsername(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	root := e.seed(t, "root", "password-1", model.RoleAdmin, true)
	ctx := context.Background()

	u, err := e.accounts.Create(ctx, adminPrincipal(root), model.NewUser{
		Username: " alice", Email: "alice@example.com", Password: "alice-password",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, name := range []string{" alice", "alice ", "alice"} {
		_, got, err := e.auth.Login(ctx, name, "alice-password")
		if err != nil || got.ID != u.ID {
			t.Fatalf("login as %q: %v", name, err)
		}
	}
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "alice", "correct-horse", model.RoleUser, true)
	e.seed(t, "ivan", "correct-horse", model.RoleUser, false)

	cases := []struct{ name, user, pass, reason string }{
		{"unknown user", "nobody", "correct-horse", "unknown_user"},
		{"wrong password", "alice", "wrong-horse", "bad_password"},
		{"inactive", "ivan", "correct-horse", "inactive"},
	}
	for _, c := range cases {
		tok, u, err := e.auth.Login(context.Background(), c.user, c.pass)
		if !errors.Is(err, errs.ErrUnauthorized) || err != errs.ErrUnauthorized {
			t.Fatalf("%s: want bare ErrUnauthorized, got %v", c.name, err)
		}
		if u != nil || tok.AccessToken != "" {
			t.Fatalf("%s: leaked result", c.name)
		}
		ev := e.rec.last()
		if ev.Outcome != audit.OutcomeFailure || ev.Fields["reason"] != c.reason {
			t.Fatalf("%s: audit %+v", c.name, ev)
		}
	}
	if e.store.touched != 0 {
		t.Fatalf("failed logins must not touch last_login")
	}
}

func TestLogin_StoreFailureIsDependency(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.store.readFailures = 1

	_, _, err := e.auth.Login(context.Background(), "alice", "x")
	if !errors.Is(err, errs.ErrDependency) {
		t.Fatalf("want ErrDependency, got %v", err)
	}
	if e.store.readCalls != 1 {
		t.Fatalf("login lookups must not be retried, calls=%d", e.store.readCalls)
	}
}

func TestRefresh_AuditsReuse(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	u := e.seed(t, "alice", "correct-horse", model.RoleUser, true)
	ctx := context.Background()

	tok, _, err := e.auth.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	next, _, err := e.auth.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == tok.RefreshToken {
		t.Fatalf("refresh token must change")
	}
	if _, _, err := e.auth.Refresh(ctx, tok.RefreshToken); !errors.Is(err, errs.ErrTokenReused) {
		t.Fatalf("want ErrTokenReused, got %v", err)
	}
	ev := e.rec.last()
	if ev.Action != audit.ActionRefreshReuse || ev.TargetID != u.ID {
		t.Fatalf("reuse not audited: %+v", ev)
	}
	if _, _, err := e.auth.Refresh(ctx, next.RefreshToken); err == nil {
		t.Fatalf("lineage must be revoked after reuse")
	}
	if e.rec.count(audit.ActionRefresh, audit.OutcomeSuccess) != 1 {
		t.Fatalf("want one successful refresh event")
	}
}

func TestLogout_RevokesPresentedToken(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	u := e.seed(t, "alice", "correct-horse", model.RoleUser, true)
	ctx := context.Background()

	a, _, _ := e.auth.Login(ctx, "alice", "correct-horse")
	b, _, _ := e.auth.Login(ctx, "alice", "correct-horse")

	if err := e.auth.Logout(ctx, u.ID, a.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := e.auth.Refresh(ctx, a.RefreshToken); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("logged-out token must be dead, got %v", err)
	}
	if _, _, err := e.auth.Refresh(ctx, b.RefreshToken); err != nil {
		t.Fatalf("other session must survive logout: %v", err)
	}
	if err := e.auth.Logout(ctx, uuid.Nil, ""); err != nil {
		t.Fatalf("logout without token: %v", err)
	}
	if e.rec.count(audit.ActionLogout, audit.OutcomeSuccess) != 2 {
		t.Fatalf("logout events missing")
	}
}

func TestAudit_FailureDoesNotFailRequest(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.seed(t, "alice", "correct-horse", model.RoleUser, true)
	e.rec.err = errors.New("audit sink down")

	if _, _, err := e.auth.Login(context.Background(), "alice", "correct-horse"); err != nil {
		t.Fatalf("login must succeed despite audit failure: %v", err)
	}
}

// The end-to-end promotion path: a user cannot reach admin operations until a
// refresh after promotion re-reads the role.
func TestPromotionVisibleAfterRefresh(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	root := e.seed(t, "root", "root-password", model.RoleAdmin, true)
	ctx := context.Background()

	alice, err := e.accounts.Create(ctx, adminPrincipal(root), model.NewUser{
		Username: "alice", Email: "alice@example.com", Password: "alice-password", Role: model.RoleUser,
	})
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}

	tok, _, err := e.auth.Login(ctx, "alice", "alice-password")
	if err != nil {
		t.Fatalf("login alice: %v", err)
	}
	p, _ := e.auth.Verify(tok.AccessToken)
	if _, err := e.accounts.List(ctx, p); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("user must be refused admin op, got %v", err)
	}

	admin := model.RoleAdmin
	if _, err := e.accounts.Update(ctx, adminPrincipal(root), alice.ID, model.UserUpdate{Role: &admin}); err != nil {
		t.Fatalf("promote: %v", err)
	}
	p, _ = e.auth.Verify(tok.AccessToken)
	if p.IsAdmin() {
		t.Fatalf("old access token must keep the old role")
	}

	next, _, err := e.auth.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		t.Fatalf("refresh after promotion: %v", err)
	}
	p, _ = e.auth.Verify(next.AccessToken)
	if _, err := e.accounts.List(ctx, p); err != nil {
		t.Fatalf("promoted user must reach admin op: %v", err)
	}
}
