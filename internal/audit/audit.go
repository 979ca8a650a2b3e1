// Package audit records security events: authentication outcomes and admin mutations.
// The trail is append-only; there is no read API.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Actions.
const (
	ActionLogin          = "login"
	ActionRefresh        = "refresh"
	ActionRefreshReuse   = "refresh_reuse"
	ActionLogout         = "logout"
	ActionUserCreate     = "user_create"
	ActionUserUpdate     = "user_update"
	ActionUserDelete     = "user_delete"
	ActionSessionsRevoke = "sessions_revoke"
	ActionAdminAccess    = "admin_access"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one security-relevant fact. Nil IDs mean "not applicable".
type Event struct {
	ID       uuid.UUID
	At       time.Time
	Action   string
	ActorID  uuid.UUID
	TargetID uuid.UUID
	Outcome  string
	Fields   map[string]any
	Remote   string
}

// Stamp assigns the event ID and time and, when unset, the client address
// stored in ctx.
func Stamp(ctx context.Context, ev Event, now time.Time) (Event, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return Event{}, err
	}
	ev.ID = id
	ev.At = now.UTC()
	if ev.Remote == "" {
		ev.Remote = RemoteFrom(ctx)
	}
	return ev, nil
}

// Recorder persists or forwards events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev Event) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Nop discards events.
var Nop Recorder = RecorderFunc(func(context.Context, Event) error { return nil })

type multi []Recorder

// Multi fans an event out to every recorder; all are tried even if some fail.
func Multi(recs ...Recorder) Recorder {
	var out multi
	for _, r := range recs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, ev Event) error {
	var all []error
	for _, r := range m {
		if err := r.Record(ctx, ev); err != nil {
			all = append(all, err)
		}
	}
	return errors.Join(all...)
}

type remoteKey struct{}

// WithRemote stores the client address for events recorded under ctx.
func WithRemote(ctx context.Context, remote string) context.Context {
	return context.WithValue(ctx, remoteKey{}, remote)
}

// RemoteFrom returns the client address stored by WithRemote.
func RemoteFrom(ctx context.Context) string {
	s, _ := ctx.Value(remoteKey{}).(string)
	return s
}
