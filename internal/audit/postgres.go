package audit

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of a pgx pool the Postgres recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRecorder appends events to the security_events table.
type PGRecorder struct{ db Execer }

// NewPGRecorder constructs a Postgres-backed recorder.
func NewPGRecorder(db Execer) *PGRecorder { return &PGRecorder{db: db} }

// Record implements Recorder.
func (r *PGRecorder) Record(ctx context.Context, ev Event) error {
	fields := ev.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO security_events (id, occurred_at, action, actor_id, target_id, outcome, fields, remote)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.Exec(ctx, q, ev.ID, ev.At, ev.Action, nullID(ev.ActorID), nullID(ev.TargetID), ev.Outcome, raw, ev.Remote)
	return err
}

func nullID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: !id.IsNil()}
}
