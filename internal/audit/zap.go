package audit

import (
	"context"

	"go.uber.org/zap"
)

// ZapRecorder writes each event as one structured log line.
type ZapRecorder struct{ log *zap.Logger }

// NewZapRecorder constructs a recorder logging under the "audit" name.
func NewZapRecorder(log *zap.Logger) *ZapRecorder {
	return &ZapRecorder{log: log.Named("audit")}
}

// Record implements Recorder.
func (r *ZapRecorder) Record(_ context.Context, ev Event) error {
	fields := []zap.Field{
		zap.String("event_id", ev.ID.String()),
		zap.Time("at", ev.At),
		zap.String("action", ev.Action),
		zap.String("outcome", ev.Outcome),
	}
	if !ev.ActorID.IsNil() {
		fields = append(fields, zap.String("actor_id", ev.ActorID.String()))
	}
	if !ev.TargetID.IsNil() {
		fields = append(fields, zap.String("target_id", ev.TargetID.String()))
	}
	if ev.Remote != "" {
		fields = append(fields, zap.String("remote", ev.Remote))
	}
	if len(ev.Fields) > 0 {
		fields = append(fields, zap.Any("fields", ev.Fields))
	}
	r.log.Info("security event", fields...)
	return nil
}
