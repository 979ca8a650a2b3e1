package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSRecorder publishes events as JSON to a subject.
type NATSRecorder struct {
	pub     Publisher
	subject string
}

// NewNATSRecorder constructs a publishing recorder.
func NewNATSRecorder(pub Publisher, subject string) *NATSRecorder {
	return &NATSRecorder{pub: pub, subject: subject}
}

type wireEvent struct {
	ID       string         `json:"id"`
	At       time.Time      `json:"at"`
	Action   string         `json:"action"`
	ActorID  string         `json:"actorId,omitempty"`
	TargetID string         `json:"targetId,omitempty"`
	Outcome  string         `json:"outcome"`
	Fields   map[string]any `json:"fields,omitempty"`
	Remote   string         `json:"remote,omitempty"`
}

// Record implements Recorder.
func (r *NATSRecorder) Record(_ context.Context, ev Event) error {
	w := wireEvent{
		ID:      ev.ID.String(),
		At:      ev.At.UTC(),
		Action:  ev.Action,
		Outcome: ev.Outcome,
		Fields:  ev.Fields,
		Remote:  ev.Remote,
	}
	if !ev.ActorID.IsNil() {
		w.ActorID = ev.ActorID.String()
	}
	if !ev.TargetID.IsNil() {
		w.TargetID = ev.TargetID.String()
	}
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return r.pub.Publish(r.subject, data)
}
