// Package audit records every login attempt and suspicious authentication
// event. Events are enqueued to the background worker; losing an event must
// never fail the request that produced it.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeRecord is the asynq task type for persisting an audit event.
const TaskTypeRecord = "audit:record"

// Event is a single authentication audit record.
type Event struct {
	PrincipalID string    `json:"principal_id"`
	Origin      string    `json:"origin"`
	Action      string    `json:"action"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// Actions recorded by the authentication surface.
const (
	ActionLogin   = "auth.login"
	ActionLogout  = "auth.logout"
	ActionLockout = "auth.lockout"
)

// Enqueuer is the subset of asynq.Client the recorder needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Recorder hands audit events to the background pipeline. Reasons are
// redacted before leaving this package.
type Recorder struct {
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewRecorder constructs a Recorder.
func NewRecorder(enqueuer Enqueuer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{enqueuer: enqueuer, logger: logger}
}

// Record enqueues the event. Failure to enqueue is logged, never returned:
// audit delivery is best effort relative to the request lifecycle.
func (r *Recorder) Record(ctx context.Context, event Event) {
	event.Reason = Redact(event.Reason)
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("audit: marshal event", slog.Any("error", err))
		return
	}
	if r.enqueuer == nil {
		r.logger.Info("audit event",
			slog.String("principal", event.PrincipalID),
			slog.String("action", event.Action),
			slog.Bool("success", event.Success),
			slog.String("reason", event.Reason))
		return
	}
	task := asynq.NewTask(TaskTypeRecord, payload, asynq.MaxRetry(5))
	if _, err := r.enqueuer.EnqueueContext(ctx, task); err != nil {
		r.logger.Error("audit: enqueue event",
			slog.String("principal", event.PrincipalID), slog.Any("error", err))
	}
}
