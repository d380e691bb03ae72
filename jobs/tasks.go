package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/peerislands/smart-onboarding/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
)

// NewAuditRecordHandler returns the handler that persists audit events
// delivered through the queue.
func NewAuditRecordHandler(writer audit.Writer, metrics *Metrics, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) (err error) {
		tracker := metrics.Track(audit.TaskTypeRecord)
		defer func() { tracker.Done(err) }()

		var event audit.Event
		if err = json.Unmarshal(t.Payload(), &event); err != nil {
			logger.Error("audit task: malformed payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err = writer.Insert(ctx, event); err != nil {
			logger.Warn("audit task: insert failed",
				slog.String("principal", event.PrincipalID), slog.Any("error", err))
			return err
		}
		return nil
	}
}
