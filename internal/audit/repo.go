package audit

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Writer persists audit events.
type Writer interface {
	Insert(ctx context.Context, event Event) error
}

// PGWriter implements Writer using PostgreSQL.
type PGWriter struct {
	pool *pgxpool.Pool
}

// NewWriter constructs a PostgreSQL audit writer.
func NewWriter(pool *pgxpool.Pool) *PGWriter {
	return &PGWriter{pool: pool}
}

// Insert stores the event in auth_audit_logs.
func (w *PGWriter) Insert(ctx context.Context, event Event) error {
	if w == nil || w.pool == nil {
		return errors.New("audit writer not initialised")
	}
	if event.PrincipalID == "" || event.Action == "" {
		return errors.New("audit event requires principal and action")
	}
	_, err := w.pool.Exec(ctx,
		`INSERT INTO auth_audit_logs (principal_id, origin, action, success, reason, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.PrincipalID, event.Origin, event.Action, event.Success, event.Reason, event.At)
	return err
}

var _ Writer = (*PGWriter)(nil)
