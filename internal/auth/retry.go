package auth

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgconn"
)

// retryPolicy is the enumerable retry table for transient infrastructure
// failures. The boundary sits around the infrastructure call only; credential
// comparison and other non-transient work is never re-executed.
type retryPolicy struct {
	attempts int
	backoff  time.Duration
}

var infraRetry = retryPolicy{attempts: 3, backoff: 200 * time.Millisecond}

// do runs fn, retrying only while transientError reports the failure as
// recoverable. The last error is surfaced after the attempts are exhausted.
func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
		if !transientError(err) {
			return err
		}
	}
	return err
}

// transientError classifies infrastructure failures worth retrying. Bad
// credentials, inactive accounts and other domain errors never match.
func transientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrAccountInactive) ||
		errors.Is(err, ErrAccountBlocked) ||
		errors.Is(err, ErrCredentialNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, errDirectoryUnavailable) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
