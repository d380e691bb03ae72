package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates an unknown principal or a bad secret.
	// Callers must not expose which of the two occurred.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountInactive indicates the credential is disabled.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountBlocked indicates a temporary lockout after repeated failures.
	ErrAccountBlocked = errors.New("account blocked")
	// ErrTokenExpired indicates a token that failed only the expiry check.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid indicates a signature, issuer, audience or structure failure.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrConfiguration indicates the service cannot authenticate as deployed.
	ErrConfiguration = errors.New("authentication misconfigured")
)

// BlockedError carries the remaining lockout duration. Lockout is true only
// on the attempt that tripped the threshold, so callers can raise a
// suspicious-activity event exactly once.
type BlockedError struct {
	RetryAfter time.Duration
	Lockout    bool
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("account blocked, retry in %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is match against ErrAccountBlocked.
func (e *BlockedError) Is(target error) bool {
	return target == ErrAccountBlocked
}
