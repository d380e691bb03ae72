package policy

import (
	"errors"
	"fmt"
)

// ErrNoSecurityContext indicates authorization was attempted with no
// resolvable caller. Distinct from a denial: the caller is unknown, not
// forbidden.
var ErrNoSecurityContext = errors.New("no security context")

// ErrAccessDenied is the base denial error; use AccessDeniedError to carry
// the human-readable reason.
var ErrAccessDenied = errors.New("access denied")

// AccessDeniedError names what blocked the action so the caller can explain
// why it is currently unavailable.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

// Is lets errors.Is match against ErrAccessDenied.
func (e *AccessDeniedError) Is(target error) bool {
	return target == ErrAccessDenied
}
