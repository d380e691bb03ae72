// Package workflow defines the lifecycle vocabulary of an onboarding record
// and the collaborator interfaces this service consumes. Transitions between
// statuses are driven by external systems; this service only gates actions
// against the current status.
package workflow

import (
	"context"
	"strings"
)

// Status is a lifecycle stage of an onboarding record.
type Status string

// Lifecycle statuses in order, from draft through the terminal states.
const (
	StatusDraft          Status = "Draft"
	StatusInProgress     Status = "In Progress"
	StatusInternalReview Status = "Internal Review"
	StatusReviewed       Status = "Reviewed"
	StatusSubmitted      Status = "Submitted"
	StatusClosed         Status = "Closed"
)

// Statuses lists every known lifecycle status in order.
func Statuses() []Status {
	return []Status{
		StatusDraft,
		StatusInProgress,
		StatusInternalReview,
		StatusReviewed,
		StatusSubmitted,
		StatusClosed,
	}
}

// Equal compares statuses case-insensitively.
func (s Status) Equal(other string) bool {
	return strings.EqualFold(string(s), strings.TrimSpace(other))
}

// StatusReader resolves the current lifecycle status of an onboarding
// record. Implemented by the external record store.
type StatusReader interface {
	Status(ctx context.Context, recordID string) (Status, error)
}

// OwnershipReader resolves the creator of an onboarding record. Implemented
// by the external record store.
type OwnershipReader interface {
	Creator(ctx context.Context, recordID string) (string, error)
}
