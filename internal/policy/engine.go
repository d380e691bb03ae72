package policy

import (
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/peerislands/smart-onboarding/internal/auth"
	"github.com/peerislands/smart-onboarding/internal/workflow"
)

// Roles with special standing in the ownership check.
const (
	// RoleManager bypasses ownership entirely.
	RoleManager = "ROLE_MANAGER"
	// RolePM owns the records it created.
	RolePM = "ROLE_PM"
)

var statusTitle = cases.Title(language.English)

// Engine answers whether a role may perform an action against a record in a
// given lifecycle status. It never mutates status itself.
type Engine struct {
	enabled     bool
	roleAccess  bool
	permissions map[string][]StatusRule
	logger      *slog.Logger
}

// NewEngine builds the engine from the loaded matrix. Role names from the
// configuration are normalized once here, so entries with and without the
// role prefix collapse onto the same rule set.
func NewEngine(cfg *Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	engine := &Engine{logger: logger, permissions: make(map[string][]StatusRule)}
	if cfg == nil {
		return engine
	}
	engine.enabled = cfg.Enabled
	engine.roleAccess = cfg.RoleAccessEnabled
	for _, perm := range cfg.Permissions {
		role := auth.NormalizeRole(perm.Role)
		if role == "" {
			continue
		}
		engine.permissions[role] = append(engine.permissions[role], perm.Rules...)
	}
	return engine
}

// Enabled reports whether the matrix is enforced at all.
func (e *Engine) Enabled() bool {
	return e != nil && e.enabled
}

// IsAllowed reports whether the role may perform the action while the record
// is in the given status. Role comparison is prefix-normalized on both
// sides; status comparison is case-insensitive. A disabled policy permits
// everything.
func (e *Engine) IsAllowed(role string, status workflow.Status, action string) bool {
	if !e.Enabled() || !e.roleAccess {
		return true
	}
	rules, ok := e.permissions[auth.NormalizeRole(role)]
	if !ok {
		return false
	}
	action = strings.ToUpper(strings.TrimSpace(action))
	for _, rule := range rules {
		if !status.Equal(rule.Status) {
			continue
		}
		for _, allowed := range rule.Actions {
			if strings.EqualFold(allowed, action) {
				return true
			}
		}
	}
	return false
}

// Enforce checks the resolved caller role and action against the record's
// current status. The caller's identity is passed explicitly; a missing role
// is ErrNoSecurityContext, a mismatch is an AccessDeniedError naming the
// blocking status.
func (e *Engine) Enforce(role string, status workflow.Status, action string) error {
	if strings.TrimSpace(role) == "" {
		return ErrNoSecurityContext
	}
	if e.IsAllowed(role, status, action) {
		return nil
	}
	return &AccessDeniedError{
		Reason: fmt.Sprintf("action not permitted while the record is in status %s",
			statusTitle.String(strings.ToLower(string(status)))),
	}
}

// AllowedStatuses returns every status in which the role has at least one
// permitted action. Empty when the policy is disabled.
func (e *Engine) AllowedStatuses(role string) []workflow.Status {
	if !e.Enabled() {
		return nil
	}
	rules, ok := e.permissions[auth.NormalizeRole(role)]
	if !ok {
		return nil
	}
	var statuses []workflow.Status
	seen := make(map[workflow.Status]struct{})
	for _, known := range workflow.Statuses() {
		for _, rule := range rules {
			if _, dup := seen[known]; dup {
				continue
			}
			if known.Equal(rule.Status) && len(rule.Actions) > 0 {
				seen[known] = struct{}{}
				statuses = append(statuses, known)
			}
		}
	}
	return statuses
}

// CheckOwnership gates record access by creator. Managers bypass ownership,
// a PM must be the recorded creator, every other role is denied outright.
// The caller identity is resolved by the caller; absence of it must be
// handled there as ErrNoSecurityContext, not as a mismatch.
func (e *Engine) CheckOwnership(callerID, callerRole, creatorID string) error {
	if strings.TrimSpace(callerID) == "" || strings.TrimSpace(callerRole) == "" {
		return ErrNoSecurityContext
	}
	switch auth.NormalizeRole(callerRole) {
	case RoleManager:
		return nil
	case RolePM:
		if callerID == creatorID {
			return nil
		}
		return &AccessDeniedError{
			Reason: fmt.Sprintf("record belongs to %s", creatorID),
		}
	default:
		return &AccessDeniedError{Reason: "role may not access records by ownership"}
	}
}
