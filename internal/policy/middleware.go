package policy

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/peerislands/smart-onboarding/internal/auth"
	"github.com/peerislands/smart-onboarding/internal/platform/httpx"
	"github.com/peerislands/smart-onboarding/internal/workflow"
)

// DenialCounter increments a metric per policy denial. Optional.
type DenialCounter interface {
	PolicyDenied(role string)
}

// Middleware gates record-mutating routes on the record's current lifecycle
// status and, where needed, on ownership. The caller's role and intended
// action are resolved here and passed to the engine explicitly.
type Middleware struct {
	Engine    *Engine
	Statuses  workflow.StatusReader
	Ownership workflow.OwnershipReader
	Logger    *slog.Logger
	Denials   DenialCounter
}

// RequireStatus authorizes the request against the record's current status.
// Reads pass through untouched; only mutating methods are gated.
func (m Middleware) RequireStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		principal := auth.PrincipalFromContext(r.Context())
		if principal == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no security context")
			return
		}

		recordID := chi.URLParam(r, "id")
		status, err := m.Statuses.Status(r.Context(), recordID)
		if err != nil {
			m.logger().Error("resolve record status",
				slog.String("record", recordID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}

		if err := m.Engine.Enforce(principal.ActiveRole(), status, r.Method); err != nil {
			m.respondDenied(w, principal.ActiveRole(), err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireOwnership authorizes the request against the record's creator.
func (m Middleware) RequireOwnership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := auth.PrincipalFromContext(r.Context())
		if principal == nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no security context")
			return
		}

		recordID := chi.URLParam(r, "id")
		creator, err := m.Ownership.Creator(r.Context(), recordID)
		if err != nil {
			m.logger().Error("resolve record creator",
				slog.String("record", recordID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}

		if err := m.Engine.CheckOwnership(principal.ID, principal.ActiveRole(), creator); err != nil {
			m.respondDenied(w, principal.ActiveRole(), err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m Middleware) respondDenied(w http.ResponseWriter, role string, err error) {
	if errors.Is(err, ErrNoSecurityContext) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no security context")
		return
	}
	var denied *AccessDeniedError
	if errors.As(err, &denied) {
		if m.Denials != nil {
			m.Denials.PolicyDenied(role)
		}
		httpx.Problem(w, http.StatusForbidden, "Forbidden", denied.Reason)
		return
	}
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "access denied")
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
