package policy

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/peerislands/smart-onboarding/internal/auth"
	"github.com/peerislands/smart-onboarding/internal/platform/httpx"
	"github.com/peerislands/smart-onboarding/internal/workflow"
)

// Handler exposes policy hints for clients, e.g. to disable UI controls for
// statuses the caller cannot act on.
type Handler struct {
	Engine *Engine
}

// MountRoutes registers policy routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/statuses", h.handleAllowedStatuses)
}

func (h *Handler) handleAllowedStatuses(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no security context")
		return
	}
	statuses := h.Engine.AllowedStatuses(principal.ActiveRole())
	if statuses == nil {
		statuses = []workflow.Status{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role":     principal.ActiveRole(),
		"statuses": statuses,
	})
}
