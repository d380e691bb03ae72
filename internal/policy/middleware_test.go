package policy_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/peerislands/smart-onboarding/internal/auth"
	"github.com/peerislands/smart-onboarding/internal/platform/httpx"
	"github.com/peerislands/smart-onboarding/internal/policy"
	"github.com/peerislands/smart-onboarding/internal/workflow"
	_ "github.com/peerislands/smart-onboarding/internal/testing/guard"
)

type stubRecords struct {
	status  workflow.Status
	creator string
	err     error
}

func (s stubRecords) Status(ctx context.Context, recordID string) (workflow.Status, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.status, nil
}

func (s stubRecords) Creator(ctx context.Context, recordID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.creator, nil
}

func guardedRouter(records stubRecords) http.Handler {
	engine := policy.NewEngine(testConfig(), nil)
	mw := policy.Middleware{
		Engine:    engine,
		Statuses:  records,
		Ownership: records,
	}

	r := chi.NewRouter()
	r.Route("/records/{id}", func(r chi.Router) {
		r.Use(mw.RequireStatus)
		r.Use(mw.RequireOwnership)
		r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return r
}

func requestAs(method, target string, principal *auth.Principal) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if principal != nil {
		req = req.WithContext(auth.ContextWithPrincipal(req.Context(), principal))
	}
	return req
}

func TestStatusGatePermitsConfiguredAction(t *testing.T) {
	router := guardedRouter(stubRecords{status: workflow.StatusDraft, creator: "pm_alice"})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, requestAs(http.MethodPut, "/records/r1/", &auth.Principal{
		ID:    "pm_alice",
		Roles: []string{"ROLE_PM"},
	}))
	require.Equal(t, http.StatusNoContent, res.Code)
}

func TestStatusGateDeniesAndNamesStatus(t *testing.T) {
	router := guardedRouter(stubRecords{status: workflow.StatusSubmitted, creator: "pm_alice"})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, requestAs(http.MethodPut, "/records/r1/", &auth.Principal{
		ID:    "pm_alice",
		Roles: []string{"ROLE_PM"},
	}))
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "Submitted")
}

func TestOwnershipGateDeniesForeignRecord(t *testing.T) {
	router := guardedRouter(stubRecords{status: workflow.StatusDraft, creator: "pm_alice"})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, requestAs(http.MethodGet, "/records/r1/", &auth.Principal{
		ID:    "pm_bob",
		Roles: []string{"ROLE_PM"},
	}))
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Contains(t, res.Body.String(), "pm_alice")
}

func TestGateMapsUnknownRecordToNotFound(t *testing.T) {
	router := guardedRouter(stubRecords{err: httpx.ErrNotFound})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, requestAs(http.MethodPut, "/records/missing/", &auth.Principal{
		ID:    "pm_alice",
		Roles: []string{"ROLE_PM"},
	}))
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestGatesRequireSecurityContext(t *testing.T) {
	router := guardedRouter(stubRecords{status: workflow.StatusDraft, creator: "pm_alice"})

	res := httptest.NewRecorder()
	router.ServeHTTP(res, requestAs(http.MethodPut, "/records/r1/", nil))
	require.Equal(t, http.StatusUnauthorized, res.Code)
}
