package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/peerislands/smart-onboarding/internal/auth"
	"github.com/peerislands/smart-onboarding/internal/observability"
	"github.com/peerislands/smart-onboarding/internal/policy"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	AuthMiddleware   auth.Middleware
	PolicyHandler    *policy.Handler
	PolicyMiddleware policy.Middleware
	Metrics          *observability.Metrics

	// Records is the onboarding-record CRUD surface supplied by the hosting
	// application. It is mounted behind the token, status and ownership
	// gates; nil leaves the surface unmounted.
	Records http.Handler
}

// NewRouter constructs the chi.Router with service defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		// Tighter limit on the credential endpoint than the global one.
		r.With(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
			Post("/login", params.AuthHandler.Login)
		params.AuthHandler.MountRoutes(r)
	})

	r.Route("/policy", func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireToken)
		params.PolicyHandler.MountRoutes(r)
	})

	if params.Records != nil {
		r.Route("/records/{id}", func(r chi.Router) {
			r.Use(params.AuthMiddleware.RequireToken)
			r.Use(params.PolicyMiddleware.RequireStatus)
			r.Use(params.PolicyMiddleware.RequireOwnership)
			r.Handle("/*", params.Records)
			r.Handle("/", params.Records)
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
