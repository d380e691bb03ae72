package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/peerislands/smart-onboarding/internal/audit"
	"github.com/peerislands/smart-onboarding/internal/platform/httpx"
)

// DisplayNameResolver looks up the display fields for the login response.
type DisplayNameResolver interface {
	DisplayName(ctx context.Context, principalID string) (first, last string, err error)
}

// PasswordResetter is the opaque password-reset capability consumed by the
// login surface. Its token lifecycle lives elsewhere.
type PasswordResetter interface {
	RequestReset(ctx context.Context, principalID string) error
}

// RepositoryNames resolves display names from the identity repository.
type RepositoryNames struct {
	Repo Repository
}

// DisplayName implements DisplayNameResolver.
func (r RepositoryNames) DisplayName(ctx context.Context, principalID string) (string, string, error) {
	cred, err := r.Repo.FindByEmail(ctx, principalID)
	if err != nil {
		return "", "", err
	}
	return cred.FirstName, cred.LastName, nil
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger        *slog.Logger
	authenticator Authenticator
	issuer        *TokenIssuer
	sessions      *SessionStore
	names         DisplayNameResolver
	recorder      *audit.Recorder
	resetter      PasswordResetter
	validator     *validator.Validate

	// syncSessionWrites makes the post-login session write synchronous.
	// Enabled in test mode so assertions can observe the entry immediately.
	syncSessionWrites bool

	metrics LoginMetrics
}

// LoginMetrics counts login outcomes. Optional.
type LoginMetrics interface {
	LoginAttempt(outcome string)
}

// SetMetrics wires the login outcome counter.
func (h *Handler) SetMetrics(m LoginMetrics) {
	h.metrics = m
}

func (h *Handler) countLogin(outcome string) {
	if h.metrics != nil {
		h.metrics.LoginAttempt(outcome)
	}
}

// SetSynchronousSessionWrites toggles the detached session write. Production
// keeps it detached; tests and test mode run it inline.
func (h *Handler) SetSynchronousSessionWrites(sync bool) {
	h.syncSessionWrites = sync
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, authenticator Authenticator, issuer *TokenIssuer, sessions *SessionStore, names DisplayNameResolver, recorder *audit.Recorder, resetter PasswordResetter) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:        logger,
		authenticator: authenticator,
		issuer:        issuer,
		sessions:      sessions,
		names:         names,
		recorder:      recorder,
		resetter:      resetter,
		validator:     validator.New(),
	}
}

// MountRoutes registers auth routes on the provided router. Login is mounted
// separately by the hosting router so it can carry its own rate limit.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/logout", h.handleLogout)
	r.Get("/session", h.handleSession)
	r.Post("/password-reset", h.handlePasswordReset)
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Status     string   `json:"status"`
	Email      string   `json:"email"`
	FirstName  string   `json:"firstName,omitempty"`
	LastName   string   `json:"lastName,omitempty"`
	ActiveRole string   `json:"activeRole"`
	Roles      []string `json:"roles"`
	Token      string   `json:"token"`
}

type loginFailure struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginFailure{Status: "invalid_request", Message: "malformed request body"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginFailure{Status: "invalid_request", Message: "email and password are required"})
		return
	}

	origin := clientIP(r)
	principal, err := h.authenticator.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondLoginFailure(w, r, req.Email, origin, err)
		return
	}

	// Token issuance and the display-name lookup are independent; run them
	// concurrently and join before building the response.
	var (
		token       string
		first, last string
	)
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		minted, err := h.issuer.Issue(principal.ID, principal.Roles, principal.ActiveRole(), principal.SessionID)
		if err == nil {
			token = minted
		}
		return err
	})
	group.Go(func() error {
		f, l, err := h.names.DisplayName(ctx, principal.ID)
		if err == nil {
			first, last = f, l
		}
		return err
	})
	if err := group.Wait(); err != nil {
		// Backstop for the login path: never leak internal detail through an
		// auth endpoint. Full detail stays server-side.
		h.logger.Error("login pipeline failed after authentication",
			slog.String("principal", principal.ID), slog.Any("error", err))
		h.recorder.Record(r.Context(), audit.Event{
			PrincipalID: principal.ID, Origin: origin,
			Action: audit.ActionLogin, Success: false, Reason: "post-auth pipeline failure",
		})
		httpx.JSON(w, http.StatusUnauthorized, loginFailure{Status: "unauthorized", Message: "authentication failed"})
		return
	}

	// The session write is a detached side effect: the response is already
	// determined and a storage failure must only be logged.
	h.writeSession(r.Context(), principal)

	h.recorder.Record(r.Context(), audit.Event{
		PrincipalID: principal.ID, Origin: origin,
		Action: audit.ActionLogin, Success: true,
	})
	h.countLogin("success")

	httpx.JSON(w, http.StatusOK, loginResponse{
		Status:     "success",
		Email:      principal.ID,
		FirstName:  first,
		LastName:   last,
		ActiveRole: principal.ActiveRole(),
		Roles:      principal.Roles,
		Token:      token,
	})
}

func (h *Handler) writeSession(ctx context.Context, principal *Principal) {
	store := func(ctx context.Context) {
		if !h.sessions.Create(ctx, principal.ID, principal.SessionID, principal.ActiveRole(), principal.Roles) {
			h.logger.Warn("session write failed after login",
				slog.String("principal", principal.ID),
				slog.String("session", principal.SessionID))
		}
	}
	if h.syncSessionWrites {
		store(ctx)
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(detached, 5*time.Second)
		defer cancel()
		store(ctx)
	}()
}

func (h *Handler) respondLoginFailure(w http.ResponseWriter, r *http.Request, principalID, origin string, err error) {
	record := func(reason string) {
		h.recorder.Record(r.Context(), audit.Event{
			PrincipalID: principalID, Origin: origin,
			Action: audit.ActionLogin, Success: false, Reason: reason,
		})
	}

	var blocked *BlockedError
	switch {
	case errors.As(err, &blocked):
		h.countLogin("blocked")
		record("account blocked")
		if blocked.Lockout {
			h.recorder.Record(r.Context(), audit.Event{
				PrincipalID: principalID, Origin: origin,
				Action: audit.ActionLockout, Success: false, Reason: "failure threshold reached",
			})
		}
		httpx.JSON(w, http.StatusLocked, loginFailure{
			Status:            "blocked",
			Message:           "account temporarily blocked after repeated failures",
			RetryAfterSeconds: int64(blocked.RetryAfter.Seconds()) + 1,
		})
	case errors.Is(err, ErrAccountInactive):
		h.countLogin("inactive")
		record("account inactive")
		httpx.JSON(w, http.StatusUnauthorized, loginFailure{Status: "inactive", Message: "account is inactive"})
	case errors.Is(err, ErrInvalidCredentials):
		h.countLogin("invalid")
		record("invalid credentials")
		httpx.JSON(w, http.StatusUnauthorized, loginFailure{Status: "invalid_credentials", Message: "invalid email or password"})
	case errors.Is(err, ErrConfiguration):
		h.logger.Error("login rejected by misconfigured deployment", slog.Any("error", err))
		record("configuration error")
		httpx.JSON(w, http.StatusInternalServerError, loginFailure{Status: "error", Message: "authentication unavailable"})
	default:
		// Backstop: unanticipated errors become a generic 401 on this path.
		h.logger.Error("login failed unexpectedly",
			slog.String("principal", principalID), slog.Any("error", err))
		record("unexpected failure")
		httpx.JSON(w, http.StatusUnauthorized, loginFailure{Status: "unauthorized", Message: "authentication failed"})
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
		return
	}
	principal, err := h.issuer.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token expired")
			return
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token invalid")
		return
	}

	// Idempotent: report success whether or not an entry existed.
	h.sessions.Invalidate(r.Context(), principal.ID, principal.SessionID)
	h.recorder.Record(r.Context(), audit.Event{
		PrincipalID: principal.ID, Origin: clientIP(r),
		Action: audit.ActionLogout, Success: true,
	})
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
		return
	}
	principal, err := h.issuer.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token expired")
			return
		}
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token invalid")
		return
	}
	if !h.sessions.Validate(r.Context(), principal.ID, principal.SessionID) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session no longer valid")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":     "active",
		"email":      principal.ID,
		"activeRole": principal.ActiveRole(),
		"roles":      principal.Roles,
	})
}

type passwordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginFailure{Status: "invalid_request", Message: "malformed request body"})
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.JSON(w, http.StatusBadRequest, loginFailure{Status: "invalid_request", Message: "email is required"})
		return
	}
	if h.resetter != nil {
		if err := h.resetter.RequestReset(r.Context(), req.Email); err != nil {
			h.logger.Warn("password reset request failed", slog.Any("error", err))
		}
	}
	// Always accepted: the response must not reveal whether the email exists.
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
