package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/peerislands/smart-onboarding/internal/audit"
	"github.com/peerislands/smart-onboarding/internal/auth"
	_ "github.com/peerislands/smart-onboarding/internal/testing/guard"
)

type handlerFixture struct {
	handler  *auth.Handler
	issuer   *auth.TokenIssuer
	sessions *auth.SessionStore
	redis    *miniredis.Miniredis
}

func newHandlerFixture(t *testing.T, repo auth.Repository, maxAttempts int) handlerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	guard := auth.NewAttemptGuard(client, maxAttempts, 15*time.Minute, nil)
	issuer := auth.NewTokenIssuer("test-secret", "smart-onboarding", "smart-onboarding-clients", 24*time.Hour, nil)
	sessions := auth.NewSessionStore(client, 24*time.Hour, nil)
	authenticator := auth.NewLocalAuthenticator(repo, guard, "PM", nil)
	recorder := audit.NewRecorder(nil, nil)

	handler := auth.NewHandler(nil, authenticator, issuer, sessions, auth.RepositoryNames{Repo: repo}, recorder, nil)
	handler.SetSynchronousSessionWrites(true)
	return handlerFixture{handler: handler, issuer: issuer, sessions: sessions, redis: mr}
}

func postLogin(t *testing.T, fixture handlerFixture, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	fixture.handler.Login(res, req)
	return res
}

func TestLoginSuccessWritesSession(t *testing.T) {
	repo := &stubRepo{cred: &auth.Credential{
		Email:        "u@test.local",
		PasswordHash: mustHash(t, "correct horse"),
		FirstName:    "Uli",
		LastName:     "Tester",
		Roles:        []string{"PM"},
		Active:       true,
	}}
	fixture := newHandlerFixture(t, repo, 3)

	res := postLogin(t, fixture, `{"email":"u@test.local","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Status     string   `json:"status"`
		Email      string   `json:"email"`
		FirstName  string   `json:"firstName"`
		ActiveRole string   `json:"activeRole"`
		Roles      []string `json:"roles"`
		Token      string   `json:"token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, "success", payload.Status)
	require.Equal(t, "u@test.local", payload.Email)
	require.Equal(t, "Uli", payload.FirstName)
	require.Equal(t, "ROLE_PM", payload.ActiveRole)
	require.Equal(t, []string{"ROLE_PM"}, payload.Roles)
	require.NotEmpty(t, payload.Token)

	// The session entry was written under session:{principal}:{jti} with the
	// configured TTL and the normalized role list.
	principal, err := fixture.issuer.Verify(payload.Token)
	require.NoError(t, err)
	key := auth.SessionKey("u@test.local", principal.SessionID)
	value, err := fixture.redis.Get(key)
	require.NoError(t, err)
	require.Equal(t, "ROLE_PM", value)
	require.InDelta(t, (24 * time.Hour).Seconds(), fixture.redis.TTL(key).Seconds(), 60)
}

func TestLoginMissingInput(t *testing.T) {
	fixture := newHandlerFixture(t, &stubRepo{}, 3)

	res := postLogin(t, fixture, `{"email":"u@test.local"}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Contains(t, res.Body.String(), "invalid_request")
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := &stubRepo{cred: &auth.Credential{
		Email:        "u@test.local",
		PasswordHash: mustHash(t, "correct horse"),
		Active:       true,
	}}
	fixture := newHandlerFixture(t, repo, 5)

	res := postLogin(t, fixture, `{"email":"u@test.local","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "invalid_credentials")
	// The message must not reveal whether the principal exists.
	require.NotContains(t, res.Body.String(), "not found")
}

func TestLoginBlockedAccountReturns423(t *testing.T) {
	repo := &stubRepo{cred: &auth.Credential{
		Email:        "u@test.local",
		PasswordHash: mustHash(t, "correct horse"),
		Active:       true,
	}}
	fixture := newHandlerFixture(t, repo, 3)

	for i := 0; i < 2; i++ {
		res := postLogin(t, fixture, `{"email":"u@test.local","password":"wrong"}`)
		require.Equal(t, http.StatusUnauthorized, res.Code)
	}

	res := postLogin(t, fixture, `{"email":"u@test.local","password":"wrong"}`)
	require.Equal(t, http.StatusLocked, res.Code)

	// The correct secret is still refused, with a positive retry hint.
	res = postLogin(t, fixture, `{"email":"u@test.local","password":"correct horse"}`)
	require.Equal(t, http.StatusLocked, res.Code)
	var payload struct {
		Status            string `json:"status"`
		RetryAfterSeconds int64  `json:"retryAfterSeconds"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, "blocked", payload.Status)
	require.Greater(t, payload.RetryAfterSeconds, int64(0))
}

func TestSessionEndpointRejectsExpiredToken(t *testing.T) {
	fixture := newHandlerFixture(t, &stubRepo{}, 3)

	expiredIssuer := auth.NewTokenIssuer("test-secret", "smart-onboarding", "smart-onboarding-clients", -time.Minute, nil)
	token, err := expiredIssuer.Issue("u@test.local", []string{"PM"}, "PM", "jti-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	routeHandler(fixture).ServeHTTP(res, req)

	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Contains(t, res.Body.String(), "token expired")
}

func TestLogoutIsIdempotent(t *testing.T) {
	repo := &stubRepo{cred: &auth.Credential{
		Email:        "u@test.local",
		PasswordHash: mustHash(t, "correct horse"),
		Active:       true,
	}}
	fixture := newHandlerFixture(t, repo, 3)

	loginRes := postLogin(t, fixture, `{"email":"u@test.local","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, loginRes.Code)
	var payload struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(loginRes.Body.Bytes(), &payload))

	logout := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer "+payload.Token)
		res := httptest.NewRecorder()
		routeHandler(fixture).ServeHTTP(res, req)
		return res
	}

	require.Equal(t, http.StatusOK, logout().Code)
	// Second logout finds no session entry but still succeeds.
	require.Equal(t, http.StatusOK, logout().Code)

	principal, err := fixture.issuer.Verify(payload.Token)
	require.NoError(t, err)
	require.False(t, fixture.sessions.Validate(context.Background(), principal.ID, principal.SessionID))
}

// routeHandler mounts the handler's routes the way the service router does.
func routeHandler(fixture handlerFixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", fixture.handler.Login)
		fixture.handler.MountRoutes(r)
	})
	return r
}
