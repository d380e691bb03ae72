package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/peerislands/smart-onboarding/internal/platform/httpx"
)

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// Middleware wires token verification for protected routes.
type Middleware struct {
	Issuer   *TokenIssuer
	Sessions *SessionStore
	// Strict additionally requires a live session-store entry. Session
	// validity and token validity are independent checks; strict routes
	// combine them and fail closed on storage trouble.
	Strict bool
}

// RequireToken verifies the bearer token and stores the resulting principal
// in the request context.
func (m Middleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		principal, err := m.Issuer.Verify(token)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token expired")
				return
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "token invalid")
			return
		}
		if m.Strict && !m.Sessions.Validate(r.Context(), principal.ID, principal.SessionID) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session no longer valid")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}
