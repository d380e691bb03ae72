package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the wire shape of an issued session token.
type TokenClaims struct {
	jwt.RegisteredClaims
	Roles      []string `json:"roles"`
	ActiveRole string   `json:"active_role"`
}

// TokenIssuer creates and verifies signed session tokens. It is stateless
// with respect to the session store; token validity and session validity are
// independent checks callers may combine.
type TokenIssuer struct {
	secret   string
	issuer   string
	audience string
	expiry   time.Duration
	logger   *slog.Logger

	keyOnce sync.Once
	key     []byte
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret, issuer, audience string, expiry time.Duration, logger *slog.Logger) *TokenIssuer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenIssuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		expiry:   expiry,
		logger:   logger,
	}
}

// signingKey derives the HMAC key from the configured secret once and reuses
// it for the process lifetime.
func (t *TokenIssuer) signingKey() []byte {
	t.keyOnce.Do(func() {
		sum := sha256.Sum256([]byte(t.secret))
		t.key = sum[:]
	})
	return t.key
}

// Issue mints a signed token for the principal. Roles are stored in their
// canonical prefixed form with the active role claim alongside.
func (t *TokenIssuer) Issue(principalID string, roles []string, activeRole, sessionID string) (string, error) {
	now := time.Now()
	ordered := OrderRoles(activeRole, roles)
	if len(ordered) == 0 {
		return "", fmt.Errorf("token issuer: no roles for %q", principalID)
	}
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   principalID,
			Audience:  jwt.ClaimStrings{t.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
			ID:        sessionID,
		},
		Roles:      ordered,
		ActiveRole: ordered[0],
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(t.signingKey())
}

// Verify checks signature, issuer, audience and expiry. Expiry is the only
// failure reported as ErrTokenExpired; everything else is ErrTokenInvalid.
func (t *TokenIssuer) Verify(tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.signingKey(), nil
	}, jwt.WithIssuer(t.issuer), jwt.WithAudience(t.audience))
	if err != nil {
		// jwt/v5 joins every failing claim check into one error. Expiry is
		// reported as ErrTokenExpired only when it is the sole failure; a
		// token that is also malformed or carries the wrong signature,
		// issuer or audience stays ErrTokenInvalid.
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed),
			errors.Is(err, jwt.ErrTokenSignatureInvalid),
			errors.Is(err, jwt.ErrTokenInvalidIssuer),
			errors.Is(err, jwt.ErrTokenInvalidAudience):
			t.logger.Debug("token verification failed", slog.Any("error", err))
			return nil, ErrTokenInvalid
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		default:
			t.logger.Debug("token verification failed", slog.Any("error", err))
			return nil, ErrTokenInvalid
		}
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	principal := &Principal{
		ID:        claims.Subject,
		Roles:     OrderRoles(claims.ActiveRole, claims.Roles),
		SessionID: claims.ID,
	}
	if claims.IssuedAt != nil {
		principal.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		principal.ExpiresAt = claims.ExpiresAt.Time
	}
	return principal, nil
}
