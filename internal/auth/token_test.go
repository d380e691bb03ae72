package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/peerislands/smart-onboarding/internal/auth"
	_ "github.com/peerislands/smart-onboarding/internal/testing/guard"
)

func newTestIssuer(expiry time.Duration) *auth.TokenIssuer {
	return auth.NewTokenIssuer("test-secret", "smart-onboarding", "smart-onboarding-clients", expiry, nil)
}

func TestTokenRoundTripNormalizesRoles(t *testing.T) {
	issuer := newTestIssuer(time.Hour)

	token, err := issuer.Issue("u@test.local", []string{"pm", "role_ba", "ROLE_BA"}, "PM", "jti-1")
	require.NoError(t, err)

	principal, err := issuer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u@test.local", principal.ID)
	require.Equal(t, "jti-1", principal.SessionID)
	require.Equal(t, []string{"ROLE_PM", "ROLE_BA"}, principal.Roles)
	require.Equal(t, "ROLE_PM", principal.ActiveRole())
	require.WithinDuration(t, time.Now().Add(time.Hour), principal.ExpiresAt, time.Minute)
}

func TestTokenExpiryIsDistinctFromInvalid(t *testing.T) {
	issuer := newTestIssuer(-time.Minute)

	token, err := issuer.Issue("u@test.local", []string{"PM"}, "PM", "jti-1")
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestTokenTamperedSignatureIsInvalid(t *testing.T) {
	issuer := newTestIssuer(time.Hour)

	token, err := issuer.Issue("u@test.local", []string{"PM"}, "PM", "jti-1")
	require.NoError(t, err)

	// Flip a byte inside the signature segment.
	sigStart := strings.LastIndex(token, ".") + 1
	tampered := []byte(token)
	pos := sigStart + 5
	if tampered[pos] == 'A' {
		tampered[pos] = 'B'
	} else {
		tampered[pos] = 'A'
	}

	_, err = issuer.Verify(string(tampered))
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenWrongIssuerOrAudienceIsInvalid(t *testing.T) {
	issuer := newTestIssuer(time.Hour)
	token, err := issuer.Issue("u@test.local", []string{"PM"}, "PM", "jti-1")
	require.NoError(t, err)

	other := auth.NewTokenIssuer("test-secret", "someone-else", "smart-onboarding-clients", time.Hour, nil)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	otherAud := auth.NewTokenIssuer("test-secret", "smart-onboarding", "other-clients", time.Hour, nil)
	_, err = otherAud.Verify(token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenExpiredWithOtherClaimFailureIsInvalid(t *testing.T) {
	issuer := newTestIssuer(time.Hour)

	// Expired AND addressed to the wrong audience: the expiry branch must not
	// mask the audience failure.
	wrongAud := auth.NewTokenIssuer("test-secret", "smart-onboarding", "other-clients", -time.Minute, nil)
	token, err := wrongAud.Issue("u@test.local", []string{"PM"}, "PM", "jti-1")
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)

	// Same for a wrong issuer.
	wrongIss := auth.NewTokenIssuer("test-secret", "someone-else", "smart-onboarding-clients", -time.Minute, nil)
	token, err = wrongIss.Issue("u@test.local", []string{"PM"}, "PM", "jti-1")
	require.NoError(t, err)
	_, err = issuer.Verify(token)
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}

func TestTokenGarbageIsInvalid(t *testing.T) {
	issuer := newTestIssuer(time.Hour)
	_, err := issuer.Verify("not-a-token")
	require.ErrorIs(t, err, auth.ErrTokenInvalid)
}
