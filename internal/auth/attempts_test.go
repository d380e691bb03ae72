package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	_ "github.com/peerislands/smart-onboarding/internal/testing/guard"
)

func newTestGuard(t *testing.T, maxAttempts int, blockDuration time.Duration) (*AttemptGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAttemptGuard(client, maxAttempts, blockDuration, nil), mr
}

func TestGuardBlocksAfterThreshold(t *testing.T) {
	guard, _ := newTestGuard(t, 3, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))
	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))

	err := guard.LoginFailed(ctx, "u@test.local")
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	require.True(t, blocked.Lockout, "third failure should trip the lockout")
	require.True(t, errors.Is(err, ErrAccountBlocked))

	// A subsequent check reports blocked with a positive remaining duration.
	err = guard.CheckBlocked(ctx, "u@test.local")
	require.ErrorAs(t, err, &blocked)
	require.Greater(t, blocked.RetryAfter, time.Duration(0))
	require.False(t, blocked.Lockout)
}

func TestGuardFailureBeyondThresholdIsNotNewLockout(t *testing.T) {
	guard, _ := newTestGuard(t, 2, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))

	var blocked *BlockedError
	require.ErrorAs(t, guard.LoginFailed(ctx, "u@test.local"), &blocked)
	require.True(t, blocked.Lockout)

	require.ErrorAs(t, guard.LoginFailed(ctx, "u@test.local"), &blocked)
	require.False(t, blocked.Lockout, "repeat failures must not re-raise the lockout event")
}

func TestGuardSuccessResetsCounter(t *testing.T) {
	guard, _ := newTestGuard(t, 3, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))
	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))
	require.NoError(t, guard.LoginSucceeded(ctx, "u@test.local"))

	// After a reset the full threshold applies again.
	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))
	require.NoError(t, guard.CheckBlocked(ctx, "u@test.local"))
}

func TestGuardElapsedBlockClearsState(t *testing.T) {
	guard, _ := newTestGuard(t, 1, time.Hour)
	ctx := context.Background()

	require.Error(t, guard.LoginFailed(ctx, "u@test.local"))
	require.Error(t, guard.CheckBlocked(ctx, "u@test.local"))

	// Move the guard clock past the block deadline.
	guard.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, guard.CheckBlocked(ctx, "u@test.local"))

	// Counter was cleared together with the block marker.
	guard.now = time.Now
	require.NoError(t, guard.CheckBlocked(ctx, "u@test.local"))
}

func TestGuardQuietFailuresAgeOut(t *testing.T) {
	guard, mr := newTestGuard(t, 2, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))

	// After a full block window with no further failures the counter has
	// expired, so the next failure starts a fresh count.
	mr.FastForward(16 * time.Minute)
	require.NoError(t, guard.LoginFailed(ctx, "u@test.local"))
}

func TestGuardPrincipalsAreIndependent(t *testing.T) {
	guard, _ := newTestGuard(t, 1, time.Hour)
	ctx := context.Background()

	require.Error(t, guard.LoginFailed(ctx, "a@test.local"))
	require.NoError(t, guard.CheckBlocked(ctx, "b@test.local"))
}
