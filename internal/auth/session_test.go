package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/peerislands/smart-onboarding/internal/auth"
	_ "github.com/peerislands/smart-onboarding/internal/testing/guard"
)

func newTestSessionStore(t *testing.T, ttl time.Duration) (*auth.SessionStore, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return auth.NewSessionStore(client, ttl, nil), mr, client
}

func TestSessionCreateThenGetKeepsOrder(t *testing.T) {
	store, mr, _ := newTestSessionStore(t, 24*time.Hour)
	ctx := context.Background()

	require.True(t, store.Create(ctx, "u@test.local", "jti-1", "PM", []string{"BA", "PM"}))

	roles := store.Get(ctx, "u@test.local", "jti-1")
	require.Equal(t, []string{"ROLE_PM", "ROLE_BA"}, roles)

	ttl := mr.TTL(auth.SessionKey("u@test.local", "jti-1"))
	require.InDelta(t, (24 * time.Hour).Seconds(), ttl.Seconds(), 60)
}

func TestSessionInstancesAreIndependent(t *testing.T) {
	store, _, _ := newTestSessionStore(t, time.Hour)
	ctx := context.Background()

	require.True(t, store.Create(ctx, "u@test.local", "jti-1", "PM", nil))
	require.True(t, store.Create(ctx, "u@test.local", "jti-2", "BA", nil))

	require.True(t, store.Validate(ctx, "u@test.local", "jti-1"))
	require.True(t, store.Validate(ctx, "u@test.local", "jti-2"))

	require.True(t, store.Invalidate(ctx, "u@test.local", "jti-1"))
	require.False(t, store.Validate(ctx, "u@test.local", "jti-1"))
	require.True(t, store.Validate(ctx, "u@test.local", "jti-2"))
}

func TestSessionInvalidateIsIdempotent(t *testing.T) {
	store, _, _ := newTestSessionStore(t, time.Hour)
	ctx := context.Background()

	require.True(t, store.Create(ctx, "u@test.local", "jti-1", "PM", nil))
	require.True(t, store.Invalidate(ctx, "u@test.local", "jti-1"))
	require.False(t, store.Invalidate(ctx, "u@test.local", "jti-1"))
}

func TestSessionStorageFailureFailsClosed(t *testing.T) {
	store, mr, _ := newTestSessionStore(t, time.Hour)
	ctx := context.Background()

	require.True(t, store.Create(ctx, "u@test.local", "jti-1", "PM", nil))

	mr.Close()

	// Validate fails closed, Get fails soft, Create and Invalidate report
	// failure without raising.
	require.False(t, store.Validate(ctx, "u@test.local", "jti-1"))
	require.Nil(t, store.Get(ctx, "u@test.local", "jti-1"))
	require.False(t, store.Create(ctx, "u@test.local", "jti-2", "PM", nil))
	require.False(t, store.Invalidate(ctx, "u@test.local", "jti-1"))
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	store, mr, _ := newTestSessionStore(t, time.Minute)
	ctx := context.Background()

	require.True(t, store.Create(ctx, "u@test.local", "jti-1", "PM", nil))
	mr.FastForward(2 * time.Minute)
	require.False(t, store.Validate(ctx, "u@test.local", "jti-1"))
}
