package auth

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	attemptKeyPrefix = "login:attempts:"
	blockKeyPrefix   = "login:blocked:"
)

// failScript atomically counts a failure and trips the block once the
// threshold is reached. A single script keeps concurrent failures for one
// principal linearizable; a read-then-write pair could lose updates and let
// an attacker slide past the threshold.
//
// The counter carries a sliding TTL equal to the block duration: failures
// only accumulate toward a lockout while they land within one block window
// of each other. A count that goes quiet for the full window expires on its
// own instead of lingering indefinitely in Redis.
//
// KEYS[1] attempt counter, KEYS[2] blocked-until marker.
// ARGV[1] max attempts, ARGV[2] block seconds, ARGV[3] blocked-until unix.
// Returns the new failure count.
var failScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
if count >= tonumber(ARGV[1]) then
  redis.call("SET", KEYS[2], ARGV[3], "EX", ARGV[2])
end
return count
`)

// AttemptGuard tracks login failures per principal and enforces temporary
// lockouts. State lives in Redis so every replica observes the same counters.
type AttemptGuard struct {
	client        *redis.Client
	maxAttempts   int
	blockDuration time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewAttemptGuard constructs an AttemptGuard.
func NewAttemptGuard(client *redis.Client, maxAttempts int, blockDuration time.Duration, logger *slog.Logger) *AttemptGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttemptGuard{
		client:        client,
		maxAttempts:   maxAttempts,
		blockDuration: blockDuration,
		logger:        logger,
		now:           time.Now,
	}
}

// CheckBlocked returns a BlockedError while a lockout is active. A lockout
// whose deadline has passed is cleared together with the failure counter, so
// the principal starts over with a zero count.
func (g *AttemptGuard) CheckBlocked(ctx context.Context, principalID string) error {
	raw, err := g.client.Get(ctx, blockKeyPrefix+principalID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	until, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		g.logger.Warn("attempt guard: malformed block marker", slog.String("principal", principalID))
		return g.clear(ctx, principalID)
	}
	remaining := time.Unix(until, 0).Sub(g.now())
	if remaining > 0 {
		return &BlockedError{RetryAfter: remaining}
	}
	return g.clear(ctx, principalID)
}

// LoginFailed counts a failure and reports whether this attempt tripped the
// threshold. Callers receive a BlockedError once the principal is locked out.
func (g *AttemptGuard) LoginFailed(ctx context.Context, principalID string) error {
	until := g.now().Add(g.blockDuration)
	count, err := failScript.Run(ctx, g.client,
		[]string{attemptKeyPrefix + principalID, blockKeyPrefix + principalID},
		g.maxAttempts,
		int(g.blockDuration.Seconds()),
		until.Unix(),
	).Int()
	if err != nil {
		return err
	}
	if count >= g.maxAttempts {
		return &BlockedError{RetryAfter: g.blockDuration, Lockout: count == g.maxAttempts}
	}
	return nil
}

// LoginSucceeded clears the failure counter and any block marker.
func (g *AttemptGuard) LoginSucceeded(ctx context.Context, principalID string) error {
	return g.clear(ctx, principalID)
}

func (g *AttemptGuard) clear(ctx context.Context, principalID string) error {
	return g.client.Del(ctx, attemptKeyPrefix+principalID, blockKeyPrefix+principalID).Err()
}
