package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionStore keeps the role context of live sessions in Redis. Entries for
// distinct session ids are independent even for the same principal, so one
// principal may hold several concurrent sessions.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionStore constructs a SessionStore with a fixed TTL. Entries are not
// renewed on read.
func NewSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{client: client, ttl: ttl, logger: logger}
}

// SessionKey composes the storage key for a (principal, session id) pair.
func SessionKey(principalID, sessionID string) string {
	return sessionKeyPrefix + principalID + ":" + sessionID
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Create writes the session entry with the active role first. This call runs
// after the login response has been prepared, so failures are logged and
// reported as false, never surfaced to the request that triggered login.
func (s *SessionStore) Create(ctx context.Context, principalID, sessionID, activeRole string, allRoles []string) bool {
	roles := OrderRoles(activeRole, allRoles)
	if len(roles) == 0 {
		s.logger.Warn("session store: refusing to create roleless session",
			slog.String("principal", principalID))
		return false
	}
	value := strings.Join(roles, ",")
	if err := s.client.Set(ctx, SessionKey(principalID, sessionID), value, s.ttl).Err(); err != nil {
		s.logger.Error("session store: create failed",
			slog.String("principal", principalID), slog.Any("error", err))
		return false
	}
	return true
}

// Get returns the ordered role list for the session. Storage failure is
// indistinguishable from "no session": both yield an empty result.
func (s *SessionStore) Get(ctx context.Context, principalID, sessionID string) []string {
	value, err := s.client.Get(ctx, SessionKey(principalID, sessionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("session store: get failed",
				slog.String("principal", principalID), slog.Any("error", err))
		}
		return nil
	}
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		if role := NormalizeRole(part); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

// Validate reports whether the session exists and decodes to a non-empty
// role list. Storage failure fails closed.
func (s *SessionStore) Validate(ctx context.Context, principalID, sessionID string) bool {
	return len(s.Get(ctx, principalID, sessionID)) > 0
}

// Invalidate removes the session entry, reporting whether one was deleted.
func (s *SessionStore) Invalidate(ctx context.Context, principalID, sessionID string) bool {
	deleted, err := s.client.Del(ctx, SessionKey(principalID, sessionID)).Result()
	if err != nil {
		s.logger.Warn("session store: invalidate failed",
			slog.String("principal", principalID), slog.Any("error", err))
		return false
	}
	return deleted > 0
}
