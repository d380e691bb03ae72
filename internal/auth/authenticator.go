package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	credentialCacheSize = 512
	outcomeCacheSize    = 1024
)

// Authenticator verifies a presented secret and produces a Principal. The
// local and federated implementations share this contract; the variant is
// chosen once at process start.
type Authenticator interface {
	Authenticate(ctx context.Context, principalID, secret string) (*Principal, error)
}

// LocalAuthenticator checks credentials against the identity store.
type LocalAuthenticator struct {
	repo         Repository
	guard        *AttemptGuard
	switchedRole string
	retry        retryPolicy
	logger       *slog.Logger

	// credentials is a bounded read-through cache over the identity store.
	credentials *lruCache[*Credential]
	// outcomes remembers the boolean result of a (principal, digest-of-secret)
	// comparison so an immediate retry skips the slow hash. The secret itself
	// is never stored, only its sha256 digest as part of the key.
	outcomes *lruCache[bool]
}

// NewLocalAuthenticator constructs the database-backed authenticator.
func NewLocalAuthenticator(repo Repository, guard *AttemptGuard, switchedRole string, logger *slog.Logger) *LocalAuthenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalAuthenticator{
		repo:         repo,
		guard:        guard,
		switchedRole: switchedRole,
		retry:        infraRetry,
		logger:       logger,
		credentials:  newLRUCache[*Credential](credentialCacheSize),
		outcomes:     newLRUCache[bool](outcomeCacheSize),
	}
}

// Authenticate implements the Authenticator contract. All credential
// failures report ErrInvalidCredentials so an external caller cannot tell an
// unknown principal from a bad secret; the distinction exists only in logs.
func (a *LocalAuthenticator) Authenticate(ctx context.Context, principalID, secret string) (*Principal, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" || secret == "" {
		a.logger.Debug("authenticate rejected blank input")
		return nil, ErrInvalidCredentials
	}

	if err := a.guard.CheckBlocked(ctx, principalID); err != nil {
		return nil, err
	}

	cred, err := a.lookupCredential(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrCredentialNotFound) {
			a.logger.Debug("authenticate: unknown principal", slog.String("principal", principalID))
			return nil, a.fail(ctx, principalID, ErrInvalidCredentials)
		}
		return nil, err
	}

	if !cred.Active {
		return nil, a.fail(ctx, principalID, ErrAccountInactive)
	}

	if !validHashFormat(cred.PasswordHash) {
		// A malformed stored hash fails closed instead of feeding bcrypt
		// garbage input.
		a.logger.Error("authenticate: stored hash has unexpected format",
			slog.String("principal", principalID))
		a.credentials.Delete(principalID)
		return nil, a.fail(ctx, principalID, ErrInvalidCredentials)
	}

	if !a.compareSecret(principalID, cred.PasswordHash, secret) {
		return nil, a.fail(ctx, principalID, ErrInvalidCredentials)
	}

	if err := a.guard.LoginSucceeded(ctx, principalID); err != nil {
		a.logger.Warn("authenticate: clearing attempt state failed",
			slog.String("principal", principalID), slog.Any("error", err))
	}

	roles := cred.Roles
	if a.switchedRole != "" {
		roles = append([]string{a.switchedRole}, roles...)
	}
	return a.newPrincipal(principalID, a.switchedRole, roles), nil
}

// lookupCredential reads through the bounded cache, retrying only transient
// identity-store failures.
func (a *LocalAuthenticator) lookupCredential(ctx context.Context, principalID string) (*Credential, error) {
	if cred, ok := a.credentials.Get(principalID); ok {
		return cred, nil
	}
	var cred *Credential
	err := a.retry.do(ctx, func(ctx context.Context) error {
		found, err := a.repo.FindByEmail(ctx, principalID)
		if err != nil {
			return err
		}
		cred = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.credentials.Set(principalID, cred)
	return cred, nil
}

// compareSecret runs the slow bcrypt comparison, consulting the outcome
// cache keyed by the digest of the presented secret.
func (a *LocalAuthenticator) compareSecret(principalID, storedHash, secret string) bool {
	key := outcomeKey(principalID, secret)
	if outcome, ok := a.outcomes.Get(key); ok {
		return outcome
	}
	match := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(secret)) == nil
	a.outcomes.Set(key, match)
	return match
}

// fail funnels the failure through the attempt guard before reporting it. A
// lockout tripped by this failure wins over the original cause.
func (a *LocalAuthenticator) fail(ctx context.Context, principalID string, cause error) error {
	if err := a.guard.LoginFailed(ctx, principalID); err != nil {
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			return blocked
		}
		a.logger.Warn("authenticate: recording failure failed",
			slog.String("principal", principalID), slog.Any("error", err))
	}
	return cause
}

func (a *LocalAuthenticator) newPrincipal(principalID, activeRole string, roles []string) *Principal {
	return &Principal{
		ID:        principalID,
		Roles:     OrderRoles(activeRole, roles),
		SessionID: uuid.NewString(),
	}
}

func outcomeKey(principalID, secret string) string {
	digest := sha256.Sum256([]byte(secret))
	return principalID + ":" + hex.EncodeToString(digest[:])
}

// validHashFormat reports whether the stored hash looks like bcrypt output.
func validHashFormat(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

var _ Authenticator = (*LocalAuthenticator)(nil)
