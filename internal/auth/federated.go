package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FederatedAuthenticator delegates credential checks to an external
// directory service. It satisfies the same contract as LocalAuthenticator;
// the deployment mode decides which variant is wired at startup.
type FederatedAuthenticator struct {
	endpoint     string
	client       *http.Client
	guard        *AttemptGuard
	switchedRole string
	retry        retryPolicy
	logger       *slog.Logger
}

// errDirectoryUnavailable marks directory-side outages (5xx responses) that
// the retry table treats as transient.
var errDirectoryUnavailable = errors.New("directory unavailable")

type federatedLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedLoginResponse struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
	Active    bool     `json:"active"`
}

// NewFederatedAuthenticator constructs the directory-backed authenticator.
// An empty endpoint is a configuration error surfaced at startup, not per
// request.
func NewFederatedAuthenticator(endpoint string, guard *AttemptGuard, switchedRole string, logger *slog.Logger) (*FederatedAuthenticator, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, fmt.Errorf("%w: federated mode selected without directory endpoint", ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FederatedAuthenticator{
		endpoint:     strings.TrimRight(endpoint, "/"),
		client:       &http.Client{Timeout: 10 * time.Second},
		guard:        guard,
		switchedRole: switchedRole,
		retry:        infraRetry,
		logger:       logger,
	}, nil
}

// Authenticate implements the Authenticator contract against the directory.
func (a *FederatedAuthenticator) Authenticate(ctx context.Context, principalID, secret string) (*Principal, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	if err := a.guard.CheckBlocked(ctx, principalID); err != nil {
		return nil, err
	}

	directory, err := a.lookupDirectory(ctx, principalID, secret)
	if err != nil {
		if transientError(err) {
			return nil, err
		}
		return nil, a.fail(ctx, principalID, err)
	}
	if !directory.Active {
		return nil, a.fail(ctx, principalID, ErrAccountInactive)
	}

	if err := a.guard.LoginSucceeded(ctx, principalID); err != nil {
		a.logger.Warn("federated authenticate: clearing attempt state failed",
			slog.String("principal", principalID), slog.Any("error", err))
	}

	roles := directory.Roles
	if a.switchedRole != "" {
		roles = append([]string{a.switchedRole}, roles...)
	}
	return &Principal{
		ID:        principalID,
		Roles:     OrderRoles(a.switchedRole, roles),
		SessionID: uuid.NewString(),
	}, nil
}

// lookupDirectory calls the directory, retrying only transient failures
// (timeouts, directory outages). Credential verdicts come back on the first
// response.
func (a *FederatedAuthenticator) lookupDirectory(ctx context.Context, principalID, secret string) (*federatedLoginResponse, error) {
	var directory *federatedLoginResponse
	err := a.retry.do(ctx, func(ctx context.Context) error {
		found, err := a.verify(ctx, principalID, secret)
		if err != nil {
			return err
		}
		directory = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return directory, nil
}

func (a *FederatedAuthenticator) verify(ctx context.Context, principalID, secret string) (*federatedLoginResponse, error) {
	body, err := json.Marshal(federatedLoginRequest{Email: principalID, Password: secret})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v1/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusUnauthorized, res.StatusCode == http.StatusNotFound:
		return nil, ErrInvalidCredentials
	case res.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", errDirectoryUnavailable, res.StatusCode)
	default:
		return nil, fmt.Errorf("directory returned status %d", res.StatusCode)
	}

	var decoded federatedLoginResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// DisplayName fetches display fields from the directory profile endpoint.
func (a *FederatedAuthenticator) DisplayName(ctx context.Context, principalID string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint+"/v1/profile/"+principalID, nil)
	if err != nil {
		return "", "", err
	}
	res, err := a.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("directory profile returned status %d", res.StatusCode)
	}
	var decoded federatedLoginResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return "", "", err
	}
	return decoded.FirstName, decoded.LastName, nil
}

func (a *FederatedAuthenticator) fail(ctx context.Context, principalID string, cause error) error {
	if err := a.guard.LoginFailed(ctx, principalID); err != nil {
		var blocked *BlockedError
		if errors.As(err, &blocked) {
			return blocked
		}
		a.logger.Warn("federated authenticate: recording failure failed",
			slog.String("principal", principalID), slog.Any("error", err))
	}
	return cause
}

var _ Authenticator = (*FederatedAuthenticator)(nil)
