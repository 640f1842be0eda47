package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// refreshSkew is how long before expiry a cached token is replaced
	refreshSkew = 5 * time.Minute

	// mintTimeout bounds one token exchange. The exchange is shared by every
	// waiting caller, so it does not inherit the first caller's cancellation.
	mintTimeout = 30 * time.Second
)

// Permissions maps a permission name to its access level, e.g. "issues": "write"
type Permissions map[string]string

// IssuesWrite is the minimum permission set the service needs
var IssuesWrite = Permissions{"issues": "write"}

// TokenMinter exchanges the application identity for a scoped installation token
type TokenMinter interface {
	MintInstallationToken(ctx context.Context, perms Permissions) (token string, expiry time.Time, err error)
}

// CredentialManager caches one installation token and refreshes it shortly
// before it expires. Safe for concurrent use.
type CredentialManager struct {
	minter TokenMinter
	perms  Permissions
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewCredentialManager creates a manager that mints tokens with perms
func NewCredentialManager(minter TokenMinter, perms Permissions, logger *slog.Logger) *CredentialManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialManager{
		minter: minter,
		perms:  perms,
		logger: logger,
		now:    time.Now,
	}
}

// AuthorizationHeader returns "token <installation token>", refreshing the
// cached token when it is missing or within five minutes of expiry.
// Concurrent callers share a single in-flight refresh.
func (m *CredentialManager) AuthorizationHeader(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return "token " + token, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		// Another caller may have refreshed while we waited
		if token, ok := m.cached(); ok {
			return token, nil
		}
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return "token " + v.(string), nil
}

func (m *CredentialManager) cached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" || m.now().After(m.expiry.Add(-refreshSkew)) {
		return "", false
	}
	return m.token, true
}

func (m *CredentialManager) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mintTimeout)
	defer cancel()

	token, expiry, err := m.minter.MintInstallationToken(ctx, m.perms)
	if err != nil {
		return "", fmt.Errorf("%w: failed to mint installation token: %w", ErrAuthentication, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: tracker returned an empty installation token", ErrAuthentication)
	}

	m.mu.Lock()
	m.token = token
	m.expiry = expiry
	m.mu.Unlock()

	m.logger.Debug("refreshed installation token", "expires_at", expiry)
	return token, nil
}
