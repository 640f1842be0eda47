package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/mcdev/deduper/internal/auth"
)

// AppConfig identifies the application installation
type AppConfig struct {
	Owner string
	Repo  string

	// InstallationID skips the repository installation lookup when set
	InstallationID int64

	BaseURL string
}

// AppClient authenticates as the application itself and mints installation
// tokens. It implements auth.TokenMinter.
type AppClient struct {
	gh     *github.Client
	cfg    AppConfig
	logger *slog.Logger

	mu             sync.Mutex
	installationID int64
}

var _ auth.TokenMinter = (*AppClient)(nil)

// NewAppClient creates a client that signs every request with signer
func NewAppClient(signer *auth.AppSigner, cfg AppConfig, logger *slog.Logger) (*AppClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gh := github.NewClient(&http.Client{
		Transport: &bearerTransport{signer: signer, base: http.DefaultTransport},
		Timeout:   30 * time.Second,
	})
	if cfg.BaseURL != "" {
		base, err := parseBaseURL(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		gh.BaseURL = base
	}

	return &AppClient{
		gh:             gh,
		cfg:            cfg,
		logger:         logger,
		installationID: cfg.InstallationID,
	}, nil
}

// MintInstallationToken creates an installation token restricted to perms
func (c *AppClient) MintInstallationToken(ctx context.Context, perms auth.Permissions) (string, time.Time, error) {
	id, err := c.installation(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	scoped, err := installationPermissions(perms)
	if err != nil {
		return "", time.Time{}, err
	}

	token, _, err := c.gh.Apps.CreateInstallationToken(ctx, id, &github.InstallationTokenOptions{
		Permissions: scoped,
	})
	if err != nil {
		return "", time.Time{}, &RemoteError{Op: "create installation token", Err: err}
	}

	c.logger.Info("minted installation token", "installation_id", id, "expires_at", token.GetExpiresAt().Time)
	return token.GetToken(), token.GetExpiresAt().Time, nil
}

func (c *AppClient) installation(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.installationID != 0 {
		return c.installationID, nil
	}

	inst, _, err := c.gh.Apps.FindRepositoryInstallation(ctx, c.cfg.Owner, c.cfg.Repo)
	if err != nil {
		return 0, &RemoteError{Op: "find installation for " + c.cfg.Owner + "/" + c.cfg.Repo, Err: err}
	}
	c.installationID = inst.GetID()
	return c.installationID, nil
}

func installationPermissions(perms auth.Permissions) (*github.InstallationPermissions, error) {
	scoped := &github.InstallationPermissions{}
	for name, level := range perms {
		switch name {
		case "issues":
			scoped.Issues = github.String(level)
		case "metadata":
			scoped.Metadata = github.String(level)
		default:
			return nil, fmt.Errorf("unsupported installation permission %q", name)
		}
	}
	return scoped, nil
}

// bearerTransport signs each request with a fresh app assertion
type bearerTransport struct {
	signer *auth.AppSigner
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	assertion, err := t.signer.Sign()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+assertion)
	return t.base.RoundTrip(clone)
}
