package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
)

const signaturePrefix = "sha256="

// SecretSource supplies the webhook shared secret
type SecretSource interface {
	WebhookSecret(ctx context.Context) (string, error)
}

// StaticSecret is a SecretSource backed by a fixed value
type StaticSecret string

// WebhookSecret implements SecretSource
func (s StaticSecret) WebhookSecret(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("webhook secret is not configured")
	}
	return string(s), nil
}

// WebhookAuthenticator verifies X-Hub-Signature-256 headers on webhook
// deliveries. The secret is fetched on first use and cached.
type WebhookAuthenticator struct {
	source SecretSource

	mu     sync.Mutex
	secret []byte
}

// NewWebhookAuthenticator creates an authenticator reading its secret from source
func NewWebhookAuthenticator(source SecretSource) *WebhookAuthenticator {
	return &WebhookAuthenticator{source: source}
}

// Verify checks signatureHeader against an HMAC-SHA256 of body and returns
// the body as text. The "sha256=" prefix is optional; other digests are rejected.
func (a *WebhookAuthenticator) Verify(ctx context.Context, body []byte, signatureHeader string) (string, error) {
	if signatureHeader == "" {
		return "", fmt.Errorf("%w: missing signature header", ErrAuthentication)
	}
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		signatureHeader = signaturePrefix + signatureHeader
	}

	secret, err := a.loadSecret(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	if err := github.ValidateSignature(signatureHeader, body, secret); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return string(body), nil
}

// SignatureHeader formats the X-Hub-Signature-256 value for body
func SignatureHeader(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func (a *WebhookAuthenticator) loadSecret(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.secret != nil {
		return a.secret, nil
	}

	secret, err := a.source.WebhookSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook secret: %w", err)
	}
	a.secret = []byte(secret)
	return a.secret, nil
}
