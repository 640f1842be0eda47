package auth

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// assertionBackdate covers clock drift between us and the tracker
	assertionBackdate = 60 * time.Second
	assertionLifetime = 10 * time.Minute
)

// AppSigner mints short-lived RS256 assertions identifying the application
type AppSigner struct {
	appID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewAppSigner creates a signer from a PEM-encoded RSA private key
func NewAppSigner(appID string, pemKey []byte) (*AppSigner, error) {
	if appID == "" {
		return nil, fmt.Errorf("app id is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse app private key: %w", err)
	}
	return &AppSigner{appID: appID, key: key, now: time.Now}, nil
}

// NewAppSignerFromFile reads the private key from path
func NewAppSignerFromFile(appID, path string) (*AppSigner, error) {
	pemKey, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app private key: %w", err)
	}
	return NewAppSigner(appID, pemKey)
}

// Sign returns a signed assertion valid for ten minutes
func (s *AppSigner) Sign() (string, error) {
	iat := s.now().Add(-assertionBackdate)
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(iat.Add(assertionLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign app assertion: %w", err)
	}
	return signed, nil
}
