package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMinter struct {
	mu     sync.Mutex
	calls  int32
	expiry time.Time
	err    error
	delay  time.Duration
	perms  Permissions
}

func (f *fakeMinter) MintInstallationToken(ctx context.Context, perms Permissions) (string, time.Time, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err := ctx.Err(); err != nil {
		return "", time.Time{}, err
	}
	f.mu.Lock()
	f.perms = perms
	f.mu.Unlock()
	if f.err != nil {
		return "", time.Time{}, f.err
	}
	return "tok-" + string(rune('0'+n)), f.expiry, nil
}

func TestAuthorizationHeaderCachesToken(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	minter := &fakeMinter{expiry: now.Add(time.Hour)}
	m := NewCredentialManager(minter, IssuesWrite, nil)
	m.now = func() time.Time { return now }

	h1, err := m.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	h2, err := m.AuthorizationHeader(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "token tok-1", h1)
	assert.Equal(t, h1, h2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&minter.calls))
	assert.Equal(t, IssuesWrite, minter.perms)
}

func TestAuthorizationHeaderRefreshesNearExpiry(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	minter := &fakeMinter{expiry: now.Add(10 * time.Minute)}
	m := NewCredentialManager(minter, IssuesWrite, nil)
	m.now = func() time.Time { return now }

	_, err := m.AuthorizationHeader(context.Background())
	require.NoError(t, err)

	// Still more than five minutes left
	now = now.Add(4 * time.Minute)
	h, err := m.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token tok-1", h)

	// Inside the five minute window
	now = now.Add(2 * time.Minute)
	minter.expiry = now.Add(time.Hour)
	h, err = m.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token tok-2", h)
}

func TestAuthorizationHeaderSingleRefresh(t *testing.T) {
	minter := &fakeMinter{expiry: time.Now().Add(time.Hour), delay: 50 * time.Millisecond}
	m := NewCredentialManager(minter, IssuesWrite, nil)

	const callers = 16
	headers := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := m.AuthorizationHeader(context.Background())
			assert.NoError(t, err)
			headers[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&minter.calls))
	for _, h := range headers {
		assert.Equal(t, "token tok-1", h)
	}
}

func TestAuthorizationHeaderFailure(t *testing.T) {
	minter := &fakeMinter{err: errors.New("401 Bad credentials")}
	m := NewCredentialManager(minter, IssuesWrite, nil)

	_, err := m.AuthorizationHeader(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)

	// Failures are not cached; the next call tries again
	_, err = m.AuthorizationHeader(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&minter.calls))
}

type mintError struct{ status int }

func (e *mintError) Error() string { return "mint failed" }

func TestAuthorizationHeaderKeepsCause(t *testing.T) {
	cause := &mintError{status: 401}
	m := NewCredentialManager(&fakeMinter{err: cause}, IssuesWrite, nil)

	_, err := m.AuthorizationHeader(context.Background())
	require.ErrorIs(t, err, ErrAuthentication)

	var target *mintError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, 401, target.status)
}

func TestAuthorizationHeaderIgnoresCallerCancellation(t *testing.T) {
	minter := &fakeMinter{expiry: time.Now().Add(time.Hour)}
	m := NewCredentialManager(minter, IssuesWrite, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := m.AuthorizationHeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token tok-1", h)

	// Other callers reuse the token minted for the canceled one
	h, err = m.AuthorizationHeader(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token tok-1", h)
	assert.Equal(t, int32(1), atomic.LoadInt32(&minter.calls))
}

func TestTransportSetsHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	m := NewCredentialManager(&fakeMinter{expiry: time.Now().Add(time.Hour)}, IssuesWrite, nil)
	client := &http.Client{Transport: &Transport{Credentials: m}}

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "token tok-1", got)
	assert.Empty(t, req.Header.Get("Authorization"), "caller request must not be modified")
}

func generateKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func TestAppSignerSign(t *testing.T) {
	key, pemKey := generateKeyPEM(t)
	signer, err := NewAppSigner("12345", pemKey)
	require.NoError(t, err)

	now := time.Now().Truncate(time.Second)
	signer.now = func() time.Time { return now }

	signed, err := signer.Sign()
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodRS256 {
			return nil, errors.New("unexpected signing method")
		}
		return &key.PublicKey, nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, "12345", claims.Issuer)
	assert.Equal(t, now.Add(-60*time.Second).Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(9*time.Minute).Unix(), claims.ExpiresAt.Unix())
}

func TestNewAppSignerErrors(t *testing.T) {
	_, pemKey := generateKeyPEM(t)

	_, err := NewAppSigner("", pemKey)
	assert.Error(t, err)

	_, err = NewAppSigner("1", []byte("not a key"))
	assert.Error(t, err)

	_, err = NewAppSignerFromFile("1", "/nonexistent/key.pem")
	assert.Error(t, err)
}
