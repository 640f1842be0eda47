package tracker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev/deduper/internal/auth"
)

func testSigner(t *testing.T) *auth.AppSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	signer, err := auth.NewAppSigner("4242", pemKey)
	require.NoError(t, err)
	return signer
}

func TestMintInstallationToken(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	lookups := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/minecraft-dev/mcdev-error-report/installation", func(w http.ResponseWriter, r *http.Request) {
		lookups++
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "))
		fmt.Fprint(w, `{"id": 77}`)
	})
	mux.HandleFunc("/app/installations/77/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var opts struct {
			Permissions map[string]string `json:"permissions"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		assert.Equal(t, map[string]string{"issues": "write"}, opts.Permissions)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token": "ghs_abc", "expires_at": %q}`, expires.Format(time.RFC3339))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewAppClient(testSigner(t), AppConfig{
		Owner:   "minecraft-dev",
		Repo:    "mcdev-error-report",
		BaseURL: srv.URL,
	}, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		token, expiry, err := client.MintInstallationToken(context.Background(), auth.IssuesWrite)
		require.NoError(t, err)
		assert.Equal(t, "ghs_abc", token)
		assert.True(t, expiry.Equal(expires))
	}
	assert.Equal(t, 1, lookups, "installation id should be cached")
}

func TestMintInstallationTokenUnsupportedPermission(t *testing.T) {
	client, err := NewAppClient(testSigner(t), AppConfig{InstallationID: 1, BaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)

	_, _, err = client.MintInstallationToken(context.Background(), auth.Permissions{"admin": "write"})
	assert.Error(t, err)
}

func TestCredentialManagerWithAppClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations/5/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewAppClient(testSigner(t), AppConfig{InstallationID: 5, BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = auth.NewCredentialManager(client, auth.IssuesWrite, nil).AuthorizationHeader(context.Background())
	assert.ErrorIs(t, err, auth.ErrAuthentication)
}
