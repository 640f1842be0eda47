package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSecret struct {
	secret string
	calls  int
	err    error
}

func (c *countingSecret) WebhookSecret(context.Context) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.secret, nil
}

func TestVerify(t *testing.T) {
	// Known vector from the GitHub webhook documentation
	secret := "It's a Secret to Everybody"
	body := []byte("Hello, World!")
	valid := "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{name: "valid", header: valid},
		{name: "valid without prefix", header: valid[len("sha256="):]},
		{name: "missing header", header: "", wantErr: true},
		{name: "one byte altered", header: valid[:len(valid)-1] + "8", wantErr: true},
		{name: "not hex", header: "sha256=zz", wantErr: true},
		{name: "truncated", header: valid[:20], wantErr: true},
		{name: "sha1 digest", header: "sha1=" + valid[len("sha256="):], wantErr: true},
	}

	auth := NewWebhookAuthenticator(StaticSecret(secret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := auth.Verify(context.Background(), body, tt.header)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrAuthentication)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Hello, World!", text)
		})
	}
}

func TestSignatureHeaderRoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	body := []byte(`{"action":"opened"}`)

	auth := NewWebhookAuthenticator(StaticSecret("s3cret"))
	_, err := auth.Verify(context.Background(), body, SignatureHeader(secret, body))
	assert.NoError(t, err)
}

func TestSecretFetchedOnce(t *testing.T) {
	source := &countingSecret{secret: "abc"}
	auth := NewWebhookAuthenticator(source)
	body := []byte("x")

	for i := 0; i < 3; i++ {
		_, err := auth.Verify(context.Background(), body, SignatureHeader([]byte("abc"), body))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, source.calls)
}

func TestSecretFailureIsAuthenticationError(t *testing.T) {
	source := &countingSecret{err: errors.New("vault unavailable")}
	auth := NewWebhookAuthenticator(source)

	_, err := auth.Verify(context.Background(), []byte("x"), "sha256=00")
	assert.ErrorIs(t, err, ErrAuthentication)

	// A failed fetch is retried on the next delivery
	source.err = nil
	source.secret = "abc"
	_, err = auth.Verify(context.Background(), []byte("x"), SignatureHeader([]byte("abc"), []byte("x")))
	assert.NoError(t, err)
	assert.Equal(t, 2, source.calls)

	_, err = NewWebhookAuthenticator(StaticSecret("")).Verify(context.Background(), []byte("x"), "sha256=00")
	assert.ErrorIs(t, err, ErrAuthentication)
}
