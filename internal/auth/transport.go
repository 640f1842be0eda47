package auth

import (
	"net/http"
)

// Transport stamps the installation token header on every outbound request
type Transport struct {
	Credentials *CredentialManager
	Base        http.RoundTripper
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	header, err := t.Credentials.AuthorizationHeader(req.Context())
	if err != nil {
		return nil, err
	}

	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", header)
	return t.base().RoundTrip(clone)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
