package client

import (
	"net/http"

	"github.com/google/uuid"
)

// CredentialSource supplies the bearer token for outbound requests.
// Implemented by the session.
type CredentialSource interface {
	// Token returns the current credential, or "" when there is none.
	Token() string
	// Expire reports that the backend rejected token. Implementations must
	// ignore tokens that are no longer current.
	Expire(token string)
}

// AuthTransport is an http.RoundTripper that attaches the session credential
// to every request and tears the session down when the backend answers 401.
// With a nil Source it only stamps request ids (public endpoints).
type AuthTransport struct {
	Base   http.RoundTripper
	Source CredentialSource
}

// NewAuthTransport wraps base (http.DefaultTransport when nil).
func NewAuthTransport(base http.RoundTripper, src CredentialSource) *AuthTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthTransport{Base: base, Source: src}
}

// RoundTrip reads the token at call time, so a credential stored after the
// client was built is picked up by the next request.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header.Get("X-Request-ID") == "" {
		out.Header.Set("X-Request-ID", uuid.NewString())
	}

	var token string
	if t.Source != nil {
		token = t.Source.Token()
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.Base.RoundTrip(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		t.Source.Expire(token)
	}
	return resp, nil
}
