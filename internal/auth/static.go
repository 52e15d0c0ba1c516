package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrEmptyToken is returned when a provider has no token to inject.
var ErrEmptyToken = errors.New("auth token is empty")

// StaticTokenProvider implements a provider that returns a pre-configured
// token, obtained outside of attendload, on every request.
type StaticTokenProvider struct {
	header string
	scheme string
	token  string
}

// NewStaticTokenProvider creates a provider sending "Authorization: Bearer <token>".
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{
		header: "Authorization",
		scheme: "Bearer",
		token:  strings.TrimSpace(token),
	}
}

// NewHeaderTokenProvider sends the raw token in header, e.g. "X-API-Key".
func NewHeaderTokenProvider(header, token string) *StaticTokenProvider {
	return &StaticTokenProvider{
		header: http.CanonicalHeaderKey(strings.TrimSpace(header)),
		token:  strings.TrimSpace(token),
	}
}

// Token returns the static token immediately without any network calls.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", ErrEmptyToken
	}
	return p.token, nil
}

// InjectHeader sets the configured header on req.
func (p *StaticTokenProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}
	value := token
	if p.scheme != "" {
		value = p.scheme + " " + token
	}
	req.Header.Set(p.header, value)
	return nil
}

// Close is a no-op for static token providers.
func (p *StaticTokenProvider) Close() error {
	return nil
}
