// Package auth supplies credentials for the attendance API.
package auth

import (
	"context"
	"net/http"
)

// Provider attaches credentials to outgoing attendance requests. It matches
// httpclient.AuthProvider so a Provider can be handed to a RequestBuilder.
type Provider interface {
	// Token returns the credential value without any header decoration.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the credential header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	Close() error
}

var _ Provider = (*StaticTokenProvider)(nil)
