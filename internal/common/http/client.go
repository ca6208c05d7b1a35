// Package http builds the outbound HTTP client used for backend calls.
package http

import (
	"context"
	"net/http"
	"time"

	"insurance-checkout/internal/common/auth"
)

// NewClient returns a client with the given timeout. When creds are enabled,
// requests carry a client-credentials bearer token.
func NewClient(ctx context.Context, timeout time.Duration, creds auth.ClientCredentials) *http.Client {
	base := &http.Client{Timeout: timeout}
	if !creds.Enabled() {
		return base
	}
	src := creds.TokenSource(ctx, base)
	return &http.Client{
		Timeout:   timeout,
		Transport: auth.Transport(src, http.DefaultTransport),
	}
}
