// Package auth supplies bearer tokens for calls to the brokerage backend
// using the OAuth2 client-credentials grant against a Keycloak realm.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ClientCredentials identifies the worker to the token endpoint.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// KeycloakTokenURL builds the realm token endpoint.
func KeycloakTokenURL(baseURL, realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", strings.TrimSuffix(baseURL, "/"), realm)
}

// Enabled reports whether enough is configured to request tokens.
func (c ClientCredentials) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// TokenSource returns a caching source that refreshes before expiry.
// The base client is used for token requests; nil means http.DefaultClient.
func (c ClientCredentials) TokenSource(ctx context.Context, base *http.Client) oauth2.TokenSource {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	cc := &clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cc.TokenSource(ctx)
}

// Transport wraps base so every request carries a bearer token from src.
func Transport(src oauth2.TokenSource, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &oauth2.Transport{Source: src, Base: base}
}
