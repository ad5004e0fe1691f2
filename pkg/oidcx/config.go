// Package oidcx implements authsdk.IdentityProvider against an OpenID
// Connect issuer: password grant for direct sign-in, authorization code with
// PKCE for hosted sign-in, and refresh-token rotation for GetTokens.
package oidcx

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/time/rate"
)

// DefaultIdentityProviderParam is the authorize parameter that names an
// upstream identity provider (Cognito's spelling; Keycloak uses kc_idp_hint).
const DefaultIdentityProviderParam = "identity_provider"

// DefaultHostedTimeout bounds how long a hosted sign-in waits for the
// browser to come back to the redirect URL.
const DefaultHostedTimeout = 5 * time.Minute

// Config describes the issuer and client. It is the Go shape of the
// pool/client/web-domain/callback record a mobile client is configured with.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string

	// RedirectURL is the loopback callback for hosted sign-in, e.g.
	// http://127.0.0.1:8765/callback.
	RedirectURL string

	// Scopes requested by direct sign-in. Hosted sign-in uses the scopes in
	// its options. Defaults to openid.
	Scopes []string

	IdentityProviderParam string

	// VerifyIDToken checks the ID token signature, issuer and audience
	// against the issuer's JWKS before it is handed out.
	VerifyIDToken bool

	// TokenRate limits GetTokens calls that reach the token endpoint.
	// Zero means unlimited.
	TokenRate  rate.Limit
	TokenBurst int

	HostedTimeout time.Duration

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if len(c.Scopes) == 0 {
		c.Scopes = []string{oidc.ScopeOpenID}
	}
	if c.IdentityProviderParam == "" {
		c.IdentityProviderParam = DefaultIdentityProviderParam
	}
	if c.TokenRate == 0 {
		c.TokenRate = rate.Inf
	}
	if c.TokenBurst <= 0 {
		c.TokenBurst = 1
	}
	if c.HostedTimeout <= 0 {
		c.HostedTimeout = DefaultHostedTimeout
	}
	return c
}

// Validate reports missing or unusable fields.
func (c Config) Validate() error {
	var errs []error
	if c.IssuerURL == "" {
		errs = append(errs, errors.New("issuer url is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}
	if c.RedirectURL != "" {
		u, err := url.Parse(c.RedirectURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("redirect url: %w", err))
		} else if u.Scheme != "http" || u.Host == "" {
			errs = append(errs, fmt.Errorf("redirect url %q must be a loopback http url", c.RedirectURL))
		}
	}
	return errors.Join(errs...)
}
