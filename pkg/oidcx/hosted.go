package oidcx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"golang.org/x/oauth2"
)

// Presenter shows the hosted sign-in URL to the user, typically by opening
// a browser. Present must not block until sign-in completes.
type Presenter interface {
	Present(ctx context.Context, authURL string) error
}

// PresenterFunc adapts a function to a Presenter.
type PresenterFunc func(ctx context.Context, authURL string) error

func (f PresenterFunc) Present(ctx context.Context, authURL string) error { return f(ctx, authURL) }

// LogPresenter prints the URL through log for the user to open.
func LogPresenter(log *slog.Logger) Presenter {
	return PresenterFunc(func(ctx context.Context, authURL string) error {
		log.InfoContext(ctx, "open this URL in a browser to sign in", "url", authURL)
		return nil
	})
}

type callbackResult struct {
	code    string
	errCode string
	errDesc string
}

const callbackPage = `<!doctype html><title>Signed in</title><p>Sign-in finished. You can close this window.</p>`

// ShowHostedSignIn runs an authorization code flow with PKCE. It listens on
// the configured loopback redirect URL, hands the authorize URL to the
// Presenter and waits for the browser to return.
func (c *Client) ShowHostedSignIn(ctx context.Context, opts authsdk.HostedSignInOptions) (authsdk.SignInOutcome, error) {
	oauth, err := c.oauthConfig()
	if err != nil {
		return authsdk.SignInOutcomeUnknown, err
	}
	if c.cfg.RedirectURL == "" {
		return authsdk.SignInOutcomeUnknown, ErrNoRedirectURL
	}
	redirect, err := url.Parse(c.cfg.RedirectURL)
	if err != nil {
		return authsdk.SignInOutcomeUnknown, fmt.Errorf("oidcx: redirect url: %w", err)
	}

	cfg := *oauth
	if len(opts.Scopes) > 0 {
		cfg.Scopes = opts.Scopes
	}

	state, err := cryptox.GenerateToken(cryptox.StateSize)
	if err != nil {
		return authsdk.SignInOutcomeUnknown, err
	}
	verifier := oauth2.GenerateVerifier()

	authOpts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if opts.IdentityProvider != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam(c.cfg.IdentityProviderParam, opts.IdentityProvider))
	}
	if opts.PrivateSession {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", "login"))
	}
	authURL := cfg.AuthCodeURL(state, authOpts...)

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.HostedTimeout)
	defer cancel()

	results, stop, err := c.listenCallback(redirect, state)
	if err != nil {
		return authsdk.SignInOutcomeUnknown, err
	}
	defer stop()

	log := c.log.With("identity_provider", opts.IdentityProvider)
	log.Info("hosted sign-in started", "private", opts.PrivateSession)

	if err := c.presenter.Present(waitCtx, authURL); err != nil {
		return authsdk.SignInOutcomeUnknown, fmt.Errorf("oidcx: present sign-in url: %w", err)
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return authsdk.SignInOutcomeUnknown, err
		}
		log.Warn("hosted sign-in timed out")
		return authsdk.SignInOutcomeIncomplete, nil
	}

	switch {
	case res.errCode == ErrorCodeAccessDenied:
		log.Info("hosted sign-in declined", "error_description", res.errDesc)
		return authsdk.SignInOutcomeFailed, nil
	case res.errCode != "":
		log.Warn("hosted sign-in rejected", "error", res.errCode, "error_description", res.errDesc)
		return authsdk.SignInOutcomeFailed, nil
	case res.code == "":
		return authsdk.SignInOutcomeIncomplete, nil
	}

	tok, err := cfg.Exchange(c.httpContext(ctx), res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		if errorCode(err) == ErrorCodeInvalidGrant {
			log.Info("authorization code rejected")
			return authsdk.SignInOutcomeFailed, nil
		}
		return authsdk.SignInOutcomeUnknown, fmt.Errorf("oidcx: code exchange: %w", err)
	}

	return c.completeSignIn(ctx, tok)
}

// listenCallback serves the redirect URL until stop is called. Only the
// first callback carrying the expected state is delivered.
func (c *Client) listenCallback(redirect *url.URL, state string) (<-chan callbackResult, func(), error) {
	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, nil, fmt.Errorf("oidcx: listen on redirect url: %w", err)
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !cryptox.EqualSecrets(q.Get("state"), state) {
			c.log.Warn("hosted sign-in callback with unexpected state")
			http.Error(w, ErrStateMismatch.Error(), http.StatusBadRequest)
			return
		}

		select {
		case results <- callbackResult{
			code:    q.Get("code"),
			errCode: q.Get("error"),
			errDesc: q.Get("error_description"),
		}:
		default:
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(callbackPage))
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Warn("callback listener stopped", "error", err)
		}
	}()

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return results, stop, nil
}
