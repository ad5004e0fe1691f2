package oidcx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client is an authsdk.IdentityProvider for an OpenID Connect issuer.
type Client struct {
	cfg       Config
	log       *slog.Logger
	presenter Presenter
	sessions  SessionStore
	limiter   *rate.Limiter

	mu       sync.Mutex
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
	session  *Session
	source   oauth2.TokenSource

	lmu       sync.Mutex
	listeners []func(authsdk.SessionState)
}

var _ authsdk.IdentityProvider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithPresenter sets how the hosted sign-in URL reaches the user.
func WithPresenter(p Presenter) Option {
	return func(c *Client) { c.presenter = p }
}

// WithSessionStore persists the session so a restarted process stays signed
// in.
func WithSessionStore(s SessionStore) Option {
	return func(c *Client) { c.sessions = s }
}

// New returns a Client. Nothing is fetched until Initialize.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("oidcx: invalid config: %w", err)
	}
	cfg = cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		log:     slog.Default(),
		limiter: rate.NewLimiter(cfg.TokenRate, cfg.TokenBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.presenter == nil {
		c.presenter = LogPresenter(c.log)
	}
	return c, nil
}

// httpContext carries the configured HTTP client to go-oidc and oauth2.
func (c *Client) httpContext(ctx context.Context) context.Context {
	if c.cfg.HTTPClient == nil {
		return ctx
	}
	ctx = oidc.ClientContext(ctx, c.cfg.HTTPClient)
	return context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient)
}

// ============================================================================
// Lifecycle
// ============================================================================

// Initialize runs issuer discovery and restores a persisted session.
func (c *Client) Initialize(ctx context.Context) error {
	provider, err := oidc.NewProvider(c.httpContext(ctx), c.cfg.IssuerURL)
	if err != nil {
		return fmt.Errorf("oidcx: discovery: %w", err)
	}

	oauth := &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  c.cfg.RedirectURL,
		Scopes:       c.cfg.Scopes,
	}

	var verifier *oidc.IDTokenVerifier
	if c.cfg.VerifyIDToken {
		verifier = provider.Verifier(&oidc.Config{ClientID: c.cfg.ClientID})
	}

	var restored *Session
	if c.sessions != nil {
		restored, err = c.sessions.LoadSession(ctx)
		if err != nil {
			c.log.Warn("stored session unreadable, starting signed out", "error", err)
			restored = nil
		}
	}

	c.mu.Lock()
	c.oauth = oauth
	c.verifier = verifier
	if restored != nil {
		c.installLocked(restored)
	}
	c.mu.Unlock()

	c.log.Info("identity provider ready",
		"issuer", c.cfg.IssuerURL,
		"client_id", c.cfg.ClientID,
		"signed_in", restored != nil,
	)
	return nil
}

func (c *Client) oauthConfig() (*oauth2.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.oauth == nil {
		return nil, ErrNotInitialized
	}
	return c.oauth, nil
}

// installLocked makes s the current session. c.mu must be held.
func (c *Client) installLocked(s *Session) {
	c.session = s
	c.source = c.oauth.TokenSource(c.httpContext(context.Background()), s.oauthToken())
}

// ============================================================================
// Sign-in and sign-out
// ============================================================================

// SignIn runs the resource owner password grant.
func (c *Client) SignIn(ctx context.Context, username, password string) (authsdk.SignInOutcome, error) {
	oauth, err := c.oauthConfig()
	if err != nil {
		return authsdk.SignInOutcomeUnknown, err
	}

	tok, err := oauth.PasswordCredentialsToken(c.httpContext(ctx), username, password)
	if err != nil {
		if errorCode(err) == ErrorCodeInvalidGrant {
			c.log.Info("password sign-in rejected")
			return authsdk.SignInOutcomeFailed, nil
		}
		return authsdk.SignInOutcomeUnknown, fmt.Errorf("oidcx: password grant: %w", err)
	}

	return c.completeSignIn(ctx, tok)
}

func (c *Client) completeSignIn(ctx context.Context, tok *oauth2.Token) (authsdk.SignInOutcome, error) {
	sess := sessionFrom(tok, "")
	if sess.IDToken == "" {
		return authsdk.SignInOutcomeUnknown, ErrMissingIDToken
	}
	if err := c.verify(ctx, sess.IDToken); err != nil {
		return authsdk.SignInOutcomeUnknown, err
	}

	c.mu.Lock()
	c.installLocked(sess)
	c.mu.Unlock()
	c.persist(ctx, sess)

	c.log.Info("signed in", "id_token_fp", cryptox.FingerprintToken(sess.IDToken))
	c.emit(authsdk.SessionSignedIn)
	return authsdk.SignInOutcomeSignedIn, nil
}

// SignOut drops the local session. The issuer's session is left alone.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	had := c.session != nil
	c.session = nil
	c.source = nil
	c.mu.Unlock()

	var err error
	if c.sessions != nil {
		if err = c.sessions.ClearSession(ctx); err != nil {
			err = fmt.Errorf("oidcx: clear session: %w", err)
		}
	}
	if had {
		c.emit(authsdk.SessionSignedOut)
	}
	return err
}

// IsSignedIn reports whether a session is held.
func (c *Client) IsSignedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// ============================================================================
// Tokens
// ============================================================================

// GetTokens returns the current token pair, refreshing it through the
// token endpoint when the access token is close to expiry. A rejected
// refresh token ends the session and notifies listeners with
// SessionSignedOutUserPoolsTokensInvalid.
func (c *Client) GetTokens(ctx context.Context) (authsdk.JWTCredentials, error) {
	c.mu.Lock()
	if c.oauth == nil {
		c.mu.Unlock()
		return authsdk.JWTCredentials{}, ErrNotInitialized
	}
	src, prev := c.source, c.session
	c.mu.Unlock()

	if src == nil {
		return authsdk.JWTCredentials{}, ErrNotSignedIn
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return authsdk.JWTCredentials{}, err
	}

	tok, err := src.Token()
	if err != nil {
		if errorCode(err) == ErrorCodeInvalidGrant {
			c.invalidate(ctx, src)
			return authsdk.JWTCredentials{}, fmt.Errorf("%w: %w", ErrSessionInvalidated, err)
		}
		return authsdk.JWTCredentials{}, fmt.Errorf("oidcx: refresh: %w", err)
	}

	sess := prev
	if tok.AccessToken != prev.AccessToken {
		sess = sessionFrom(tok, prev.IDToken)

		c.mu.Lock()
		current := c.source == src
		if current {
			c.session = sess
		}
		c.mu.Unlock()

		if current {
			c.log.Debug("tokens refreshed", "id_token_fp", cryptox.FingerprintToken(sess.IDToken))
			c.persist(ctx, sess)
		}
	}

	if sess.IDToken == "" {
		return authsdk.JWTCredentials{}, ErrMissingIDToken
	}
	if err := c.verify(ctx, sess.IDToken); err != nil {
		return authsdk.JWTCredentials{}, err
	}

	return authsdk.JWTCredentials{AccessToken: sess.AccessToken, IDToken: sess.IDToken}, nil
}

// invalidate drops the session that produced src, unless a newer sign-in
// has already replaced it.
func (c *Client) invalidate(ctx context.Context, src oauth2.TokenSource) {
	c.mu.Lock()
	current := c.source == src
	if current {
		c.session = nil
		c.source = nil
	}
	c.mu.Unlock()

	if !current {
		return
	}

	c.log.Warn("refresh token rejected, session dropped")
	if c.sessions != nil {
		if err := c.sessions.ClearSession(ctx); err != nil {
			c.log.Warn("clear stored session failed", "error", err)
		}
	}
	c.emit(authsdk.SessionSignedOutUserPoolsTokensInvalid)
}

func (c *Client) verify(ctx context.Context, idToken string) error {
	c.mu.Lock()
	verifier := c.verifier
	c.mu.Unlock()
	if verifier == nil {
		return nil
	}
	if _, err := verifier.Verify(c.httpContext(ctx), idToken); err != nil {
		return fmt.Errorf("oidcx: verify id token: %w", err)
	}
	return nil
}

func (c *Client) persist(ctx context.Context, s *Session) {
	if c.sessions == nil {
		return
	}
	if err := c.sessions.SaveSession(ctx, s); err != nil {
		c.log.Warn("persist session failed", "error", err)
	}
}

// ============================================================================
// Listeners
// ============================================================================

// AddSessionStateListener registers fn. Listeners are called synchronously
// on the goroutine that changed the state.
func (c *Client) AddSessionStateListener(fn func(authsdk.SessionState)) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) emit(state authsdk.SessionState) {
	c.lmu.Lock()
	listeners := append([]func(authsdk.SessionState){}, c.listeners...)
	c.lmu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}
