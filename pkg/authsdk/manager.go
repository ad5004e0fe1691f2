package authsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/jwtx"
)

// Manager owns the token lifecycle of a single identity-provider session.
// It is safe for concurrent use.
type Manager struct {
	provider IdentityProvider
	store    CredentialStore
	listener Listener

	opts     options
	log      *slog.Logger
	recorder Recorder

	baseCtx context.Context
	cancel  context.CancelFunc

	started atomic.Bool
	ready   chan struct{}

	mu         sync.Mutex
	socialMode *bool // memoised mode, nil until first computed
	lastClaims *jwtx.Claims
	generation uint64 // bumped by DeleteAuthentication

	cache   tokenCache
	fetcher *fetcher
	coord   *coordinator
}

// NewManager creates a Manager. Start must be called before requests are
// served; until then they wait. listener may be nil.
func NewManager(provider IdentityProvider, store CredentialStore, listener Listener, opts ...Option) *Manager {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	log := o.logger.With("component", "authsdk")

	return &Manager{
		provider: provider,
		store:    store,
		listener: listener,
		opts:     o,
		log:      log,
		recorder: o.recorder,
		baseCtx:  baseCtx,
		cancel:   cancel,
		ready:    make(chan struct{}),
		fetcher: &fetcher{
			provider: provider,
			recorder: o.recorder,
			log:      log,
		},
		coord: newCoordinator(),
	}
}

// Start initialises the identity provider, then registers for session-state
// changes. Operations that were waiting for the provider proceed once it
// returns successfully. A failed Start may be called again.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("authsdk: manager already started")
	}

	if err := m.provider.Initialize(ctx); err != nil {
		m.started.Store(false)
		return fmt.Errorf("initialize identity provider: %w", err)
	}

	m.provider.AddSessionStateListener(m.onSessionState)
	close(m.ready)
	m.log.Info("identity provider ready")
	return nil
}

// Ready reports whether Start has completed.
func (m *Manager) Ready() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

// Close stops background work. In-flight social fetches resolve with an
// error and later calls fail with ErrClosed.
func (m *Manager) Close() error {
	m.cancel()
	return nil
}

func (m *Manager) waitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-m.baseCtx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
// Mode
// ============================================================================

// Mode returns the session mode, computing and memoising it on first use.
func (m *Manager) Mode(ctx context.Context) SessionMode {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.socialMode == nil {
		_, err := m.store.Get(context.WithoutCancel(ctx))
		if err != nil && !errors.Is(err, ErrNoCredentials) {
			m.log.Warn("reading stored credentials failed, assuming social sign-in", "err", err)
		}
		social := err != nil
		m.socialMode = &social
	}

	if *m.socialMode {
		return SocialSignIn
	}
	return CredentialSignIn
}

func (m *Manager) setMode(mode SessionMode) {
	social := mode == SocialSignIn

	m.mu.Lock()
	m.socialMode = &social
	m.mu.Unlock()
}

// ============================================================================
// Tokens
// ============================================================================

// GetToken returns the current id token with the configured prefix. Failures
// are reported as ErrAuthenticationFailed, or ctx's error if ctx ended first.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	creds, mode, err := m.Tokens(ctx)
	if err != nil {
		m.recorder.TokenRequest(mode, OutcomeFailure)
		return "", err
	}

	m.recorder.TokenRequest(mode, OutcomeSuccess)
	return m.opts.tokenPrefix + creds.IDToken, nil
}

// Tokens is GetToken without the prefix, returning the whole pair and the
// mode it was served in.
func (m *Manager) Tokens(ctx context.Context) (JWTCredentials, SessionMode, error) {
	if err := m.waitReady(ctx); err != nil {
		return JWTCredentials{}, 0, err
	}
	// A login that is running decides the mode, wait for it.
	if err := m.coord.waitIdle(ctx); err != nil {
		return JWTCredentials{}, 0, err
	}

	mode := m.Mode(ctx)
	var (
		creds JWTCredentials
		err   error
	)
	switch mode {
	case SocialSignIn:
		creds, err = m.socialToken(ctx)
	default:
		creds, err = m.credentialToken(ctx)
	}
	return creds, mode, err
}

// socialToken serves from the in-memory cache, fetching when it is empty or
// the token is about to expire. A cached error is returned until the cache
// is reset.
func (m *Manager) socialToken(ctx context.Context) (JWTCredentials, error) {
	state, p, started := m.cache.claim(m.isFresh)
	if started {
		go m.loadSocial(p)
	}

	if p == nil {
		if state.Status == StateError {
			return JWTCredentials{}, state.Err
		}
		m.recorder.CacheHit()
		return state.Data, nil
	}

	res, err := p.wait(ctx)
	if err != nil {
		return JWTCredentials{}, err
	}
	if res.Status == StateError {
		return JWTCredentials{}, res.Err
	}
	return res.Data, nil
}

// loadSocial fills a pending load. It runs detached from any caller so the
// load always resolves.
func (m *Manager) loadSocial(p *pendingLoad) {
	creds, err := m.credentialToken(m.baseCtx)
	if err != nil {
		m.cache.resolve(p, errorOf[JWTCredentials](err))
		return
	}
	m.cache.resolve(p, dataOf(creds))
}

func (m *Manager) isFresh(creds JWTCredentials) bool {
	claims, err := jwtx.DecodeClaims(creds.IDToken)
	if err != nil {
		return false
	}
	return !claims.IsAboutToExpire(m.opts.now())
}

// credentialToken asks the identity provider for tokens under the retry
// policy.
func (m *Manager) credentialToken(ctx context.Context) (JWTCredentials, error) {
	creds, err := retry(ctx, m.opts.retry, m.notifyRetry, m.fetchOnce)
	if err != nil {
		return JWTCredentials{}, authFailed(ReasonTokenRetrieval, err)
	}
	return creds, nil
}

func (m *Manager) fetchOnce(ctx context.Context) (JWTCredentials, error) {
	if err := m.waitReady(ctx); err != nil {
		return JWTCredentials{}, err
	}
	if err := m.coord.waitIdle(ctx); err != nil {
		return JWTCredentials{}, err
	}

	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	creds, err := m.fetcher.fetch(ctx)
	if err != nil {
		return JWTCredentials{}, authFailed(ReasonTokenRetrieval, err)
	}

	claims, err := m.validate(creds)
	if err != nil {
		return JWTCredentials{}, err
	}

	// A session torn down while the fetch ran keeps its claims cleared.
	m.mu.Lock()
	if m.generation == gen {
		m.lastClaims = claims
	}
	m.mu.Unlock()

	m.log.Debug("token acquired",
		"token_fp", cryptox.FingerprintToken(creds.IDToken),
		"expires_at", claims.Expiry(),
		"login_provider", string(claims.LoginProvider),
	)
	return creds, nil
}

// validate rejects token pairs that cannot be used.
func (m *Manager) validate(creds JWTCredentials) (*jwtx.Claims, error) {
	if creds.AccessToken == "" || creds.IDToken == "" {
		return nil, authFailed(ReasonIncompleteTokens, nil)
	}

	claims, err := jwtx.DecodeClaims(creds.IDToken)
	if err != nil {
		return nil, authFailed(ReasonMalformedToken, err)
	}

	if m.opts.requirePersonID && !claims.HasPersonID() {
		return nil, authFailed(ReasonMissingPersonID, nil)
	}
	return claims, nil
}

func (m *Manager) notifyRetry(err error, delay time.Duration) {
	m.log.Debug("token request failed, retrying", "err", err, "delay", delay)
}

// CurrentClaims returns the claims of the last token handed out in this
// session.
func (m *Manager) CurrentClaims() (jwtx.Claims, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastClaims == nil {
		return jwtx.Claims{}, false
	}
	return *m.lastClaims, true
}

// OnFailedRequest drops the cached token so the next GetToken refetches. Call
// it when a downstream service rejected the token.
func (m *Manager) OnFailedRequest() {
	dropped := m.cache.Peek().Status
	m.cache.reset()
	m.log.Debug("token cache reset after failed request", "dropped_state", dropped.String())
}

// ============================================================================
// Login / logout
// ============================================================================

// Login signs in with a username and password, replacing any current
// session. The credentials are stored only once the provider reports the
// user signed in.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	if err := m.coord.begin(ctx); err != nil {
		return err
	}
	defer m.coord.end()

	return m.login(ctx, creds)
}

// login runs a credential sign-in. The caller holds the coordinator.
func (m *Manager) login(ctx context.Context, creds Credentials) error {
	if err := m.DeleteAuthentication(ctx); err != nil {
		return err
	}

	outcome, err := m.provider.SignIn(ctx, creds.Username, creds.Password)
	if err != nil {
		return authFailed(ReasonSignInNotCompleted, err)
	}
	if outcome != SignInOutcomeSignedIn {
		return authFailed(ReasonSignInNotCompleted, fmt.Errorf("sign-in outcome %s", outcome))
	}

	if err := m.store.Set(context.WithoutCancel(ctx), creds); err != nil {
		return authFailed(ReasonCredentialStore, err)
	}
	m.setMode(CredentialSignIn)

	m.log.Info("signed in", "mode", CredentialSignIn.String())
	return nil
}

// AppleLogin runs a hosted sign-in through Sign in with Apple.
func (m *Manager) AppleLogin(ctx context.Context) error {
	return m.socialLogin(ctx, IdentityProviderApple)
}

// FacebookLogin runs a hosted sign-in through Facebook.
func (m *Manager) FacebookLogin(ctx context.Context) error {
	return m.socialLogin(ctx, IdentityProviderFacebook)
}

func (m *Manager) socialLogin(ctx context.Context, identityProvider string) error {
	if err := m.coord.begin(ctx); err != nil {
		return err
	}
	defer m.coord.end()

	if err := m.DeleteAuthentication(ctx); err != nil {
		return err
	}

	outcome, err := m.provider.ShowHostedSignIn(ctx, HostedSignInOptions{
		Scopes:           m.opts.hostedScopes,
		IdentityProvider: identityProvider,
		PrivateSession:   true,
	})
	if err != nil {
		return authFailed(ReasonHostedSignInFailed, err)
	}
	if outcome != SignInOutcomeSignedIn {
		return authFailed(ReasonHostedSignInFailed, fmt.Errorf("hosted sign-in outcome %s", outcome))
	}
	m.setMode(SocialSignIn)

	m.log.Info("signed in", "mode", SocialSignIn.String(), "identity_provider", identityProvider)
	return nil
}

// DeleteAuthentication tears the session down: mode, cached tokens, stored
// credentials, and the provider session. It is idempotent and never reports
// internal failures, only ctx's error while waiting for the provider.
func (m *Manager) DeleteAuthentication(ctx context.Context) error {
	if err := m.waitReady(ctx); err != nil {
		return err
	}
	detached := context.WithoutCancel(ctx)

	m.mu.Lock()
	m.generation++
	m.socialMode = nil
	m.lastClaims = nil
	m.cache.reset()
	m.fetcher.forget()
	if err := m.store.Delete(detached); err != nil {
		m.log.Warn("deleting stored credentials failed", "err", err)
	}
	m.mu.Unlock()

	if m.provider.IsSignedIn() {
		if err := m.provider.SignOut(detached); err != nil {
			m.log.Warn("identity provider sign-out failed", "err", err)
		}
	}
	return nil
}
