package authsdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

/*
 * In-memory collaborators for Manager tests: an identity provider whose
 * behaviour each test scripts, and a credential store.
 */

var errProvider = errors.New("provider unavailable")

type fakeProvider struct {
	mu        sync.Mutex
	listeners []func(authsdk.SessionState)
	hosted    []authsdk.HostedSignInOptions

	initFn      func(call int32) error
	getTokensFn func(ctx context.Context, call int32) (authsdk.JWTCredentials, error)
	signInFn    func(ctx context.Context, username, password string) (authsdk.SignInOutcome, error)
	hostedFn    func(ctx context.Context, opts authsdk.HostedSignInOptions) (authsdk.SignInOutcome, error)
	signOutFn   func(call int32)

	signedIn       atomic.Bool
	initCalls      atomic.Int32
	getTokensCalls atomic.Int32
	signInCalls    atomic.Int32
	hostedCalls    atomic.Int32
	signOutCalls   atomic.Int32
}

func (p *fakeProvider) Initialize(context.Context) error {
	call := p.initCalls.Add(1)
	if p.initFn == nil {
		return nil
	}
	return p.initFn(call)
}

func (p *fakeProvider) SignIn(ctx context.Context, username, password string) (authsdk.SignInOutcome, error) {
	p.signInCalls.Add(1)
	if p.signInFn == nil {
		p.signedIn.Store(true)
		return authsdk.SignInOutcomeSignedIn, nil
	}

	outcome, err := p.signInFn(ctx, username, password)
	if err == nil && outcome == authsdk.SignInOutcomeSignedIn {
		p.signedIn.Store(true)
	}
	return outcome, err
}

func (p *fakeProvider) ShowHostedSignIn(ctx context.Context, opts authsdk.HostedSignInOptions) (authsdk.SignInOutcome, error) {
	p.hostedCalls.Add(1)
	p.mu.Lock()
	p.hosted = append(p.hosted, opts)
	p.mu.Unlock()

	if p.hostedFn == nil {
		p.signedIn.Store(true)
		return authsdk.SignInOutcomeSignedIn, nil
	}
	return p.hostedFn(ctx, opts)
}

func (p *fakeProvider) GetTokens(ctx context.Context) (authsdk.JWTCredentials, error) {
	call := p.getTokensCalls.Add(1)
	return p.getTokensFn(ctx, call)
}

func (p *fakeProvider) SignOut(context.Context) error {
	call := p.signOutCalls.Add(1)
	if p.signOutFn != nil {
		p.signOutFn(call)
	}
	p.signedIn.Store(false)
	p.emit(authsdk.SessionSignedOut)
	return nil
}

func (p *fakeProvider) AddSessionStateListener(fn func(authsdk.SessionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

func (p *fakeProvider) IsSignedIn() bool { return p.signedIn.Load() }

func (p *fakeProvider) emit(state authsdk.SessionState) {
	p.mu.Lock()
	listeners := append([]func(authsdk.SessionState){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

func (p *fakeProvider) hostedOptions() []authsdk.HostedSignInOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]authsdk.HostedSignInOptions{}, p.hosted...)
}

// tokensFor always returns the same pair.
func tokensFor(creds authsdk.JWTCredentials) func(context.Context, int32) (authsdk.JWTCredentials, error) {
	return func(context.Context, int32) (authsdk.JWTCredentials, error) { return creds, nil }
}

type memStore struct {
	mu        sync.Mutex
	creds     *authsdk.Credentials
	getErr    error
	deleteErr error

	setCalls    atomic.Int32
	deleteCalls atomic.Int32
}

func (s *memStore) Get(context.Context) (authsdk.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.getErr != nil {
		return authsdk.Credentials{}, s.getErr
	}
	if s.creds == nil {
		return authsdk.Credentials{}, authsdk.ErrNoCredentials
	}
	return *s.creds, nil
}

func (s *memStore) Set(_ context.Context, c authsdk.Credentials) error {
	s.setCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = &c
	return nil
}

func (s *memStore) Delete(context.Context) error {
	s.deleteCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.creds = nil
	return nil
}

func (s *memStore) stored() *authsdk.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

type countingListener struct {
	logouts atomic.Int32
}

func (l *countingListener) Logout() { l.logouts.Add(1) }

// mintIDToken signs an id token expiring at exp with a person id, plus any
// extra claims.
func mintIDToken(t *testing.T, exp time.Time, extra jwt.MapClaims) string {
	t.Helper()

	claims := jwt.MapClaims{
		"exp":              exp.Unix(),
		"sub":              "user-1",
		"custom:person_id": "person-1",
	}
	for k, v := range extra {
		claims[k] = v
	}

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func validTokens(t *testing.T) authsdk.JWTCredentials {
	t.Helper()
	return authsdk.JWTCredentials{
		AccessToken: "access-token",
		IDToken:     mintIDToken(t, time.Now().Add(time.Hour), nil),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps tests quick while still exercising one retry.
var fastRetry = authsdk.RetryPolicy{Attempts: 2, Delay: 5 * time.Millisecond}

// newStartedManager builds and starts a Manager over the fakes.
func newStartedManager(t *testing.T, p *fakeProvider, s *memStore, l authsdk.Listener, opts ...authsdk.Option) *authsdk.Manager {
	t.Helper()

	opts = append([]authsdk.Option{
		authsdk.WithLogger(quietLogger()),
		authsdk.WithRetryPolicy(fastRetry),
	}, opts...)

	m := authsdk.NewManager(p, s, l, opts...)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func credentialStore() *memStore {
	return &memStore{creds: &authsdk.Credentials{Username: "alice", Password: "s3cret"}}
}
