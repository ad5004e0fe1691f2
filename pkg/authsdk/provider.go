package authsdk

import "context"

// IdentityProvider is the remote identity service the Manager drives. An
// implementation owns the network exchange and its own refresh-token
// handling; GetTokens returns a currently valid pair or an error.
type IdentityProvider interface {
	Initialize(ctx context.Context) error
	SignIn(ctx context.Context, username, password string) (SignInOutcome, error)
	ShowHostedSignIn(ctx context.Context, opts HostedSignInOptions) (SignInOutcome, error)
	GetTokens(ctx context.Context) (JWTCredentials, error)
	SignOut(ctx context.Context) error

	// AddSessionStateListener registers fn for session-state changes. fn may
	// be called from any goroutine and must not block.
	AddSessionStateListener(fn func(SessionState))
	IsSignedIn() bool
}

// CredentialStore persists the direct sign-in Credentials.
type CredentialStore interface {
	// Get returns ErrNoCredentials when nothing is stored.
	Get(ctx context.Context) (Credentials, error)
	Set(ctx context.Context, c Credentials) error
	Delete(ctx context.Context) error
}

// Listener is told when the session ended and could not be recovered. The
// Manager does not own it.
type Listener interface {
	Logout()
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func()

func (f ListenerFunc) Logout() { f() }

// Recorder receives counters about Manager activity.
type Recorder interface {
	TokenRequest(mode SessionMode, outcome string)
	ProviderFetch(outcome string)
	CacheHit()
	Relogin(outcome string)
	Logout()
}

// Outcome labels passed to Recorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type nopRecorder struct{}

func (nopRecorder) TokenRequest(SessionMode, string) {}
func (nopRecorder) ProviderFetch(string)             {}
func (nopRecorder) CacheHit()                        {}
func (nopRecorder) Relogin(string)                   {}
func (nopRecorder) Logout()                          {}
