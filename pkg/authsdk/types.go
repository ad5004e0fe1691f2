package authsdk

// ============================================================================
// Credentials and tokens
// ============================================================================

// Credentials is a direct sign-in username/password pair. Their presence in
// the CredentialStore is what puts a session into credential mode.
type Credentials struct {
	Username string
	Password string
}

// JWTCredentials is the token pair returned by the identity provider.
// IDToken is a three-segment signed JWT.
type JWTCredentials struct {
	AccessToken string
	IDToken     string
}

// ============================================================================
// Session mode
// ============================================================================

// SessionMode selects how GetToken serves tokens.
type SessionMode int

const (
	// SocialSignIn is used when no Credentials are stored. Tokens are cached
	// in memory for the lifetime of the session.
	SocialSignIn SessionMode = iota + 1

	// CredentialSignIn is used when Credentials are stored. Every request goes
	// to the identity provider, which manages its own token refresh.
	CredentialSignIn
)

func (m SessionMode) String() string {
	switch m {
	case SocialSignIn:
		return "social"
	case CredentialSignIn:
		return "credential"
	default:
		return "unknown"
	}
}

// ============================================================================
// Loading state
// ============================================================================

// LoadStatus is the tag of a LoadingState.
type LoadStatus int

const (
	StateEmpty LoadStatus = iota
	StateLoading
	StateData
	StateError
)

func (s LoadStatus) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateData:
		return "data"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// LoadingState is a tri-state cache entry. Data is only meaningful when
// Status is StateData and Err only when Status is StateError.
type LoadingState[T any] struct {
	Status LoadStatus
	Data   T
	Err    error
}

func loadingOf[T any]() LoadingState[T] {
	return LoadingState[T]{Status: StateLoading}
}

func dataOf[T any](v T) LoadingState[T] {
	return LoadingState[T]{Status: StateData, Data: v}
}

func errorOf[T any](err error) LoadingState[T] {
	return LoadingState[T]{Status: StateError, Err: err}
}

// ============================================================================
// Identity provider vocabulary
// ============================================================================

// SignInOutcome is the result of a completed sign-in exchange.
type SignInOutcome int

const (
	SignInOutcomeUnknown SignInOutcome = iota
	SignInOutcomeSignedIn
	// SignInOutcomeIncomplete means the provider wants a further step
	// (challenge, new password, ...) that this package does not drive.
	SignInOutcomeIncomplete
	// SignInOutcomeFailed means the provider rejected the sign-in.
	SignInOutcomeFailed
)

func (o SignInOutcome) String() string {
	switch o {
	case SignInOutcomeSignedIn:
		return "signed_in"
	case SignInOutcomeIncomplete:
		return "incomplete"
	case SignInOutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// HostedSignInOptions configures a hosted (browser based) sign-in.
type HostedSignInOptions struct {
	Scopes           []string
	IdentityProvider string

	// PrivateSession asks the provider not to reuse an existing browser
	// session, so every hosted sign-in shows the provider's login.
	PrivateSession bool
}

// Identity provider names used for hosted sign-in.
const (
	IdentityProviderApple    = "SignInWithApple"
	IdentityProviderFacebook = "Facebook"
)

// SessionState is a session-state notification raised by the identity
// provider.
type SessionState int

const (
	SessionUnknown SessionState = iota
	SessionSignedIn
	SessionSignedOut
	SessionSignedOutFederatedTokensInvalid
	SessionSignedOutUserPoolsTokensInvalid
)

func (s SessionState) String() string {
	switch s {
	case SessionSignedIn:
		return "signed_in"
	case SessionSignedOut:
		return "signed_out"
	case SessionSignedOutFederatedTokensInvalid:
		return "signed_out_federated_tokens_invalid"
	case SessionSignedOutUserPoolsTokensInvalid:
		return "signed_out_user_pools_tokens_invalid"
	default:
		return "unknown"
	}
}

// invalidatesSession reports whether s means the provider dropped the
// session and the stored tokens can no longer be refreshed.
func (s SessionState) invalidatesSession() bool {
	return s == SessionSignedOutFederatedTokensInvalid || s == SessionSignedOutUserPoolsTokensInvalid
}
