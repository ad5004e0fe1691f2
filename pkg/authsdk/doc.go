/*
Package authsdk manages the token lifecycle of a client-side identity
provider session.

# Overview

A Manager sits between application code and an IdentityProvider. Callers ask
for a token with GetToken; the Manager decides whether to serve it from memory
or from the provider, keeps at most one provider request in flight, retries a
failed request once, and reacts when the provider reports that the session
became invalid.

	m := authsdk.NewManager(provider, store, listener,
		authsdk.WithLogger(logger),
		authsdk.WithTokenPrefix("Bearer "),
	)
	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Close()

	token, err := m.GetToken(ctx)

# Session Modes

The mode is derived from the CredentialStore the first time it is needed and
then memoised until DeleteAuthentication:

  - CredentialSignIn: credentials are stored. Every GetToken goes to the
    provider, which handles refresh itself.
  - SocialSignIn: no credentials are stored (the user came through a hosted
    sign-in). The token pair is cached in memory and refetched when it is
    within jwtx.ExpiryMargin of expiring.

# Concurrency

Concurrent GetToken calls share one provider request. Logins (Login,
AppleLogin, FacebookLogin, and the silent re-login after a session is
invalidated) are serialised; token requests wait for a running login before
they touch the provider.

A caller whose context ends stops waiting, but requests already sent to the
provider complete and their result is delivered to everyone else waiting.

# Session Invalidation

When the provider signals SessionSignedOutFederatedTokensInvalid or
SessionSignedOutUserPoolsTokensInvalid and no login is running:

  - with stored credentials, the Manager signs in again with them. If that
    fails, Listener.Logout is called.
  - otherwise the session is deleted and Listener.Logout is called.

# Errors

Every failure is an *AuthError matching ErrAuthenticationFailed, except
context errors, which are returned as they are:

	if errors.Is(err, authsdk.ErrAuthenticationFailed) {
		var ae *authsdk.AuthError
		_ = errors.As(err, &ae)
		log.Warn("auth failed", "reason", ae.Reason)
	}

# HTTP

Transport is an http.RoundTripper that sets the Authorization header and
calls OnFailedRequest when the downstream service answers 401.
*/
package authsdk
