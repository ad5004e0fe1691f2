package oidcx

import (
	"errors"

	"golang.org/x/oauth2"
)

var (
	ErrNotInitialized     = errors.New("oidcx: provider not initialized")
	ErrNotSignedIn        = errors.New("oidcx: not signed in")
	ErrMissingIDToken     = errors.New("oidcx: token response has no id_token")
	ErrNoRedirectURL      = errors.New("oidcx: hosted sign-in needs a redirect url")
	ErrStateMismatch      = errors.New("oidcx: callback state mismatch")
	ErrSessionInvalidated = errors.New("oidcx: refresh token rejected, session dropped")
)

// OAuth2 error codes the client reacts to.
const (
	ErrorCodeInvalidGrant = "invalid_grant"
	ErrorCodeAccessDenied = "access_denied"
)

// errorCode returns the OAuth2 error code of a token endpoint failure, or
// "" for anything else.
func errorCode(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode
	}
	return ""
}
