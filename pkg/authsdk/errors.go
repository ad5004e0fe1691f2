package authsdk

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed is the single failure kind surfaced by Manager
	// operations. Every *AuthError matches it with errors.Is.
	ErrAuthenticationFailed = errors.New("authsdk: authentication failed")

	// ErrNoCredentials is returned by a CredentialStore when nothing is stored.
	ErrNoCredentials = errors.New("authsdk: no stored credentials")

	// ErrClosed is returned once the Manager has been closed.
	ErrClosed = errors.New("authsdk: manager closed")
)

// Failure reasons carried by AuthError.
const (
	ReasonSignInNotCompleted = "sign_in_not_completed"
	ReasonHostedSignInFailed = "hosted_sign_in_failed"
	ReasonTokenRetrieval     = "token_retrieval_failed"
	ReasonIncompleteTokens   = "incomplete_tokens"
	ReasonMalformedToken     = "malformed_token"
	ReasonMissingPersonID    = "missing_person_id"
	ReasonCredentialStore    = "credential_store_failed"
)

// AuthError describes why an authentication operation failed. It always
// matches ErrAuthenticationFailed and unwraps to the underlying cause.
type AuthError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrAuthenticationFailed, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", ErrAuthenticationFailed, e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuthenticationFailed }

func authFailed(reason string, err error) error {
	// Callers' own cancellations are reported as-is.
	if isContextErr(err) {
		return err
	}

	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return &AuthError{Reason: reason, Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
