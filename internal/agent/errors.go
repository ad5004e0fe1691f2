package agent

import (
	"context"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/httpx"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
)

// Error codes written in httpx.ErrorBody.
const (
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeInvalidRequest       = "invalid_request"
	ErrCodeUnknownProvider      = "unknown_provider"
	ErrCodeUnavailable          = "temporarily_unavailable"
	ErrCodeServerError          = "server_error"
)

// writeSessionError maps a Manager error onto a response.
func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var authErr *authsdk.AuthError
	switch {
	case errors.As(err, &authErr):
		log.Info("authentication failed", "reason", authErr.Reason, "err", authErr.Err)
		httpx.WriteError(w, http.StatusUnauthorized, ErrCodeAuthenticationFailed, authErr.Reason)
	case errors.Is(err, authsdk.ErrAuthenticationFailed):
		log.Info("authentication failed", "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, ErrCodeAuthenticationFailed, "")
	case errors.Is(err, authsdk.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		log.Warn("session unavailable", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "session not available")
	default:
		log.Error("session operation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, ErrCodeServerError, "internal error")
	}
}
