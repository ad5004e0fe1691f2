package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h so that the first middleware is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequireBearerKey rejects requests whose Authorization header is not
// "Bearer <key>". An empty key disables the check.
func RequireBearerKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || !cryptox.EqualSecrets(strings.TrimSpace(raw), key) {
				slogx.FromContext(r.Context()).Warn("agent key rejected")
				writeBearerError(w, "missing or invalid agent key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Recover turns a panic in a handler into a 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				slogx.FromContext(r.Context()).Error("handler panic", "panic", v)
				WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
