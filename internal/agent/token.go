package agent

import (
	"net/http"

	"github.com/aussiebroadwan/authsession/pkg/httpx"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
)

// TokenHandler serves GET /v1/token.
type TokenHandler struct {
	Session Session
}

// ServeHTTP godoc
//
//	@Summary		Current ID token
//	@Description	Returns the session's ID token with the configured prefix, fetching or refreshing it as needed.
//	@Tags			Session
//	@Produce		json
//	@Security		AgentKey
//	@Success		200	{object}	agent.TokenResponse
//	@Failure		401	{object}	httpx.ErrorBody	"authentication_failed"
//	@Failure		503	{object}	httpx.ErrorBody	"temporarily_unavailable"
//	@Router			/v1/token [get].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := h.Session.GetToken(ctx)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	resp := TokenResponse{
		Token: token,
		Mode:  h.Session.Mode(ctx).String(),
	}
	if claims, ok := h.Session.CurrentClaims(); ok {
		resp.ExpiresAt = claims.ExpiresAt
	}

	slogx.FromContext(ctx).Debug("token served", "mode", resp.Mode)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// InvalidateHandler serves POST /v1/token/invalidate. Clients call it when a
// downstream service rejected the token.
type InvalidateHandler struct {
	Session Session
}

// ServeHTTP godoc
//
//	@Summary	Drop the cached token
//	@Tags		Session
//	@Security	AgentKey
//	@Success	204
//	@Router		/v1/token/invalidate [post].
func (h *InvalidateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Session.OnFailedRequest()
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
