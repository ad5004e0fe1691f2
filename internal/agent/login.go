package agent

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/httpx"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
)

// LoginHandler serves POST /v1/login.
type LoginHandler struct {
	Session Session
}

// ServeHTTP godoc
//
//	@Summary		Direct sign-in
//	@Description	Signs in with a username and password and stores them for silent re-login.
//	@Tags			Session
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Security		AgentKey
//	@Param			username	formData	string	true	"Username"
//	@Param			password	formData	string	true	"Password"
//	@Success		200			{object}	agent.SessionResponse
//	@Failure		400			{object}	httpx.ErrorBody	"invalid_request"
//	@Failure		401			{object}	httpx.ErrorBody	"authentication_failed"
//	@Failure		429			{object}	httpx.ErrorBody	"rate_limit_exceeded"
//	@Router			/v1/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		httpx.WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "expected form body")
		return
	}
	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "malformed form body")
		return
	}

	creds := authsdk.Credentials{
		Username: r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	if creds.Username == "" || creds.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "username and password are required")
		return
	}

	if err := h.Session.Login(ctx, creds); err != nil {
		writeSessionError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("login completed", "mode", authsdk.CredentialSignIn.String())
	httpx.WriteJSON(w, http.StatusOK, SessionResponse{
		Status: statusSignedIn,
		Mode:   authsdk.CredentialSignIn.String(),
	})
}

// SocialLoginHandler serves POST /v1/login/{provider}.
type SocialLoginHandler struct {
	Session Session
}

// ServeHTTP godoc
//
//	@Summary		Hosted sign-in
//	@Description	Runs a hosted sign-in through Apple or Facebook. Blocks until the browser returns or the sign-in times out.
//	@Tags			Session
//	@Produce		json
//	@Security		AgentKey
//	@Param			provider	path		string	true	"Identity provider"	Enums(apple, facebook)
//	@Success		200			{object}	agent.SessionResponse
//	@Failure		401			{object}	httpx.ErrorBody	"authentication_failed"
//	@Failure		404			{object}	httpx.ErrorBody	"unknown_provider"
//	@Router			/v1/login/{provider} [post].
func (h *SocialLoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provider := r.PathValue("provider")

	var err error
	switch provider {
	case "apple":
		err = h.Session.AppleLogin(ctx)
	case "facebook":
		err = h.Session.FacebookLogin(ctx)
	default:
		httpx.WriteError(w, http.StatusNotFound, ErrCodeUnknownProvider, "supported providers: apple, facebook")
		return
	}
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	resp := SessionResponse{Status: statusSignedIn, Mode: authsdk.SocialSignIn.String()}
	if claims, ok := h.Session.CurrentClaims(); ok {
		resp.LoginProvider = string(claims.LoginProvider)
	}

	slogx.FromContext(ctx).Info("login completed", "mode", resp.Mode, "provider", provider)
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// LogoutHandler serves POST /v1/logout.
type LogoutHandler struct {
	Session Session
}

// ServeHTTP godoc
//
//	@Summary		Sign out
//	@Description	Deletes stored credentials, cached tokens and the provider session.
//	@Tags			Session
//	@Produce		json
//	@Security		AgentKey
//	@Success		200	{object}	agent.SessionResponse
//	@Router			/v1/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.DeleteAuthentication(r.Context()); err != nil {
		writeSessionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, SessionResponse{Status: statusSignedOut})
}
