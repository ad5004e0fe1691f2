package agent

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/httpx"
)

// Pinger is satisfied by credstore.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LivezHandler godoc
//
//	@Summary	Liveness probe
//	@Tags		Health
//	@Produce	json
//	@Success	200	{object}	agent.HealthResponse
//	@Router		/livez [get].
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Ready once the identity provider is initialised and the credential store answers.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	agent.HealthResponse
//	@Failure		503	{object}	agent.HealthResponse
//	@Router			/readyz [get].
func ReadyzHandler(startTime time.Time, version string, session Session, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{IdentityProvider: "ok", Database: "ok"}
		status, code := "ok", http.StatusOK

		if !session.Ready() {
			checks.IdentityProvider = "error: not initialized"
			status, code = "degraded", http.StatusServiceUnavailable
		}
		if err := db.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
		}

		httpx.WriteJSON(w, code, HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
