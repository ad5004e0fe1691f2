package agent

// TokenResponse is returned by GET /v1/token.
type TokenResponse struct {
	Token     string `json:"token"`
	Mode      string `json:"mode"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
}

// SessionResponse is returned by the login and logout endpoints.
type SessionResponse struct {
	Status        string `json:"status"`
	Mode          string `json:"mode,omitempty"`
	LoginProvider string `json:"login_provider,omitempty"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	IdentityProvider string `json:"identity_provider"`
	Database         string `json:"database"`
}

const (
	statusSignedIn  = "signed_in"
	statusSignedOut = "signed_out"
)
