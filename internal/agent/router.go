// Package agent serves a Manager's session to local processes over a
// loopback HTTP API.
package agent

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aussiebroadwan/authsession/api/agent" // Swagger docs
	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/httpx"
	"github.com/aussiebroadwan/authsession/pkg/jwtx"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Session is the part of *authsdk.Manager the agent drives.
type Session interface {
	GetToken(ctx context.Context) (string, error)
	Mode(ctx context.Context) authsdk.SessionMode
	CurrentClaims() (jwtx.Claims, bool)
	OnFailedRequest()

	Login(ctx context.Context, creds authsdk.Credentials) error
	AppleLogin(ctx context.Context) error
	FacebookLogin(ctx context.Context) error
	DeleteAuthentication(ctx context.Context) error

	Ready() bool
}

var _ Session = (*authsdk.Manager)(nil)

// Router holds shared dependencies for the agent's handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	session      Session
	db           Pinger
	agentKey     string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// NewRouter builds a Router. An empty agentKey leaves the /v1 endpoints
// open to any local process.
func NewRouter(session Session, db Pinger, agentKey, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		session:      session,
		db:           db,
		agentKey:     agentKey,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerSystem()

	r.Mux.Handle("GET /swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
//
//	@title						authsession agent API
//	@version					0.1.0
//	@description				Loopback API that hands the current session's ID token to local processes.
//
//	@BasePath					/
//
//	@securityDefinitions.apikey	AgentKey
//	@in							header
//	@name						Authorization
//	@description				Shared agent key. Format: "Bearer {key}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	authn := httpx.RequireBearerKey(r.agentKey)

	r.Mux.Handle("GET /v1/token",
		httpx.Chain(&TokenHandler{Session: r.session},
			authn,
			httpx.RateLimit(httpx.TokenLimit, httpx.RemoteIPKey),
		),
	)

	r.Mux.Handle("POST /v1/token/invalidate",
		httpx.Chain(&InvalidateHandler{Session: r.session}, authn),
	)

	// Limited per address and username against password guessing.
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(&LoginHandler{Session: r.session},
			authn,
			httpx.RateLimit(httpx.StrictLimit, httpx.CompositeKey(":", httpx.RemoteIPKey, httpx.FormFieldKey("username"))),
		),
	)

	r.Mux.Handle("POST /v1/login/{provider}",
		httpx.Chain(&SocialLoginHandler{Session: r.session},
			authn,
			httpx.RateLimit(httpx.StrictLimit, httpx.CompositeKey(":", httpx.RemoteIPKey, httpx.PathValueKey("provider"))),
		),
	)

	r.Mux.Handle("POST /v1/logout",
		httpx.Chain(&LogoutHandler{Session: r.session}, authn),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.session, r.db))

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics)
	}
}
