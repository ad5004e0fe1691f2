package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aussiebroadwan/authsession/internal/agent"
	"github.com/aussiebroadwan/authsession/internal/credstore"
	"github.com/aussiebroadwan/authsession/internal/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/metrics"
	"github.com/aussiebroadwan/authsession/pkg/oidcx"
	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// BuildVersion is set at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application wires the credential store, identity provider and Manager,
// and optionally the local agent in front of them.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       credstore.Store
	provider *oidcx.Client
	manager  *authsdk.Manager

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// Agent only
	keepAlive *agent.KeepAlive
	server    *http.Server
	router    *agent.Router
}

// New builds an Application. Nothing talks to the issuer until Start.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authsession",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.MasterKeyPath != "" {
		cryptox.SetMasterKeyPath(cfg.MasterKeyPath)
	}
	if ephemeral, err := cryptox.MasterKeyIsEphemeral(); err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	} else if ephemeral {
		app.logger.Warn("no master key configured, stored credentials will not survive a restart",
			"env", cryptox.MasterKeyEnv)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSession(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Manager returns the session manager.
func (app *Application) Manager() *authsdk.Manager { return app.manager }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Start initialises the identity provider.
func (app *Application) Start(ctx context.Context) error {
	return app.manager.Start(ctx)
}

// Close releases the Manager and the database.
func (app *Application) Close() error {
	_ = app.manager.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// initDatabase opens the credential store and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Debug("credential store ready", "file", app.cfg.DatabaseFile)
	return nil
}

// initSession builds the identity provider and the Manager.
func (app *Application) initSession() error {
	tokenRate := rate.Limit(app.cfg.TokenRate)
	if app.cfg.TokenRate == 0 {
		tokenRate = rate.Inf
	}

	provider, err := oidcx.New(oidcx.Config{
		IssuerURL:             app.cfg.IssuerURL,
		ClientID:              app.cfg.ClientID,
		ClientSecret:          app.cfg.ClientSecret,
		RedirectURL:           app.cfg.RedirectURL,
		Scopes:                app.cfg.Scopes,
		IdentityProviderParam: app.cfg.IdentityProviderParam,
		VerifyIDToken:         app.cfg.VerifyIDToken,
		TokenRate:             tokenRate,
		TokenBurst:            1,
		HostedTimeout:         app.cfg.HostedTimeout,
	},
		oidcx.WithLogger(app.logger.With("component", "oidcx")),
		oidcx.WithSessionStore(credstore.NewSessionVault(app.db, app.cfg.Profile)),
	)
	if err != nil {
		return err
	}
	app.provider = provider

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(app.cfg.MetricsEnabled, app.registry)

	listener := authsdk.ListenerFunc(func() {
		app.logger.Warn("session ended and could not be recovered, sign in again")
	})

	app.manager = authsdk.NewManager(
		provider,
		credstore.NewKeychain(app.db, app.cfg.Profile),
		listener,
		authsdk.WithLogger(app.logger),
		authsdk.WithRecorder(app.metrics),
		authsdk.WithTokenPrefix(app.cfg.TokenPrefix),
		authsdk.WithPersonIDRequired(app.cfg.RequirePersonID),
		authsdk.WithHostedScopes(app.cfg.Scopes...),
	)
	return nil
}

// ============================================================================
// Agent
// ============================================================================

// initAgent builds the loopback HTTP server.
func (app *Application) initAgent() {
	router := agent.NewRouter(app.manager, app.db, app.cfg.AgentKey, BuildVersion, app.logger)
	if app.cfg.MetricsEnabled {
		router.Metrics = promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})
	}
	router.ApplyRoutes()
	app.router = router

	app.server = &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", strconv.Itoa(app.cfg.Port)),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}

	if app.cfg.KeepAliveInterval > 0 {
		app.keepAlive = agent.NewKeepAlive(app.manager, app.logger.With("component", "keepalive"), app.cfg.KeepAliveInterval)
	}
}

// RunAgent serves the agent until SIGINT or SIGTERM, then shuts down
// gracefully. The identity provider is initialised in the background so
// /livez answers straight away.
func (app *Application) RunAgent() error {
	app.initAgent()
	if app.cfg.AgentKey == "" {
		app.logger.Warn("AUTHSESSION_AGENT_KEY not set, any local process can read tokens")
	}

	startCtx, cancelStart := context.WithCancel(context.Background())
	defer cancelStart()
	go func() {
		if err := app.Start(startCtx); err != nil && !errors.Is(err, context.Canceled) {
			app.logger.Error("identity provider initialization failed", "error", err)
		}
	}()

	if app.keepAlive != nil {
		app.keepAlive.Start()
	}

	app.logger.Info("agent starting", "addr", app.server.Addr, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.stopWorkers()
			_ = app.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig.String())
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the agent and releases resources.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down agent...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.stopWorkers()

	if err := app.Close(); err != nil {
		return err
	}

	app.logger.Info("agent stopped")
	return nil
}

func (app *Application) stopWorkers() {
	if app.keepAlive != nil {
		app.keepAlive.Stop()
	}
}
