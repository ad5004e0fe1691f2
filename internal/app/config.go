package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	IssuerURL             string        // Required: OpenID Connect issuer
	ClientID              string        // Required: OAuth2 client id
	ClientSecret          string        // Optional: confidential clients only
	RedirectURL           string        // Optional: loopback callback for hosted sign-in (default: http://127.0.0.1:8765/callback)
	Scopes                []string      // Optional: space separated (default: openid)
	IdentityProviderParam string        // Optional: authorize parameter naming the upstream IdP (default: identity_provider)
	VerifyIDToken         bool          // Optional: verify ID token signatures against the issuer JWKS (default: true)
	TokenPrefix           string        // Optional: prefix of tokens handed to callers (default: "Bearer")
	RequirePersonID       bool          // Optional: reject tokens without custom:person_id (default: true)
	TokenRate             float64       // Optional: token endpoint calls per second, 0 for unlimited (default: 0)
	HostedTimeout         time.Duration // Optional: how long a hosted sign-in waits for the browser (default: 5m)
	Profile               string        // Optional: credential store profile (default: default)
	DatabaseFile          string        // Optional: path to SQLite database file (default: ./authsession.db)
	MasterKeyPath         string        // Optional: path to master encryption key file
	AgentKey              string        // Optional: shared key required by the agent's /v1 endpoints
	KeepAliveInterval     time.Duration // Optional: agent token keepalive, 0 disables (default: 5m)
	MetricsEnabled        bool          // Optional: expose /metrics (default: true)
	Env                   string        // Environment (dev, staging, prod) (default: dev)
	LogLevel              string        // Log level (debug, info, warn, error) (default: info)
	LogFormat             string        // Log format (json, text) (default: text)
	Port                  int           // Agent port, bound to loopback (default: 7878)
	ShutdownGracePeriod   time.Duration // Graceful shutdown timeout (default: 10s)
}

// LoadConfig reads the environment. A .env file (or the file named by
// AUTHSESSION_ENV_FILE) is loaded first; variables already set win.
func LoadConfig() (Config, error) {
	envFile := getEnvOrDefault("AUTHSESSION_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Config{
		IssuerURL:             os.Getenv("AUTHSESSION_ISSUER_URL"),
		ClientID:              os.Getenv("AUTHSESSION_CLIENT_ID"),
		ClientSecret:          os.Getenv("AUTHSESSION_CLIENT_SECRET"),
		RedirectURL:           getEnvOrDefault("AUTHSESSION_REDIRECT_URL", "http://127.0.0.1:8765/callback"),
		Scopes:                strings.Fields(getEnvOrDefault("AUTHSESSION_SCOPES", "openid")),
		IdentityProviderParam: getEnvOrDefault("AUTHSESSION_IDP_PARAM", "identity_provider"),
		VerifyIDToken:         getEnvBoolOrDefault("AUTHSESSION_VERIFY_ID_TOKEN", true),
		TokenPrefix:           getEnvOrDefault("AUTHSESSION_TOKEN_PREFIX", "Bearer"),
		RequirePersonID:       getEnvBoolOrDefault("AUTHSESSION_REQUIRE_PERSON_ID", true),
		TokenRate:             getEnvFloatOrDefault("AUTHSESSION_TOKEN_RATE", 0),
		HostedTimeout:         getEnvDurationOrDefault("AUTHSESSION_HOSTED_TIMEOUT", 5*time.Minute),
		Profile:               getEnvOrDefault("AUTHSESSION_PROFILE", "default"),
		DatabaseFile:          getEnvOrDefault("AUTHSESSION_DATABASE_FILE", "authsession.db"),
		MasterKeyPath:         os.Getenv("AUTHSESSION_MASTER_KEY_PATH"),
		AgentKey:              os.Getenv("AUTHSESSION_AGENT_KEY"),
		KeepAliveInterval:     getEnvDurationOrDefault("AUTHSESSION_KEEPALIVE_INTERVAL", 5*time.Minute),
		MetricsEnabled:        getEnvBoolOrDefault("METRICS_ENABLED", true),
		Env:                   getEnvOrDefault("ENV", "dev"),
		LogLevel:              getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:             getEnvOrDefault("LOG_FORMAT", "text"),
		Port:                  getEnvIntOrDefault("PORT", 7878),
		ShutdownGracePeriod:   getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}

	return cfg, cfg.Validate()
}

// Validate reports missing required settings.
func (c Config) Validate() error {
	var errs []error
	if c.IssuerURL == "" {
		errs = append(errs, errors.New("AUTHSESSION_ISSUER_URL is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("AUTHSESSION_CLIENT_ID is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 {
		return f
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds.
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
