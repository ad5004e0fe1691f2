package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket: RequestsPerWindow refill per Window, up
// to Burst at once.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

var (
	// StrictLimit guards credential endpoints against guessing.
	// Override with AUTHSESSION_RATELIMIT_STRICT_{REQUESTS,WINDOW_SEC,BURST}.
	StrictLimit = RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5}

	// TokenLimit bounds token reads by local clients.
	// Override with AUTHSESSION_RATELIMIT_TOKEN_{REQUESTS,WINDOW_SEC,BURST}.
	TokenLimit = RateLimitConfig{RequestsPerWindow: 600, Window: time.Minute, Burst: 60}
)

func init() {
	StrictLimit = RateLimitFromEnv("STRICT", StrictLimit)
	TokenLimit = RateLimitFromEnv("TOKEN", TokenLimit)
}

// RateLimitFromEnv overrides def from AUTHSESSION_RATELIMIT_<name>_* variables.
// Invalid or non-positive values are ignored.
func RateLimitFromEnv(name string, def RateLimitConfig) RateLimitConfig {
	cfg := def
	prefix := "AUTHSESSION_RATELIMIT_" + name + "_"

	if n, ok := positiveEnvInt(prefix + "REQUESTS"); ok {
		cfg.RequestsPerWindow = n
	}
	if n, ok := positiveEnvInt(prefix + "WINDOW_SEC"); ok {
		cfg.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnvInt(prefix + "BURST"); ok {
		cfg.Burst = n
	}
	return cfg
}

func positiveEnvInt(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Limit converts the config into a rate.Limit.
func (c RateLimitConfig) Limit() rate.Limit {
	if c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// KeyExtractor groups requests for rate limiting. An empty key means the
// request is not limited.
type KeyExtractor func(*http.Request) string

// RemoteIPKey keys on the connection's remote address. Forwarding headers are
// not trusted, the agent is never behind a proxy.
func RemoteIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormFieldKey keys on a form value (query or urlencoded body).
func FormFieldKey(field string) KeyExtractor {
	return func(r *http.Request) string {
		if err := r.ParseForm(); err != nil {
			return ""
		}
		return r.FormValue(field)
	}
}

// PathValueKey keys on a ServeMux path wildcard.
func PathValueKey(name string) KeyExtractor {
	return func(r *http.Request) string { return r.PathValue(name) }
}

// CompositeKey joins the non-empty keys of extractors with sep.
func CompositeKey(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(extractors))
		for _, extract := range extractors {
			if k := extract(r); k != "" {
				parts = append(parts, k)
			}
		}
		return strings.Join(parts, sep)
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per key. Entries idle for longer than a
// window are dropped on the next sweep.
type limiterSet struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) > s.cfg.Window {
		for k, e := range s.entries {
			if now.Sub(e.lastSeen) > s.cfg.Window {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(s.cfg.Limit(), s.cfg.Burst)}
		s.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// RateLimit limits requests per key with cfg and answers 429 with a
// Retry-After header once a key's bucket is empty.
func RateLimit(cfg RateLimitConfig, key KeyExtractor) Middleware {
	set := &limiterSet{
		cfg:       cfg,
		entries:   make(map[string]*limiterEntry),
		lastSweep: time.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			res := set.get(k, now).ReserveN(now, 1)
			if delay := res.DelayFrom(now); !res.OK() || delay > 0 {
				res.CancelAt(now)

				retryAfter := max(int(delay.Round(time.Second).Seconds()), 1)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerWindow))
				w.Header().Set("X-RateLimit-Window", cfg.Window.String())

				slogx.FromContext(r.Context()).Warn("rate limit exceeded",
					"path", r.URL.Path,
					"retry_after", retryAfter,
				)
				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
