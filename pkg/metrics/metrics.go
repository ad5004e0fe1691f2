// Package metrics exposes Prometheus counters for token session activity.
package metrics

import (
	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements authsdk.Recorder. A disabled instance records nothing.
type Metrics struct {
	enabled bool

	tokenRequestsTotal   *prometheus.CounterVec
	providerFetchesTotal *prometheus.CounterVec
	cacheHitsTotal       prometheus.Counter
	reloginsTotal        *prometheus.CounterVec
	logoutsTotal         prometheus.Counter
}

var _ authsdk.Recorder = (*Metrics)(nil)

// New creates the counters and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer. If enabled is false nothing is registered.
func New(enabled bool, reg prometheus.Registerer) *Metrics {
	m := &Metrics{enabled: enabled}
	if !enabled {
		return m
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m.tokenRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authsession_token_requests_total",
		Help: "Token requests by session mode and outcome",
	}, []string{"mode", "outcome"})

	m.providerFetchesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authsession_provider_fetches_total",
		Help: "Token pair fetches from the identity provider",
	}, []string{"outcome"})

	m.cacheHitsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "authsession_cache_hits_total",
		Help: "Social-mode token requests served from the cache",
	})

	m.reloginsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "authsession_silent_relogins_total",
		Help: "Silent re-logins after session invalidation",
	}, []string{"outcome"})

	m.logoutsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "authsession_logouts_total",
		Help: "Unrecoverable session ends reported to the listener",
	})

	return m
}

// TokenRequest records one GetToken call.
func (m *Metrics) TokenRequest(mode authsdk.SessionMode, outcome string) {
	if !m.enabled {
		return
	}
	m.tokenRequestsTotal.WithLabelValues(mode.String(), outcome).Inc()
}

// ProviderFetch records one completed GetTokens exchange.
func (m *Metrics) ProviderFetch(outcome string) {
	if !m.enabled {
		return
	}
	m.providerFetchesTotal.WithLabelValues(outcome).Inc()
}

// CacheHit records a token served from the cache.
func (m *Metrics) CacheHit() {
	if !m.enabled {
		return
	}
	m.cacheHitsTotal.Inc()
}

// Relogin records a silent re-login attempt.
func (m *Metrics) Relogin(outcome string) {
	if !m.enabled {
		return
	}
	m.reloginsTotal.WithLabelValues(outcome).Inc()
}

// Logout records a logout notification.
func (m *Metrics) Logout() {
	if !m.enabled {
		return
	}
	m.logoutsTotal.Inc()
}
