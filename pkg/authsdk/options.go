package authsdk

import (
	"log/slog"
	"time"
)

// DefaultTokenPrefix is prepended to the id token returned by GetToken. It
// carries no trailing space, existing consumers expect the two concatenated.
const DefaultTokenPrefix = "Bearer"

// DefaultHostedScopes are requested by hosted (social) sign-in.
var DefaultHostedScopes = []string{"openid"}

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	recorder        Recorder
	retry           RetryPolicy
	tokenPrefix     string
	requirePersonID bool
	hostedScopes    []string
	now             func() time.Time
}

func defaultOptions() options {
	return options{
		logger:          slog.Default(),
		recorder:        nopRecorder{},
		retry:           DefaultRetryPolicy,
		tokenPrefix:     DefaultTokenPrefix,
		requirePersonID: true,
		hostedScopes:    DefaultHostedScopes,
		now:             time.Now,
	}
}

// WithLogger sets the logger. Tokens and passwords are never logged.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithTokenPrefix overrides DefaultTokenPrefix, e.g. "Bearer " for a
// standard Authorization header value.
func WithTokenPrefix(prefix string) Option {
	return func(o *options) { o.tokenPrefix = prefix }
}

// WithPersonIDRequired controls whether a token without a
// "custom:person_id" claim is rejected. Defaults to true.
func WithPersonIDRequired(required bool) Option {
	return func(o *options) { o.requirePersonID = required }
}

// WithHostedScopes overrides the scopes requested by hosted sign-in.
func WithHostedScopes(scopes ...string) Option {
	return func(o *options) {
		if len(scopes) > 0 {
			o.hostedScopes = scopes
		}
	}
}

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
