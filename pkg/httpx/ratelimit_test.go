package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2}
	h := httpx.RateLimit(cfg, httpx.RemoteIPKey)(okHandler())

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/token", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do("127.0.0.1:1000").Code)
	require.Equal(t, http.StatusOK, do("127.0.0.1:1001").Code)

	rec := do("127.0.0.1:1002")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	require.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	// Other addresses have their own bucket.
	require.Equal(t, http.StatusOK, do("10.0.0.1:1000").Code)
}

func TestRateLimit_EmptyKeySkipsLimit(t *testing.T) {
	t.Parallel()

	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}
	h := httpx.RateLimit(cfg, httpx.FormFieldKey("username"))(okHandler())

	for range 3 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/login", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestCompositeKey(t *testing.T) {
	t.Parallel()

	form := url.Values{"username": {"alice"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:5555"

	key := httpx.CompositeKey(":", httpx.RemoteIPKey, httpx.FormFieldKey("username"), httpx.FormFieldKey("missing"))
	require.Equal(t, "127.0.0.1:alice", key(req))
}

func TestRateLimitFromEnv(t *testing.T) {
	t.Setenv("AUTHSESSION_RATELIMIT_TEST_REQUESTS", "7")
	t.Setenv("AUTHSESSION_RATELIMIT_TEST_WINDOW_SEC", "30")
	t.Setenv("AUTHSESSION_RATELIMIT_TEST_BURST", "-1")

	def := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 3}
	got := httpx.RateLimitFromEnv("TEST", def)

	require.Equal(t, 7, got.RequestsPerWindow)
	require.Equal(t, 30*time.Second, got.Window)
	require.Equal(t, 3, got.Burst)
}
