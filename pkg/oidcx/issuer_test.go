package oidcx_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/oidcx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

/*
 * fakeIssuer is a minimal OpenID Connect provider: discovery, JWKS, an
 * authorize endpoint that redirects straight back, and a token endpoint
 * for the password, authorization_code and refresh_token grants.
 */

const (
	testClientID = "authsession-cli"
	testUsername = "alice"
	testPassword = "correct horse"
	testKeyID    = "k1"
	testAuthCode = "code-123"
)

type fakeIssuer struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	// expiresIn is the access token lifetime in seconds. Below ten seconds
	// oauth2 treats the token as expired and refreshes on every call.
	expiresIn int

	denyAuthorize      atomic.Bool
	revokeRefresh      atomic.Bool
	omitRefreshIDToken atomic.Bool

	issued        atomic.Int32
	refreshCalls  atomic.Int32
	passwordCalls atomic.Int32

	mu        sync.Mutex
	authorize url.Values
	challenge string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	fi := &fakeIssuer{key: key, expiresIn: 3600}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", fi.discovery)
	mux.HandleFunc("GET /jwks", fi.jwks)
	mux.HandleFunc("GET /authorize", fi.authorizeHandler)
	mux.HandleFunc("POST /token", fi.token)

	fi.srv = httptest.NewServer(mux)
	t.Cleanup(fi.srv.Close)
	return fi
}

func (fi *fakeIssuer) URL() string { return fi.srv.URL }

func (fi *fakeIssuer) lastAuthorize() url.Values {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	return fi.authorize
}

func (fi *fakeIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                fi.srv.URL,
		"authorization_endpoint":                fi.srv.URL + "/authorize",
		"token_endpoint":                        fi.srv.URL + "/token",
		"jwks_uri":                              fi.srv.URL + "/jwks",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (fi *fakeIssuer) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := fi.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": testKeyID,
			"use": "sig",
			"alg": "RS256",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (fi *fakeIssuer) authorizeHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fi.mu.Lock()
	fi.authorize = q
	fi.challenge = q.Get("code_challenge")
	fi.mu.Unlock()

	back, err := url.Parse(q.Get("redirect_uri"))
	if err != nil {
		http.Error(w, "bad redirect_uri", http.StatusBadRequest)
		return
	}
	params := url.Values{"state": {q.Get("state")}}
	if fi.denyAuthorize.Load() {
		params.Set("error", "access_denied")
	} else {
		params.Set("code", testAuthCode)
	}
	back.RawQuery = params.Encode()
	http.Redirect(w, r, back.String(), http.StatusFound)
}

func (fi *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "password":
		fi.passwordCalls.Add(1)
		if r.PostForm.Get("username") != testUsername || r.PostForm.Get("password") != testPassword {
			oauthError(w, "invalid_grant")
			return
		}
		fi.issue(w, true)

	case "authorization_code":
		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		fi.mu.Lock()
		challenge := fi.challenge
		fi.mu.Unlock()
		if r.PostForm.Get("code") != testAuthCode || base64.RawURLEncoding.EncodeToString(sum[:]) != challenge {
			oauthError(w, "invalid_grant")
			return
		}
		fi.issue(w, true)

	case "refresh_token":
		fi.refreshCalls.Add(1)
		if fi.revokeRefresh.Load() {
			oauthError(w, "invalid_grant")
			return
		}
		fi.issue(w, !fi.omitRefreshIDToken.Load())

	default:
		oauthError(w, "unsupported_grant_type")
	}
}

func (fi *fakeIssuer) issue(w http.ResponseWriter, withIDToken bool) {
	n := fi.issued.Add(1)
	body := map[string]any{
		"access_token":  fmt.Sprintf("at-%d", n),
		"refresh_token": fmt.Sprintf("rt-%d", n),
		"token_type":    "Bearer",
		"expires_in":    fi.expiresIn,
	}
	if withIDToken {
		body["id_token"] = fi.idToken(n)
	}
	writeJSON(w, http.StatusOK, body)
}

func (fi *fakeIssuer) idToken(n int32) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":              fi.srv.URL,
		"aud":              testClientID,
		"sub":              "user-1",
		"iat":              time.Now().Unix(),
		"exp":              time.Now().Add(time.Hour).Unix(),
		"custom:person_id": "p-1",
		"jti":              fmt.Sprintf("id-%d", n),
	})
	tok.Header["kid"] = testKeyID
	signed, err := tok.SignedString(fi.key)
	if err != nil {
		panic(err)
	}
	return signed
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func oauthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}

// ============================================================================
// Client helpers
// ============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// freeRedirectURL returns a loopback callback URL on a currently free port.
func freeRedirectURL(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "http://" + addr + "/callback"
}

// browserPresenter follows the authorize URL like a browser would.
func browserPresenter() oidcx.Presenter {
	return oidcx.PresenterFunc(func(ctx context.Context, authURL string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Body.Close()
	})
}

type memSessions struct {
	mu      sync.Mutex
	session *oidcx.Session
	saves   int
	clears  int
}

func (m *memSessions) LoadSession(context.Context) (*oidcx.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *memSessions) SaveSession(_ context.Context, s *oidcx.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.session = &cp
	m.saves++
	return nil
}

func (m *memSessions) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.clears++
	return nil
}

func (m *memSessions) current() *oidcx.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func newClient(t *testing.T, fi *fakeIssuer, mutate func(*oidcx.Config), opts ...oidcx.Option) *oidcx.Client {
	t.Helper()

	cfg := oidcx.Config{
		IssuerURL:   fi.URL(),
		ClientID:    testClientID,
		RedirectURL: freeRedirectURL(t),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	opts = append([]oidcx.Option{oidcx.WithLogger(quietLogger()), oidcx.WithPresenter(browserPresenter())}, opts...)
	c, err := oidcx.New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	return c
}
