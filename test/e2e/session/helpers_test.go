//go:build e2e

package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/internal/credstore"
	"github.com/aussiebroadwan/authsession/internal/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/oidcx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Keycloak-backed end-to-end helpers. One realm with a public client that
 * allows the password grant, one user, and a hardcoded custom:person_id
 * claim so tokens pass the person id check.
 */

const (
	keycloakImage = "quay.io/keycloak/keycloak:26.0"
	realmName     = "authsession"
	clientID      = "authsession-cli"
	testUsername  = "alice"
	testPassword  = "Alice123!"
	adminUser     = "admin"
	adminPassword = "admin"
)

// Access tokens live five seconds, under oauth2's ten second expiry margin,
// so every GetTokens goes to the token endpoint.
const realmJSON = `{
  "realm": "authsession",
  "enabled": true,
  "accessTokenLifespan": 5,
  "clients": [{
    "clientId": "authsession-cli",
    "enabled": true,
    "publicClient": true,
    "directAccessGrantsEnabled": true,
    "standardFlowEnabled": true,
    "redirectUris": ["http://127.0.0.1/*"],
    "protocolMappers": [{
      "name": "person id",
      "protocol": "openid-connect",
      "protocolMapper": "oidc-hardcoded-claim-mapper",
      "config": {
        "claim.name": "custom:person_id",
        "claim.value": "p-e2e",
        "jsonType.label": "String",
        "id.token.claim": "true",
        "access.token.claim": "true"
      }
    }]
  }],
  "users": [{
    "username": "alice",
    "enabled": true,
    "email": "alice@example.com",
    "emailVerified": true,
    "firstName": "Alice",
    "lastName": "Liddell",
    "credentials": [{"type": "password", "value": "Alice123!", "temporary": false}]
  }]
}`

// setupKeycloak starts Keycloak with the test realm and returns its base URL.
func setupKeycloak(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        keycloakImage,
		ExposedPorts: []string{"8080/tcp"},
		Cmd:          []string{"start-dev", "--import-realm"},
		Env: map[string]string{
			"KC_BOOTSTRAP_ADMIN_USERNAME": adminUser,
			"KC_BOOTSTRAP_ADMIN_PASSWORD": adminPassword,
		},
		Files: []testcontainers.ContainerFile{{
			Reader:            strings.NewReader(realmJSON),
			ContainerFilePath: "/opt/keycloak/data/import/realm.json",
			FileMode:          0o644,
		}},
		WaitingFor: wait.ForHTTP("/realms/" + realmName + "/.well-known/openid-configuration").
			WithPort("8080/tcp").
			WithStartupTimeout(3 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	return fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
}

type harness struct {
	baseURL  string
	store    credstore.Store
	provider *oidcx.Client
	manager  *authsdk.Manager
	logouts  chan struct{}
}

// newHarness wires a Manager to Keycloak the way the application does.
func newHarness(t *testing.T, baseURL string) *harness {
	t.Helper()

	t.Setenv(cryptox.MasterKeyEnv, "e2e-master-key")
	cryptox.ResetMasterKeyForTesting()
	t.Cleanup(cryptox.ResetMasterKeyForTesting)

	store, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations())
	t.Cleanup(func() { _ = store.Close() })

	return newHarnessOnStore(t, baseURL, store)
}

// newHarnessOnStore is newHarness over an existing database, as a restarted
// process would see it.
func newHarnessOnStore(t *testing.T, baseURL string, store credstore.Store) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	provider, err := oidcx.New(oidcx.Config{
		IssuerURL:     baseURL + "/realms/" + realmName,
		ClientID:      clientID,
		VerifyIDToken: true,
	},
		oidcx.WithLogger(logger),
		oidcx.WithSessionStore(credstore.NewSessionVault(store, "")),
	)
	require.NoError(t, err)

	h := &harness{
		baseURL:  baseURL,
		store:    store,
		provider: provider,
		logouts:  make(chan struct{}, 4),
	}
	h.manager = authsdk.NewManager(provider, credstore.NewKeychain(store, ""),
		authsdk.ListenerFunc(func() { h.logouts <- struct{}{} }),
		authsdk.WithLogger(logger),
	)
	t.Cleanup(func() { _ = h.manager.Close() })

	require.NoError(t, h.manager.Start(t.Context()))
	return h
}

// ============================================================================
// Keycloak admin API
// ============================================================================

func adminToken(t *testing.T, baseURL string) string {
	t.Helper()

	resp, err := http.PostForm(baseURL+"/realms/master/protocol/openid-connect/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {"admin-cli"},
		"username":   {adminUser},
		"password":   {adminPassword},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.AccessToken
}

func adminRequest(t *testing.T, baseURL, method, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(t.Context(), method, baseURL+"/admin/realms/"+realmName+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, baseURL))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// logoutAllSessions ends every Keycloak session of the test user, which
// invalidates the refresh tokens the client holds.
func logoutAllSessions(t *testing.T, baseURL string) {
	t.Helper()

	resp := adminRequest(t, baseURL, http.MethodGet, "/users?exact=true&username="+testUsername)
	var users []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&users))
	_ = resp.Body.Close()
	require.Len(t, users, 1)

	resp = adminRequest(t, baseURL, http.MethodPost, "/users/"+users[0].ID+"/logout")
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
