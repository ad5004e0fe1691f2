package credstore_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/authsession/internal/credstore"
	"github.com/aussiebroadwan/authsession/internal/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/oidcx"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) credstore.Store {
	t.Helper()

	t.Setenv(cryptox.MasterKeyEnv, "credstore-test-master-key")
	cryptox.ResetMasterKeyForTesting()
	t.Cleanup(cryptox.ResetMasterKeyForTesting)

	s, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "creds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestKeychain(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	kc := credstore.NewKeychain(store, "")

	_, err := kc.Get(ctx)
	require.ErrorIs(t, err, authsdk.ErrNoCredentials)

	creds := authsdk.Credentials{Username: "alice", Password: "correct horse"}
	require.NoError(t, kc.Set(ctx, creds))

	got, err := kc.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, creds, got)

	row, err := store.Credentials().GetCredential(ctx, credstore.DefaultProfile)
	require.NoError(t, err)
	require.NotContains(t, string(row.SecretEncrypted), "correct horse")

	require.NoError(t, kc.Delete(ctx))
	_, err = kc.Get(ctx)
	require.ErrorIs(t, err, authsdk.ErrNoCredentials)
}

func TestKeychain_ProfilesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := setup(t)

	work := credstore.NewKeychain(store, "work")
	home := credstore.NewKeychain(store, "home")

	require.NoError(t, work.Set(ctx, authsdk.Credentials{Username: "a", Password: "1"}))

	_, err := home.Get(ctx)
	require.ErrorIs(t, err, authsdk.ErrNoCredentials)
}

func TestKeychain_TamperedUsernameFailsToOpen(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	kc := credstore.NewKeychain(store, "")

	require.NoError(t, kc.Set(ctx, authsdk.Credentials{Username: "alice", Password: "pw"}))

	row, err := store.Credentials().GetCredential(ctx, credstore.DefaultProfile)
	require.NoError(t, err)
	row.Username = "mallory"
	require.NoError(t, store.Credentials().PutCredential(ctx, row))

	_, err = kc.Get(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, authsdk.ErrNoCredentials)
}

func TestSessionVault(t *testing.T) {
	ctx := context.Background()
	store := setup(t)
	vault := credstore.NewSessionVault(store, "")

	got, err := vault.LoadSession(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	want := &oidcx.Session{
		AccessToken:  "at",
		TokenType:    "Bearer",
		RefreshToken: "rt",
		IDToken:      "a.b.c",
		Expiry:       time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, vault.SaveSession(ctx, want))

	got, err = vault.LoadSession(ctx)
	require.NoError(t, err)
	require.Equal(t, want.RefreshToken, got.RefreshToken)
	require.Equal(t, want.IDToken, got.IDToken)
	require.True(t, want.Expiry.Equal(got.Expiry))

	row, err := store.Sessions().GetSession(ctx, credstore.DefaultProfile)
	require.NoError(t, err)
	require.NotContains(t, string(row.TokenEncrypted), "a.b.c")

	require.NoError(t, vault.ClearSession(ctx))
	got, err = vault.LoadSession(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}
