package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/authsdk"
	"github.com/aussiebroadwan/authsession/pkg/cryptox"
)

// Keychain is an authsdk.CredentialStore over a Store. Passwords are sealed
// with the master key; the profile and username are bound in as additional
// data so a row cannot be moved to another account.
type Keychain struct {
	store   Store
	profile string
	now     func() time.Time
}

var _ authsdk.CredentialStore = (*Keychain)(nil)

// NewKeychain stores credentials under profile (DefaultProfile when empty).
func NewKeychain(s Store, profile string) *Keychain {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Keychain{store: s, profile: profile, now: time.Now}
}

func credentialAAD(profile, username string) []byte {
	return []byte("credential:" + profile + ":" + username)
}

// Get returns authsdk.ErrNoCredentials when nothing is stored.
func (k *Keychain) Get(ctx context.Context) (authsdk.Credentials, error) {
	row, err := k.store.Credentials().GetCredential(ctx, k.profile)
	if errors.Is(err, ErrNotFound) {
		return authsdk.Credentials{}, authsdk.ErrNoCredentials
	}
	if err != nil {
		return authsdk.Credentials{}, fmt.Errorf("load credential: %w", err)
	}

	password, err := cryptox.DecryptSecret(row.SecretEncrypted, credentialAAD(k.profile, row.Username))
	if err != nil {
		return authsdk.Credentials{}, fmt.Errorf("open credential: %w", err)
	}
	return authsdk.Credentials{Username: row.Username, Password: string(password)}, nil
}

func (k *Keychain) Set(ctx context.Context, c authsdk.Credentials) error {
	sealed, err := cryptox.EncryptSecret([]byte(c.Password), credentialAAD(k.profile, c.Username))
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	now := k.now().UTC()
	return k.store.Credentials().PutCredential(ctx, StoredCredential{
		Key:             k.profile,
		Username:        c.Username,
		SecretEncrypted: sealed,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

func (k *Keychain) Delete(ctx context.Context) error {
	return k.store.Credentials().DeleteCredential(ctx, k.profile)
}
