package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/authsession/pkg/cryptox"
	"github.com/aussiebroadwan/authsession/pkg/oidcx"
)

// SessionVault is an oidcx.SessionStore over a Store. The session is
// JSON encoded and sealed with the master key.
type SessionVault struct {
	store   Store
	profile string
}

var _ oidcx.SessionStore = (*SessionVault)(nil)

func NewSessionVault(s Store, profile string) *SessionVault {
	if profile == "" {
		profile = DefaultProfile
	}
	return &SessionVault{store: s, profile: profile}
}

func (v *SessionVault) aad() []byte { return []byte("session:" + v.profile) }

func (v *SessionVault) LoadSession(ctx context.Context) (*oidcx.Session, error) {
	row, err := v.store.Sessions().GetSession(ctx, v.profile)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	raw, err := cryptox.DecryptSecret(row.TokenEncrypted, v.aad())
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	var s oidcx.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (v *SessionVault) SaveSession(ctx context.Context, s *oidcx.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	sealed, err := cryptox.EncryptSecret(raw, v.aad())
	if err != nil {
		return fmt.Errorf("seal session: %w", err)
	}
	return v.store.Sessions().PutSession(ctx, StoredSession{
		Key:            v.profile,
		TokenEncrypted: sealed,
		UpdatedAt:      time.Now().UTC(),
	})
}

func (v *SessionVault) ClearSession(ctx context.Context) error {
	return v.store.Sessions().DeleteSession(ctx, v.profile)
}
