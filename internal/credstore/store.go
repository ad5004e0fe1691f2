// Package credstore persists the direct sign-in credentials and the identity
// provider session, both sealed with the cryptox master key.
package credstore

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("credstore: not found")

// DefaultProfile is the key used when only one account is stored.
const DefaultProfile = "default"

// StoredCredential is a username with its sealed password.
type StoredCredential struct {
	Key             string
	Username        string
	SecretEncrypted []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StoredSession is a sealed identity provider session.
type StoredSession struct {
	Key            string
	TokenEncrypted []byte
	UpdatedAt      time.Time
}

// Store is the root data access interface. Drivers implement it and expose
// one sub-repository per table.
type Store interface {
	Credentials() Credentials
	Sessions() Sessions

	ApplyMigrations() error

	// Close releases the underlying database handle.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

type Credentials interface {
	// GetCredential returns ErrNotFound when key has no credential.
	GetCredential(ctx context.Context, key string) (StoredCredential, error)

	// PutCredential inserts or replaces the credential for c.Key.
	PutCredential(ctx context.Context, c StoredCredential) error

	// DeleteCredential is a no-op when nothing is stored.
	DeleteCredential(ctx context.Context, key string) error
}

type Sessions interface {
	// GetSession returns ErrNotFound when key has no session.
	GetSession(ctx context.Context, key string) (StoredSession, error)
	PutSession(ctx context.Context, s StoredSession) error
	DeleteSession(ctx context.Context, key string) error
}
