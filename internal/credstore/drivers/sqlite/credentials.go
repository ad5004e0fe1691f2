package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/authsession/internal/credstore"
)

type credentialsRepo struct {
	db *sql.DB
}

func (r *credentialsRepo) GetCredential(ctx context.Context, key string) (credstore.StoredCredential, error) {
	const q = `
SELECT profile, username, secret_encrypted, created_at, updated_at
FROM credentials
WHERE profile = ?`

	var (
		c                credstore.StoredCredential
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, q, key).Scan(&c.Key, &c.Username, &c.SecretEncrypted, &created, &updated)
	if err != nil {
		return credstore.StoredCredential{}, mapNotFound(err)
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func (r *credentialsRepo) PutCredential(ctx context.Context, c credstore.StoredCredential) error {
	const q = `
INSERT INTO credentials (profile, username, secret_encrypted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (profile) DO UPDATE SET
    username         = excluded.username,
    secret_encrypted = excluded.secret_encrypted,
    updated_at       = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, q,
		c.Key,
		c.Username,
		c.SecretEncrypted,
		toMillis(c.CreatedAt),
		toMillis(c.UpdatedAt),
	)
	return err
}

func (r *credentialsRepo) DeleteCredential(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE profile = ?`, key)
	return err
}
