package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/authsession/internal/credstore"
)

type sessionsRepo struct {
	db *sql.DB
}

func (r *sessionsRepo) GetSession(ctx context.Context, key string) (credstore.StoredSession, error) {
	var (
		s       credstore.StoredSession
		updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT profile, token_encrypted, updated_at FROM sessions WHERE profile = ?`, key,
	).Scan(&s.Key, &s.TokenEncrypted, &updated)
	if err != nil {
		return credstore.StoredSession{}, mapNotFound(err)
	}
	s.UpdatedAt = fromMillis(updated)
	return s, nil
}

func (r *sessionsRepo) PutSession(ctx context.Context, s credstore.StoredSession) error {
	const q = `
INSERT INTO sessions (profile, token_encrypted, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (profile) DO UPDATE SET
    token_encrypted = excluded.token_encrypted,
    updated_at      = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, q, s.Key, s.TokenEncrypted, toMillis(s.UpdatedAt))
	return err
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE profile = ?`, key)
	return err
}
