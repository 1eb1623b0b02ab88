package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rteixeira/payrail/internal/domain"
)

// sessionRepository implements domain.SharedSessionStore, sharing processor
// session tokens across process instances for high-traffic identities.
type sessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new shared session store
func NewSessionRepository(db *DB) domain.SharedSessionStore {
	return &sessionRepository{db: db}
}

// Get returns the stored token for the identity, or an empty string when no
// session is stored
func (r *sessionRepository) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT auth_token FROM shared_sessions WHERE identity_key = $1`

	var token string
	err := r.db.QueryRowContext(ctx, query, key).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read shared session: %w", err)
	}
	return token, nil
}

// Put upserts the identity's token; last writer wins
func (r *sessionRepository) Put(ctx context.Context, key, token string) error {
	query := `
		INSERT INTO shared_sessions (identity_key, auth_token, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (identity_key) DO UPDATE SET auth_token = EXCLUDED.auth_token, updated_at = NOW()
	`

	if _, err := r.db.ExecContext(ctx, query, key, token); err != nil {
		return fmt.Errorf("failed to store shared session: %w", err)
	}
	return nil
}

// Delete drops the identity's stored session
func (r *sessionRepository) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM shared_sessions WHERE identity_key = $1`

	if _, err := r.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete shared session: %w", err)
	}
	return nil
}
