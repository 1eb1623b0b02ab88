package postgres

import (
	"context"
	"fmt"

	"github.com/rteixeira/payrail/internal/domain"
)

// markerRepository implements domain.MarkerStore. It durably records which
// users require the alternate authentication secret.
type markerRepository struct {
	db *DB
}

// NewMarkerRepository creates a new marker store
func NewMarkerRepository(db *DB) domain.MarkerStore {
	return &markerRepository{db: db}
}

// IsMarked reports whether the user has been promoted to the alternate secret
func (r *markerRepository) IsMarked(ctx context.Context, userID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM alternate_secret_markers WHERE user_id = $1)`

	var marked bool
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&marked); err != nil {
		return false, fmt.Errorf("failed to check alternate secret marker: %w", err)
	}
	return marked, nil
}

// Mark records the promotion; marking twice is a no-op
func (r *markerRepository) Mark(ctx context.Context, userID string) error {
	query := `
		INSERT INTO alternate_secret_markers (user_id, created_at)
		VALUES ($1, NOW())
		ON CONFLICT (user_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to record alternate secret marker: %w", err)
	}
	return nil
}
