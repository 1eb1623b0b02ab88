package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rteixeira/payrail/internal/domain"
)

// auditRepository implements domain.AuditRepository
type auditRepository struct {
	db *DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB) domain.AuditRepository {
	return &auditRepository{db: db}
}

// Record appends one audit entry. The extra payload is stored as JSONB.
func (r *auditRepository) Record(ctx context.Context, rec *domain.AuditRecord) error {
	extra, err := json.Marshal(rec.Extra)
	if err != nil {
		return fmt.Errorf("failed to encode audit extra payload: %w", err)
	}

	query := `
		INSERT INTO audit_events (event_uuid, user_id, type, successful, extra, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	if _, err := r.db.ExecContext(ctx, query, rec.EventUUID, rec.UserID, rec.Type, rec.Successful, extra); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
