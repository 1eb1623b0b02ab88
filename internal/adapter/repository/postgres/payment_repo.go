package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rteixeira/payrail/internal/domain"
)

// paymentRepository implements domain.PaymentRepository
type paymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *DB) domain.PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, user_id, type, amount, status, external_id, external_processor, reference_id, corresponding_id, created_at, deleted_at`

// GetByID retrieves a payment record, excluding soft-deleted rows
func (r *paymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND deleted_at IS NULL`

	rec, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return rec, nil
}

// ClaimForSubmission performs the compare-and-set claim: the update only
// applies while no reference id is set, so exactly one of two concurrent
// claims succeeds.
func (r *paymentRepository) ClaimForSubmission(ctx context.Context, id uuid.UUID, processor domain.Processor, referenceID string) error {
	query := `
		UPDATE payments
		SET external_processor = $2, reference_id = $3
		WHERE id = $1 AND reference_id IS NULL AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id, string(processor), referenceID)
	if err != nil {
		return fmt.Errorf("failed to claim payment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read claim result: %w", err)
	}
	if affected == 0 {
		return domain.ErrTransactionConflict
	}
	return nil
}

// SetOutcome persists the result of a submission. The not-terminal guard
// keeps a concurrently reconciled record from being overwritten
func (r *paymentRepository) SetOutcome(ctx context.Context, id uuid.UUID, result domain.TransactionResult) (bool, error) {
	query := `
		UPDATE payments
		SET external_id = $2, external_processor = $3, status = $4
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND status NOT IN ('COMPLETED', 'CANCELED', 'RETURNED', 'FAILED')
	`

	res, err := r.db.ExecContext(ctx, query, id, result.ExternalID, string(result.Processor), string(result.Status))
	if err != nil {
		return false, fmt.Errorf("failed to persist payment outcome: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read outcome result: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatusIfNotTerminal enforces the sticky-terminal invariant in SQL so
// concurrent reconciliation passes cannot replace one terminal status with
// another
func (r *paymentRepository) UpdateStatusIfNotTerminal(ctx context.Context, id uuid.UUID, status domain.CanonicalStatus) (bool, error) {
	query := `
		UPDATE payments
		SET status = $2
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND status NOT IN ('COMPLETED', 'CANCELED', 'RETURNED', 'FAILED')
	`

	result, err := r.db.ExecContext(ctx, query, id, string(status))
	if err != nil {
		return false, fmt.Errorf("failed to update payment status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read status update result: %w", err)
	}
	return affected > 0, nil
}

// SoftDelete marks the record deleted without destroying it
func (r *paymentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE payments SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to soft-delete payment: %w", err)
	}
	return nil
}

// ListByCorresponding returns payments linked to a parent transfer created at
// or after the given time
func (r *paymentRepository) ListByCorresponding(ctx context.Context, correspondingID uuid.UUID, since time.Time) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE corresponding_id = $1 AND created_at >= $2 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, correspondingID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments by corresponding id: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

// ListUnsettled returns non-terminal payments for the reconciliation sweep,
// oldest first
func (r *paymentRepository) ListUnsettled(ctx context.Context, limit int) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status NOT IN ('COMPLETED', 'CANCELED', 'RETURNED', 'FAILED')
		  AND reference_id IS NOT NULL
		  AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*domain.PaymentRecord, error) {
	var rec domain.PaymentRecord
	var externalID, externalProcessor, referenceID sql.NullString
	var correspondingID uuid.NullUUID
	var deletedAt sql.NullTime

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Type,
		&rec.Amount,
		&rec.Status,
		&externalID,
		&externalProcessor,
		&referenceID,
		&correspondingID,
		&rec.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ExternalID = externalID.String
	rec.ExternalProcessor = domain.Processor(externalProcessor.String)
	rec.ReferenceID = referenceID.String
	if correspondingID.Valid {
		id := correspondingID.UUID
		rec.CorrespondingID = &id
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	return &rec, nil
}

func collectPayments(rows *sql.Rows) ([]*domain.PaymentRecord, error) {
	records := make([]*domain.PaymentRecord, 0)
	for rows.Next() {
		rec, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return records, nil
}
