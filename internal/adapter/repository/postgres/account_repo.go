package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/rteixeira/payrail/internal/domain"
)

// accountRepository implements domain.AccountRepository. Only the minimal
// fields the gateway reads are mapped here; full account persistence belongs
// to the accounts service.
type accountRepository struct {
	db *DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

// GetByID retrieves a bank account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	query := `
		SELECT id, user_id, type, first_name, last_name, node_id, micro_deposit_verified, fraud_flagged, created_at
		FROM bank_accounts
		WHERE id = $1
	`

	var account domain.BankAccount
	var nodeID sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&account.ID,
		&account.UserID,
		&account.Type,
		&account.FirstName,
		&account.LastName,
		&nodeID,
		&account.MicroDepositVerified,
		&account.FraudFlagged,
		&account.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("bank account %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	account.NodeID = nodeID.String
	return &account, nil
}
