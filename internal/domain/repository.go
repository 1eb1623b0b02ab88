package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentRepository defines the persistence operations the orchestrator and
// the reconciliation job need on payment records.
type PaymentRepository interface {
	// GetByID retrieves a payment record by its ID. Soft-deleted records are
	// not returned; missing records surface ErrPaymentNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*PaymentRecord, error)

	// ClaimForSubmission records the selected processor and reference id on
	// the payment before the external call is made. The claim is a
	// compare-and-set on "reference id not yet set": of two concurrent
	// claims, exactly one succeeds and the other receives
	// ErrTransactionConflict.
	ClaimForSubmission(ctx context.Context, id uuid.UUID, processor Processor, referenceID string) error

	// SetOutcome persists the result of a submission: external id, owning
	// processor and canonical status. Like UpdateStatusIfNotTerminal, the
	// write only applies while the stored status is non-terminal and reports
	// whether it was applied, so a reconciliation pass that settles the
	// record mid-submission is never clobbered.
	SetOutcome(ctx context.Context, id uuid.UUID, result TransactionResult) (bool, error)

	// UpdateStatusIfNotTerminal transitions the stored status and reports
	// whether the transition was applied. The guard is enforced in the store
	// so concurrent reconciliation passes cannot replace one terminal status
	// with another.
	UpdateStatusIfNotTerminal(ctx context.Context, id uuid.UUID, status CanonicalStatus) (bool, error)

	// SoftDelete marks the record deleted without destroying the audit trail.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// ListByCorresponding returns payments linked to a parent transfer
	// created at or after the given time. Used for the repeat-charge
	// cool-down check.
	ListByCorresponding(ctx context.Context, correspondingID uuid.UUID, since time.Time) ([]*PaymentRecord, error)

	// ListUnsettled returns non-terminal, non-deleted payments for the
	// reconciliation sweep, oldest first.
	ListUnsettled(ctx context.Context, limit int) ([]*PaymentRecord, error)
}

// AccountRepository provides the minimal account state the gateway reads.
type AccountRepository interface {
	// GetByID retrieves a bank account by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*BankAccount, error)
}

// AuditRepository appends to the diagnostic trail.
type AuditRepository interface {
	// Record appends one audit entry.
	Record(ctx context.Context, rec *AuditRecord) error
}

// MarkerStore durably records which users require the alternate
// authentication secret, so future fingerprint derivations default to it
// without re-probing.
type MarkerStore interface {
	IsMarked(ctx context.Context, userID string) (bool, error)
	Mark(ctx context.Context, userID string) error
}

// SharedSessionStore shares processor session tokens across process
// instances for a small set of high-traffic identities. Get returns an empty
// token when no session is stored; staleness is tolerated because
// invalidation is reactive.
type SharedSessionStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, token string) error
	Delete(ctx context.Context, key string) error
}

// ExperimentDecider answers routing experiment questions for the processor
// selector.
type ExperimentDecider interface {
	// UseCardRail reports whether the user's charges route to the
	// card-network-ACH processor instead of the default ACH processor.
	UseCardRail(ctx context.Context, userID uuid.UUID) bool
}

// Notifier receives reconciliation outcomes. Implementations dispatch
// user-facing notifications and broadcast status changes; failures to notify
// must not fail the reconciliation pass.
type Notifier interface {
	PaymentFailed(ctx context.Context, rec *PaymentRecord, status CanonicalStatus)
	StatusChanged(ctx context.Context, rec *PaymentRecord, previous, next CanonicalStatus)
}
