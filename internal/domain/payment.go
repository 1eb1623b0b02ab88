package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRecord is the internal record of one attempted money movement. It is
// the single source of truth for whether a payment has reached a terminal
// outcome. The reconciliation job reads and conditionally updates it; a
// terminal status is never replaced by a different terminal status.
type PaymentRecord struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Type              TransactionType
	Amount            decimal.Decimal
	Status            CanonicalStatus
	ExternalID        string    // processor-assigned id, empty until submission succeeds
	ExternalProcessor Processor // empty until a processor is selected
	ReferenceID       string    // empty until the record is claimed for submission
	CorrespondingID   *uuid.UUID
	CreatedAt         time.Time
	DeletedAt         *time.Time
}

// Age returns how long ago the record was created. Used by the reconciliation
// job's grace-period decision for NotFound results.
func (p *PaymentRecord) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// LookupUser returns the session hint for re-fetching this record's
// transaction. Disbursements were submitted by the shared service identity,
// so they poll under it; everything else polls as the record's user.
func (p *PaymentRecord) LookupUser() string {
	if p.Type == TypeAdvanceDisbursement || p.Type == TypePromotionDisbursement {
		return ""
	}
	return p.UserID.String()
}

// AccountType distinguishes internal-ledger accounts from external bank
// accounts.
type AccountType string

const (
	AccountTypeLedger   AccountType = "LEDGER"
	AccountTypeExternal AccountType = "EXTERNAL"
)

// BankAccount carries the minimal account state the gateway needs: routing
// metadata for processor selection and the readiness fields the eligibility
// validator checks. Full account persistence belongs to a collaborator.
type BankAccount struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	Type                 AccountType
	FirstName            string
	LastName             string
	NodeID               string // processor-side sub-resource backing this account
	MicroDepositVerified bool
	FraudFlagged         bool
	CreatedAt            time.Time
}
