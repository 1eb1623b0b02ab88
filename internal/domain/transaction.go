package domain

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies the business purpose of a money movement.
type TransactionType string

const (
	TypeAdvanceDisbursement   TransactionType = "ADVANCE_DISBURSEMENT"
	TypeAdvancePayment        TransactionType = "ADVANCE_PAYMENT"
	TypeSubscriptionPayment   TransactionType = "SUBSCRIPTION_PAYMENT"
	TypePromotionDisbursement TransactionType = "PROMOTION_DISBURSEMENT"
)

// TransactionRequest describes one money movement to submit to a processor.
// It is immutable once submitted; the ReferenceID is the caller-generated
// idempotency key correlating the request to at most one processor-side
// transaction.
type TransactionRequest struct {
	Type            TransactionType
	UserID          string // processor session hint; empty for service-identity transfers
	SourceID        string
	DestinationID   string
	ReferenceID     string
	Amount          decimal.Decimal
	SameDay         bool
	CorrespondingID *uuid.UUID // optional link to a parent transfer
}

// Validate ensures the request adheres to domain rules before it reaches an
// adapter.
func (r *TransactionRequest) Validate() error {
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("transaction amount must be positive")
	}
	if r.ReferenceID == "" {
		return errors.New("transaction reference id is required")
	}
	if r.SourceID == "" || r.DestinationID == "" {
		return errors.New("transaction source and destination are required")
	}
	switch r.Type {
	case TypeAdvanceDisbursement, TypeAdvancePayment, TypeSubscriptionPayment, TypePromotionDisbursement:
	default:
		return errors.New("unknown transaction type")
	}
	return nil
}

// IsDisbursement reports whether funds move from the service to the user.
func (r *TransactionRequest) IsDisbursement() bool {
	return r.Type == TypeAdvanceDisbursement || r.Type == TypePromotionDisbursement
}

// TransactionResult is the outcome of one processor call. Results are never
// mutated, only superseded by a newer result on re-fetch.
type TransactionResult struct {
	ExternalID  string // processor-assigned id, empty until submission succeeds
	ReferenceID string
	Status      CanonicalStatus
	Processor   Processor
	RawOutcome  map[string]interface{} // opaque diagnostic payload
}

// Lookup identifies an existing processor-side transaction for a fetch.
// Exactly one of ExternalID and ReferenceID must be supplied. UserID and
// SourceID are processor session hints: an empty UserID means the fetch runs
// under the shared service-level identity.
type Lookup struct {
	ExternalID  string
	ReferenceID string
	UserID      string
	SourceID    string
}

// Validate reports whether the lookup identifies exactly one transaction.
func (l *Lookup) Validate() error {
	if l.ExternalID == "" && l.ReferenceID == "" {
		return errors.New("lookup requires an external id or a reference id")
	}
	if l.ExternalID != "" && l.ReferenceID != "" {
		return errors.New("lookup must supply exactly one of external id and reference id")
	}
	return nil
}

// SharedIdentity reports whether the lookup would run under the shared
// service-level identity rather than caller-supplied account credentials.
func (l *Lookup) SharedIdentity() bool {
	return l.UserID == ""
}
