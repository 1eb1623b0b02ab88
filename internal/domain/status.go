package domain

// CanonicalStatus is the processor-independent transaction status vocabulary.
// Every adapter normalizes its processor's native statuses into this enum so
// the orchestrator and the reconciliation job branch on data, not on
// processor-specific strings.
type CanonicalStatus string

const (
	StatusPending        CanonicalStatus = "PENDING"
	StatusCompleted      CanonicalStatus = "COMPLETED"
	StatusCanceled       CanonicalStatus = "CANCELED"
	StatusReturned       CanonicalStatus = "RETURNED"
	StatusFailed         CanonicalStatus = "FAILED"
	StatusUnknown        CanonicalStatus = "UNKNOWN"
	StatusNotFound       CanonicalStatus = "NOT_FOUND"
	StatusRateLimited    CanonicalStatus = "RATE_LIMIT"
	StatusInvalidRequest CanonicalStatus = "INVALID_REQUEST"
)

// IsTerminal reports whether the status is a final outcome. Terminal statuses
// are sticky on a payment record: a later reconciliation pass never replaces
// one terminal status with another.
func (s CanonicalStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled, StatusReturned, StatusFailed:
		return true
	}
	return false
}

// IsRetryable reports whether the status indicates the transaction may still
// settle and should be polled again later.
func (s CanonicalStatus) IsRetryable() bool {
	switch s {
	case StatusPending, StatusUnknown, StatusRateLimited:
		return true
	}
	return false
}

// Processor identifies which external payment processor owns a transaction.
// The set is closed: the processor selector returns one of these variants and
// each variant has exactly one gateway adapter.
type Processor string

const (
	// ProcessorLedgerCore is the internal-ledger processor. Transfers between
	// internal-ledger accounts never leave the service.
	ProcessorLedgerCore Processor = "LEDGER_CORE"

	// ProcessorAchWire is the default ACH-style processor.
	ProcessorAchWire Processor = "ACH_WIRE"

	// ProcessorCardRail is the card-network-ACH processor, selected by
	// experiment rollout.
	ProcessorCardRail Processor = "CARD_RAIL"
)

// Valid reports whether p is a known processor variant.
func (p Processor) Valid() bool {
	switch p {
	case ProcessorLedgerCore, ProcessorAchWire, ProcessorCardRail:
		return true
	}
	return false
}
