package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the gateway. Anticipated business outcomes
// (declined, returned, not found) are modeled as CanonicalStatus values, not
// errors; these sentinels cover the genuinely exceptional paths.
var (
	// ErrProcessorUnavailable marks a transport-level failure talking to a
	// processor. Retryable: the scheduling collaborator owns backoff.
	ErrProcessorUnavailable = errors.New("processor unavailable")

	// ErrSessionInvalid is the processor's expired/invalid session signal.
	// Adapters react by invalidating the cached session and retrying once.
	ErrSessionInvalid = errors.New("processor session invalid")

	// ErrInvalidPayload is a processor-side validation rejection of a
	// state-changing call. Adapters surface it as StatusInvalidRequest.
	ErrInvalidPayload = errors.New("processor rejected request payload")

	// ErrTransactionNotFound is the processor's 404 for a transaction lookup.
	// Adapters surface it as StatusNotFound.
	ErrTransactionNotFound = errors.New("transaction not found at processor")

	// ErrUpstreamThrottled is the processor's own rate-limit response.
	// Adapters surface it as StatusRateLimited.
	ErrUpstreamThrottled = errors.New("processor throttled request")

	// ErrNotSupported marks an operation the processor permanently cannot
	// perform, e.g. reversal on an adapter without a cancel API. Never retried.
	ErrNotSupported = errors.New("operation not supported by processor")

	// ErrTransactionConflict is returned when a payment record has already
	// been claimed for submission under another reference. The losing caller
	// must not submit to the processor.
	ErrTransactionConflict = errors.New("transaction already in flight for this payment")

	// ErrFraudHold rejects a charge before any processor is selected.
	ErrFraudHold = errors.New("account is flagged for fraud review")

	// ErrUnknownProcessor is returned for a processor value outside the
	// closed variant set.
	ErrUnknownProcessor = errors.New("unknown payment processor")

	// ErrPaymentNotFound is returned when the referenced internal payment
	// record does not exist (or was soft-deleted).
	ErrPaymentNotFound = errors.New("payment record not found")
)

// PaymentError is raised by the orchestrator when a submission reaches a
// non-successful terminal outcome. The canonical status carries the
// machine-readable cause; the raw processor outcome stays in the result.
type PaymentError struct {
	Status CanonicalStatus
	Result TransactionResult
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment failed with status %s", e.Status)
}

// EligibilityError aggregates every blocking precondition for a charge, so
// callers see all reasons at once rather than the first failure.
type EligibilityError struct {
	Failures []string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("charge is not eligible: %s", strings.Join(e.Failures, ", "))
}

// Eligibility failure reasons, exposed to collaborators as stable strings.
const (
	ReasonOutsideCollectionWindow = "OutsideCollectionWindow"
	ReasonRecentPaymentCoolDown   = "RecentPaymentCoolDown"
	ReasonAccountNameIncomplete   = "AccountNameIncomplete"
	ReasonMicroDepositUnverified  = "MicroDepositUnverified"
)
