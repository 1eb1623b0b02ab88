// Package eligibility holds the pure pre-charge checks. Validation is a
// function of account and time state only; it performs no I/O, so callers
// load any needed records first.
package eligibility

import (
	"fmt"
	"time"

	"github.com/rteixeira/payrail/internal/domain"
)

// Config carries the business-tuned thresholds. Values are defaults subject
// to product retuning, not invariants.
type Config struct {
	// CollectionWindowStart/End bound the daily same-day cutoff window,
	// "15:04" in UTC.
	CollectionWindowStart string
	CollectionWindowEnd   string

	// RepeatChargeCoolDown is the look-back period during which a second
	// charge against the same parent transfer is refused. A business
	// safeguard against double-collection, not an idempotency mechanism.
	RepeatChargeCoolDown time.Duration

	// MinNameLength is the minimum length of the account holder's name
	// fields.
	MinNameLength int
}

// Input is everything a validation pass looks at.
type Input struct {
	Account *domain.BankAccount
	Request domain.TransactionRequest

	// PriorPayments are payments linked to the request's parent transfer
	// within the cool-down look-back, loaded by the caller.
	PriorPayments []*domain.PaymentRecord

	Now time.Time
}

// Validate runs every check and aggregates all blocking reasons into one
// EligibilityError, so operators see the full picture rather than the first
// failure.
func Validate(cfg Config, in Input) error {
	var failures []string

	if in.Request.SameDay && !inCollectionWindow(cfg, in.Now) {
		failures = append(failures, domain.ReasonOutsideCollectionWindow)
	}

	if coolDownViolated(cfg, in) {
		failures = append(failures, domain.ReasonRecentPaymentCoolDown)
	}

	failures = append(failures, accountReadiness(cfg, in.Account)...)

	if len(failures) > 0 {
		return &domain.EligibilityError{Failures: failures}
	}
	return nil
}

// inCollectionWindow reports whether now falls inside the processor's
// same-day cutoff window.
func inCollectionWindow(cfg Config, now time.Time) bool {
	start, err := clockMinutes(cfg.CollectionWindowStart)
	if err != nil {
		return false
	}
	end, err := clockMinutes(cfg.CollectionWindowEnd)
	if err != nil {
		return false
	}
	utc := now.UTC()
	minute := utc.Hour()*60 + utc.Minute()
	return minute >= start && minute < end
}

// coolDownViolated applies only to repayment-style charges linked to a parent
// transfer: any prior payment for the same transfer created inside the
// look-back that already carries an external id blocks the charge.
func coolDownViolated(cfg Config, in Input) bool {
	if in.Request.Type != domain.TypeAdvancePayment || in.Request.CorrespondingID == nil {
		return false
	}
	cutoff := in.Now.Add(-cfg.RepeatChargeCoolDown)
	for _, prior := range in.PriorPayments {
		if prior.ExternalID != "" && prior.CreatedAt.After(cutoff) {
			return true
		}
	}
	return false
}

func accountReadiness(cfg Config, account *domain.BankAccount) []string {
	var failures []string
	if len(account.FirstName) < cfg.MinNameLength || len(account.LastName) < cfg.MinNameLength {
		failures = append(failures, domain.ReasonAccountNameIncomplete)
	}
	if account.Type == domain.AccountTypeExternal && !account.MicroDepositVerified {
		failures = append(failures, domain.ReasonMicroDepositUnverified)
	}
	return failures
}

func clockMinutes(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
