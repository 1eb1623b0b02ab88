package eligibility

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rteixeira/payrail/internal/domain"
)

var testConfig = Config{
	CollectionWindowStart: "09:00",
	CollectionWindowEnd:   "16:30",
	RepeatChargeCoolDown:  72 * time.Hour,
	MinNameLength:         2,
}

func readyAccount() *domain.BankAccount {
	return &domain.BankAccount{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Type:                 domain.AccountTypeExternal,
		FirstName:            "Ada",
		LastName:             "Lovelace",
		MicroDepositVerified: true,
	}
}

func chargeRequest(sameDay bool) domain.TransactionRequest {
	return domain.TransactionRequest{
		Type:          domain.TypeAdvancePayment,
		SourceID:      "node-user",
		DestinationID: "node-service",
		ReferenceID:   "ref-1",
		Amount:        decimal.RequireFromString("50.00"),
		SameDay:       sameDay,
	}
}

func TestValidate_EligibleCharge(t *testing.T) {
	insideWindow := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	err := Validate(testConfig, Input{
		Account: readyAccount(),
		Request: chargeRequest(true),
		Now:     insideWindow,
	})
	assert.NoError(t, err)
}

func TestValidate_OutsideCollectionWindow(t *testing.T) {
	outsideWindow := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)

	err := Validate(testConfig, Input{
		Account: readyAccount(),
		Request: chargeRequest(true),
		Now:     outsideWindow,
	})

	var eligErr *domain.EligibilityError
	assert.ErrorAs(t, err, &eligErr)
	assert.Equal(t, []string{domain.ReasonOutsideCollectionWindow}, eligErr.Failures)
}

func TestValidate_StandardChargeIgnoresWindow(t *testing.T) {
	outsideWindow := time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC)

	err := Validate(testConfig, Input{
		Account: readyAccount(),
		Request: chargeRequest(false),
		Now:     outsideWindow,
	})
	assert.NoError(t, err)
}

func TestValidate_RepeatChargeCoolDown(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	correspondingID := uuid.New()

	req := chargeRequest(false)
	req.CorrespondingID = &correspondingID

	err := Validate(testConfig, Input{
		Account: readyAccount(),
		Request: req,
		PriorPayments: []*domain.PaymentRecord{
			{ID: uuid.New(), ExternalID: "ext-prior", CreatedAt: now.Add(-24 * time.Hour)},
		},
		Now: now,
	})

	var eligErr *domain.EligibilityError
	assert.ErrorAs(t, err, &eligErr)
	assert.Contains(t, eligErr.Failures, domain.ReasonRecentPaymentCoolDown)
}

func TestValidate_CoolDownIgnoresUnsubmittedPrior(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	correspondingID := uuid.New()

	req := chargeRequest(false)
	req.CorrespondingID = &correspondingID

	// A prior payment with no external id never reached a processor, so it
	// does not block the charge.
	err := Validate(testConfig, Input{
		Account: readyAccount(),
		Request: req,
		PriorPayments: []*domain.PaymentRecord{
			{ID: uuid.New(), ExternalID: "", CreatedAt: now.Add(-24 * time.Hour)},
		},
		Now: now,
	})
	assert.NoError(t, err)
}

func TestValidate_AccountReadiness(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	account := readyAccount()
	account.FirstName = "A"
	account.MicroDepositVerified = false

	err := Validate(testConfig, Input{
		Account: account,
		Request: chargeRequest(false),
		Now:     now,
	})

	var eligErr *domain.EligibilityError
	assert.ErrorAs(t, err, &eligErr)
	assert.Contains(t, eligErr.Failures, domain.ReasonAccountNameIncomplete)
	assert.Contains(t, eligErr.Failures, domain.ReasonMicroDepositUnverified)
}

func TestValidate_LedgerAccountSkipsMicroDeposit(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	account := readyAccount()
	account.Type = domain.AccountTypeLedger
	account.MicroDepositVerified = false

	err := Validate(testConfig, Input{
		Account: account,
		Request: chargeRequest(false),
		Now:     now,
	})
	assert.NoError(t, err)
}

func TestValidate_AggregatesAllFailures(t *testing.T) {
	outsideWindow := time.Date(2026, 8, 28, 3, 0, 0, 0, time.UTC)
	correspondingID := uuid.New()

	account := readyAccount()
	account.FirstName = ""
	account.MicroDepositVerified = false

	req := chargeRequest(true)
	req.CorrespondingID = &correspondingID

	err := Validate(testConfig, Input{
		Account: account,
		Request: req,
		PriorPayments: []*domain.PaymentRecord{
			{ID: uuid.New(), ExternalID: "ext-prior", CreatedAt: outsideWindow.Add(-1 * time.Hour)},
		},
		Now: outsideWindow,
	})

	var eligErr *domain.EligibilityError
	assert.ErrorAs(t, err, &eligErr)
	assert.Len(t, eligErr.Failures, 4)
}
