package charge

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/usecase/eligibility"
)

// MockPaymentRepository is a mock implementation of domain.PaymentRepository for testing
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) ClaimForSubmission(ctx context.Context, id uuid.UUID, processor domain.Processor, referenceID string) error {
	args := m.Called(ctx, id, processor, referenceID)
	return args.Error(0)
}

func (m *MockPaymentRepository) SetOutcome(ctx context.Context, id uuid.UUID, result domain.TransactionResult) (bool, error) {
	args := m.Called(ctx, id, result)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) UpdateStatusIfNotTerminal(ctx context.Context, id uuid.UUID, status domain.CanonicalStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPaymentRepository) ListByCorresponding(ctx context.Context, correspondingID uuid.UUID, since time.Time) ([]*domain.PaymentRecord, error) {
	args := m.Called(ctx, correspondingID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) ListUnsettled(ctx context.Context, limit int) ([]*domain.PaymentRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentRecord), args.Error(1)
}

// MockAccountRepository is a mock implementation of domain.AccountRepository for testing
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BankAccount), args.Error(1)
}

// MockAuditRepository is a mock implementation of domain.AuditRepository for testing
type MockAuditRepository struct {
	mock.Mock
}

func (m *MockAuditRepository) Record(ctx context.Context, rec *domain.AuditRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// MockDecider is a mock implementation of domain.ExperimentDecider for testing
type MockDecider struct {
	mock.Mock
}

func (m *MockDecider) UseCardRail(ctx context.Context, userID uuid.UUID) bool {
	args := m.Called(ctx, userID)
	return args.Bool(0)
}

// MockGateway is a mock implementation of gateway.Gateway for testing
type MockGateway struct {
	mock.Mock
	processor domain.Processor
}

func (m *MockGateway) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.TransactionResult), args.Error(1)
}

func (m *MockGateway) FetchTransaction(ctx context.Context, lookup domain.Lookup) (domain.TransactionResult, error) {
	args := m.Called(ctx, lookup)
	return args.Get(0).(domain.TransactionResult), args.Error(1)
}

func (m *MockGateway) ReverseTransaction(ctx context.Context, externalID string) (domain.TransactionResult, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(domain.TransactionResult), args.Error(1)
}

func (m *MockGateway) Processor() domain.Processor {
	return m.processor
}

var testEligConfig = eligibility.Config{
	CollectionWindowStart: "09:00",
	CollectionWindowEnd:   "16:30",
	RepeatChargeCoolDown:  72 * time.Hour,
	MinNameLength:         2,
}

type fixture struct {
	payments *MockPaymentRepository
	accounts *MockAccountRepository
	audits   *MockAuditRepository
	decider  *MockDecider
	achGW    *MockGateway
	cardGW   *MockGateway
	ledgerGW *MockGateway
	service  *Service
}

func newFixture() *fixture {
	f := &fixture{
		payments: new(MockPaymentRepository),
		accounts: new(MockAccountRepository),
		audits:   new(MockAuditRepository),
		decider:  new(MockDecider),
		achGW:    &MockGateway{processor: domain.ProcessorAchWire},
		cardGW:   &MockGateway{processor: domain.ProcessorCardRail},
		ledgerGW: &MockGateway{processor: domain.ProcessorLedgerCore},
	}
	f.service = NewService(f.payments, f.accounts, f.audits, f.decider, testEligConfig, zerolog.Nop(), f.achGW, f.cardGW, f.ledgerGW)
	// Fixed time inside the collection window keeps eligibility deterministic.
	f.service.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	return f
}

func externalAccount() *domain.BankAccount {
	return &domain.BankAccount{
		ID:                   uuid.New(),
		UserID:               uuid.New(),
		Type:                 domain.AccountTypeExternal,
		FirstName:            "Grace",
		LastName:             "Hopper",
		MicroDepositVerified: true,
	}
}

func testInput(accountID uuid.UUID) Input {
	return Input{
		PaymentID: uuid.New(),
		AccountID: accountID,
		Request: domain.TransactionRequest{
			Type:          domain.TypeAdvancePayment,
			UserID:        "user-1",
			SourceID:      "node-user",
			DestinationID: "node-service",
			ReferenceID:   "ref-1",
			Amount:        decimal.RequireFromString("50.00"),
		},
	}
}

func TestChargeBankAccount_Success(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account := externalAccount()
	in := testInput(account.ID)
	submitted := domain.TransactionResult{
		ExternalID:  "ext-1",
		ReferenceID: "ref-1",
		Status:      domain.StatusPending,
		Processor:   domain.ProcessorAchWire,
	}

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.decider.On("UseCardRail", ctx, account.UserID).Return(false)
	f.payments.On("ClaimForSubmission", ctx, in.PaymentID, domain.ProcessorAchWire, "ref-1").Return(nil).Once()
	f.achGW.On("CreateTransaction", ctx, in.Request).Return(submitted, nil).Once()
	f.payments.On("SetOutcome", ctx, in.PaymentID, submitted).Return(true, nil).Once()
	f.audits.On("Record", ctx, mock.MatchedBy(func(rec *domain.AuditRecord) bool {
		return rec.Successful && rec.Type == "bank_charge"
	})).Return(nil).Once()

	result, err := f.service.ChargeBankAccount(ctx, in)
	assert.NoError(t, err)
	assert.Equal(t, submitted, result)
	f.payments.AssertExpectations(t)
	f.audits.AssertExpectations(t)
}

func TestChargeBankAccount_FraudShortCircuit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account := externalAccount()
	account.FraudFlagged = true
	in := testInput(account.ID)

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.audits.On("Record", ctx, mock.MatchedBy(func(rec *domain.AuditRecord) bool {
		return !rec.Successful
	})).Return(nil).Once()

	_, err := f.service.ChargeBankAccount(ctx, in)
	assert.ErrorIs(t, err, domain.ErrFraudHold)

	// Rejected before selection: no claim, no network call to any adapter.
	f.payments.AssertNotCalled(t, "ClaimForSubmission", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.achGW.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
	f.cardGW.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
	f.ledgerGW.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestChargeBankAccount_OutsideWindowMakesNoNetworkCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.service.now = func() time.Time { return time.Date(2026, 8, 28, 20, 0, 0, 0, time.UTC) }

	account := externalAccount()
	in := testInput(account.ID)
	in.Request.SameDay = true

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.decider.On("UseCardRail", ctx, account.UserID).Return(false)
	f.audits.On("Record", ctx, mock.Anything).Return(nil)

	_, err := f.service.ChargeBankAccount(ctx, in)

	var eligErr *domain.EligibilityError
	assert.ErrorAs(t, err, &eligErr)
	assert.Equal(t, []string{domain.ReasonOutsideCollectionWindow}, eligErr.Failures)

	f.payments.AssertNotCalled(t, "ClaimForSubmission", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.achGW.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestChargeBankAccount_ConcurrentClaimConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account := externalAccount()
	in := testInput(account.ID)

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.decider.On("UseCardRail", ctx, account.UserID).Return(false)
	f.payments.On("ClaimForSubmission", ctx, in.PaymentID, domain.ProcessorAchWire, "ref-1").Return(domain.ErrTransactionConflict).Once()

	_, err := f.service.ChargeBankAccount(ctx, in)
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)

	// The losing attempt never reaches the processor.
	f.achGW.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestChargeBankAccount_TerminalFailureRaisesPaymentError(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account := externalAccount()
	in := testInput(account.ID)
	declined := domain.TransactionResult{
		ReferenceID: "ref-1",
		Status:      domain.StatusFailed,
		Processor:   domain.ProcessorAchWire,
	}

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.decider.On("UseCardRail", ctx, account.UserID).Return(false)
	f.payments.On("ClaimForSubmission", ctx, in.PaymentID, domain.ProcessorAchWire, "ref-1").Return(nil).Once()
	f.achGW.On("CreateTransaction", ctx, in.Request).Return(declined, nil).Once()
	f.payments.On("SetOutcome", ctx, in.PaymentID, declined).Return(true, nil).Once()
	f.audits.On("Record", ctx, mock.MatchedBy(func(rec *domain.AuditRecord) bool {
		return !rec.Successful
	})).Return(nil).Once()

	_, err := f.service.ChargeBankAccount(ctx, in)

	var payErr *domain.PaymentError
	assert.ErrorAs(t, err, &payErr)
	assert.Equal(t, domain.StatusFailed, payErr.Status)
	f.audits.AssertExpectations(t)
}

func TestChargeBankAccount_CoolDownLoadsPriorPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account := externalAccount()
	in := testInput(account.ID)
	correspondingID := uuid.New()
	in.Request.CorrespondingID = &correspondingID

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.decider.On("UseCardRail", ctx, account.UserID).Return(false)
	f.payments.On("ListByCorresponding", ctx, correspondingID, mock.Anything).Return([]*domain.PaymentRecord{
		{ID: uuid.New(), ExternalID: "ext-prior", CreatedAt: time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)},
	}, nil).Once()
	f.audits.On("Record", ctx, mock.Anything).Return(nil)

	_, err := f.service.ChargeBankAccount(ctx, in)

	var eligErr *domain.EligibilityError
	assert.ErrorAs(t, err, &eligErr)
	assert.Contains(t, eligErr.Failures, domain.ReasonRecentPaymentCoolDown)
	f.achGW.AssertNotCalled(t, "CreateTransaction", mock.Anything, mock.Anything)
}

func TestSelectProcessor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	ledgerAccount := externalAccount()
	ledgerAccount.Type = domain.AccountTypeLedger
	assert.Equal(t, domain.ProcessorLedgerCore, f.service.SelectProcessor(ctx, ledgerAccount))

	experimentAccount := externalAccount()
	f.decider.On("UseCardRail", ctx, experimentAccount.UserID).Return(true).Once()
	assert.Equal(t, domain.ProcessorCardRail, f.service.SelectProcessor(ctx, experimentAccount))

	defaultAccount := externalAccount()
	f.decider.On("UseCardRail", ctx, defaultAccount.UserID).Return(false).Once()
	assert.Equal(t, domain.ProcessorAchWire, f.service.SelectProcessor(ctx, defaultAccount))
}

func TestRolloutDecider_Deterministic(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	assert.False(t, RolloutDecider{Percent: 0}.UseCardRail(ctx, userID))
	assert.True(t, RolloutDecider{Percent: 100}.UseCardRail(ctx, userID))

	half := RolloutDecider{Percent: 50}
	first := half.UseCardRail(ctx, userID)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, half.UseCardRail(ctx, userID))
	}
}

func TestRetrieve_ResolvesStoredProcessor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	paymentID := uuid.New()
	rec := &domain.PaymentRecord{
		ID:                paymentID,
		UserID:            uuid.New(),
		Type:              domain.TypeAdvancePayment,
		Status:            domain.StatusPending,
		ExternalID:        "ext-1",
		ExternalProcessor: domain.ProcessorCardRail,
	}
	fetched := domain.TransactionResult{ExternalID: "ext-1", Status: domain.StatusCompleted, Processor: domain.ProcessorCardRail}

	f.payments.On("GetByID", ctx, paymentID).Return(rec, nil).Once()
	// The fetch runs under the record's user, not the shared identity.
	f.cardGW.On("FetchTransaction", ctx, domain.Lookup{ExternalID: "ext-1", UserID: rec.UserID.String()}).Return(fetched, nil).Once()

	result, err := f.service.Retrieve(ctx, paymentID)
	assert.NoError(t, err)
	assert.Equal(t, fetched, result)
	f.cardGW.AssertExpectations(t)
}

func TestChargeBankAccount_OutcomeNotClobberedAfterConcurrentSettle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account := externalAccount()
	in := testInput(account.ID)
	submitted := domain.TransactionResult{
		ExternalID:  "ext-1",
		ReferenceID: "ref-1",
		Status:      domain.StatusPending,
		Processor:   domain.ProcessorAchWire,
	}

	f.accounts.On("GetByID", ctx, account.ID).Return(account, nil)
	f.decider.On("UseCardRail", ctx, account.UserID).Return(false)
	f.payments.On("ClaimForSubmission", ctx, in.PaymentID, domain.ProcessorAchWire, "ref-1").Return(nil).Once()
	f.achGW.On("CreateTransaction", ctx, in.Request).Return(submitted, nil).Once()
	// Reconciliation landed a terminal status mid-call; the store refuses the
	// overwrite and the charge still reports the submission result.
	f.payments.On("SetOutcome", ctx, in.PaymentID, submitted).Return(false, nil).Once()
	f.audits.On("Record", ctx, mock.Anything).Return(nil).Once()

	result, err := f.service.ChargeBankAccount(ctx, in)
	assert.NoError(t, err)
	assert.Equal(t, submitted, result)
	f.payments.AssertExpectations(t)
}
