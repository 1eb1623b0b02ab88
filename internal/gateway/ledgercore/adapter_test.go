package ledgercore

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rteixeira/payrail/internal/domain"
)

// MockClient is a mock implementation of Client for testing
type MockClient struct {
	mock.Mock
}

func (m *MockClient) PostEntry(ctx context.Context, p EntryPayload) (Entry, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(Entry), args.Error(1)
}

func (m *MockClient) GetEntry(ctx context.Context, externalID string) (Entry, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(Entry), args.Error(1)
}

func (m *MockClient) GetEntryByReference(ctx context.Context, referenceID string) (Entry, error) {
	args := m.Called(ctx, referenceID)
	return args.Get(0).(Entry), args.Error(1)
}

func (m *MockClient) ReverseEntry(ctx context.Context, externalID string) (Entry, error) {
	args := m.Called(ctx, externalID)
	return args.Get(0).(Entry), args.Error(1)
}

func TestCreateTransaction_PostsEntry(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	adapter := New(client, zerolog.Nop())

	client.On("PostEntry", ctx, mock.Anything).Return(Entry{ID: "entry-1", Status: "POSTED", ReferenceID: "ref-1"}, nil).Once()

	result, err := adapter.CreateTransaction(ctx, domain.TransactionRequest{
		Type:          domain.TypeSubscriptionPayment,
		SourceID:      "ledger-user",
		DestinationID: "ledger-service",
		ReferenceID:   "ref-1",
		Amount:        decimal.RequireFromString("1.00"),
	})
	assert.NoError(t, err)
	assert.Equal(t, "entry-1", result.ExternalID)
	assert.Equal(t, domain.StatusCompleted, result.Status)
	assert.Equal(t, domain.ProcessorLedgerCore, result.Processor)
}

func TestFetchTransaction_NotFoundIsResult(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	adapter := New(client, zerolog.Nop())

	client.On("GetEntry", ctx, "entry-missing").Return(Entry{}, domain.ErrTransactionNotFound).Once()

	result, err := adapter.FetchTransaction(ctx, domain.Lookup{ExternalID: "entry-missing"})
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusNotFound, result.Status)
}

func TestReverseTransaction_Voids(t *testing.T) {
	ctx := context.Background()
	client := new(MockClient)
	adapter := New(client, zerolog.Nop())

	client.On("ReverseEntry", ctx, "entry-1").Return(Entry{ID: "entry-1", Status: "VOID"}, nil).Once()

	result, err := adapter.ReverseTransaction(ctx, "entry-1")
	assert.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, result.Status)
}

func TestNormalizeStatus_Totality(t *testing.T) {
	for _, raw := range NativeStatuses {
		assert.NotEqual(t, domain.StatusUnknown, NormalizeStatus(raw), "documented status %q must not map to UNKNOWN", raw)
	}
	assert.Equal(t, domain.StatusUnknown, NormalizeStatus("SURPRISE"))
}
