// Package gateway defines the common contract every payment processor
// adapter implements. The orchestrator and the reconciliation job talk to
// processors exclusively through this interface.
package gateway

import (
	"context"

	"github.com/rteixeira/payrail/internal/domain"
)

// Gateway is the processor-independent transaction contract.
//
// Anticipated processor outcomes (declined, not found, throttled, rejected
// payload) flow back as TransactionResult statuses; the error return is
// reserved for transport failures (domain.ErrProcessorUnavailable) and
// permanently unsupported operations (domain.ErrNotSupported).
type Gateway interface {
	// CreateTransaction submits one money movement. Exactly one external
	// state-changing call is made per invocation.
	CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResult, error)

	// FetchTransaction retrieves current processor state for a transaction.
	// A lookup that supplies neither or both identifiers returns
	// StatusInvalidRequest synchronously, without a network call. Lookup by
	// reference id is a slower list-and-filter path used while the external
	// id is not yet known; zero matches yield StatusNotFound.
	FetchTransaction(ctx context.Context, lookup domain.Lookup) (domain.TransactionResult, error)

	// ReverseTransaction cancels a previously submitted transaction.
	// Adapters without a cancel API fail with domain.ErrNotSupported.
	ReverseTransaction(ctx context.Context, externalID string) (domain.TransactionResult, error)

	// Processor identifies the adapter's variant.
	Processor() domain.Processor
}
