// Package ledgercore adapts the internal-ledger processor to the Gateway
// contract. Transfers between internal-ledger accounts never leave the
// service, so there is no session handshake and no partner rate ceiling.
package ledgercore

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/metrics"
)

// NativeStatuses is the ledger service's entry status vocabulary.
var NativeStatuses = []string{
	"PENDING",
	"POSTED",
	"VOID",
	"FAILED",
}

// NormalizeStatus maps a ledger entry status to the canonical vocabulary.
func NormalizeStatus(raw string) domain.CanonicalStatus {
	switch raw {
	case "PENDING":
		return domain.StatusPending
	case "POSTED":
		return domain.StatusCompleted
	case "VOID":
		return domain.StatusCanceled
	case "FAILED":
		return domain.StatusFailed
	default:
		return domain.StatusUnknown
	}
}

// Adapter implements gateway.Gateway against the internal ledger service.
type Adapter struct {
	client Client
	log    zerolog.Logger
}

func New(client Client, log zerolog.Logger) *Adapter {
	return &Adapter{client: client, log: log}
}

func (a *Adapter) Processor() domain.Processor {
	return domain.ProcessorLedgerCore
}

func (a *Adapter) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return a.invalidResult(req.ReferenceID, err), nil
	}

	entry, err := a.client.PostEntry(ctx, EntryPayload{
		SourceAccountID: req.SourceID,
		TargetAccountID: req.DestinationID,
		Amount:          req.Amount,
		ReferenceID:     req.ReferenceID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", string(domain.StatusInvalidRequest)).Inc()
			return a.invalidResult(req.ReferenceID, err), nil
		}
		metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", "error").Inc()
		return domain.TransactionResult{}, err
	}

	result := a.resultFrom(entry, req.ReferenceID)
	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", string(result.Status)).Inc()
	return result, nil
}

func (a *Adapter) FetchTransaction(ctx context.Context, lookup domain.Lookup) (domain.TransactionResult, error) {
	if err := lookup.Validate(); err != nil {
		return a.invalidResult(lookup.ReferenceID, err), nil
	}

	var entry Entry
	var err error
	if lookup.ExternalID != "" {
		entry, err = a.client.GetEntry(ctx, lookup.ExternalID)
	} else {
		entry, err = a.client.GetEntryByReference(ctx, lookup.ReferenceID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return domain.TransactionResult{
				ExternalID:  lookup.ExternalID,
				ReferenceID: lookup.ReferenceID,
				Status:      domain.StatusNotFound,
				Processor:   a.Processor(),
			}, nil
		}
		metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "fetch", "error").Inc()
		return domain.TransactionResult{}, err
	}

	result := a.resultFrom(entry, lookup.ReferenceID)
	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "fetch", string(result.Status)).Inc()
	return result, nil
}

// ReverseTransaction voids the entry by posting a reversing entry.
func (a *Adapter) ReverseTransaction(ctx context.Context, externalID string) (domain.TransactionResult, error) {
	entry, err := a.client.ReverseEntry(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return domain.TransactionResult{
				ExternalID: externalID,
				Status:     domain.StatusNotFound,
				Processor:  a.Processor(),
			}, nil
		}
		metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "reverse", "error").Inc()
		return domain.TransactionResult{}, err
	}

	result := a.resultFrom(entry, entry.ReferenceID)
	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "reverse", string(result.Status)).Inc()
	return result, nil
}

func (a *Adapter) resultFrom(entry Entry, referenceID string) domain.TransactionResult {
	if entry.ReferenceID != "" {
		referenceID = entry.ReferenceID
	}
	return domain.TransactionResult{
		ExternalID:  entry.ID,
		ReferenceID: referenceID,
		Status:      NormalizeStatus(entry.Status),
		Processor:   a.Processor(),
		RawOutcome:  entry.Raw,
	}
}

func (a *Adapter) invalidResult(referenceID string, cause error) domain.TransactionResult {
	return domain.TransactionResult{
		ReferenceID: referenceID,
		Status:      domain.StatusInvalidRequest,
		Processor:   a.Processor(),
		RawOutcome:  map[string]interface{}{"error": cause.Error()},
	}
}
