// Package cardrail adapts the card-network-ACH processor to the Gateway
// contract. Selected by experiment rollout for external charges.
package cardrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/gateway/ratelimit"
	"github.com/rteixeira/payrail/internal/gateway/session"
	"github.com/rteixeira/payrail/internal/metrics"
)

// Fees is the adapter-static fee configuration.
type Fees struct {
	Standard decimal.Decimal
	SameDay  decimal.Decimal
}

// Adapter implements gateway.Gateway against the card-network-ACH processor.
// The processor exposes no cancel API, so reversal is permanently
// unsupported.
type Adapter struct {
	client          Client
	sessions        *session.Cache
	limiter         *ratelimit.Limiter
	serviceIdentity string
	fees            Fees
	log             zerolog.Logger
}

// New creates the adapter. limiter guards fetches made under the shared
// service identity; serviceIdentity names that identity in the session cache.
func New(client Client, sessions *session.Cache, limiter *ratelimit.Limiter, serviceIdentity string, fees Fees, log zerolog.Logger) *Adapter {
	return &Adapter{
		client:          client,
		sessions:        sessions,
		limiter:         limiter,
		serviceIdentity: serviceIdentity,
		fees:            fees,
		log:             log,
	}
}

func (a *Adapter) Processor() domain.Processor {
	return domain.ProcessorCardRail
}

func (a *Adapter) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return a.invalidResult(req.ReferenceID, err), nil
	}

	fee := a.fees.Standard
	if req.SameDay {
		fee = a.fees.SameDay
	}
	payload := TransferPayload{
		SourceAccountID: req.SourceID,
		TargetAccountID: req.DestinationID,
		Amount:          req.Amount,
		Fee:             fee,
		SameDay:         req.SameDay,
		ReferenceID:     req.ReferenceID,
	}

	var transfer Transfer
	err := a.withSession(ctx, a.identityFor(req.UserID), func(token string) error {
		var callErr error
		transfer, callErr = a.client.CreateTransfer(ctx, token, payload)
		return callErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", string(domain.StatusInvalidRequest)).Inc()
			return a.invalidResult(req.ReferenceID, err), nil
		}
		metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", "error").Inc()
		return domain.TransactionResult{}, err
	}

	result := a.resultFrom(transfer, req.ReferenceID)
	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", string(result.Status)).Inc()
	return result, nil
}

// FetchTransaction retrieves current state for a transfer. Fetches under the
// shared service identity consult the sliding-window limiter first and
// short-circuit to StatusRateLimited when the window is exhausted.
func (a *Adapter) FetchTransaction(ctx context.Context, lookup domain.Lookup) (domain.TransactionResult, error) {
	if err := lookup.Validate(); err != nil {
		return a.invalidResult(lookup.ReferenceID, err), nil
	}

	if lookup.SharedIdentity() && a.limiter.IsRateLimited() {
		return domain.TransactionResult{
			ReferenceID: lookup.ReferenceID,
			Status:      domain.StatusRateLimited,
			Processor:   a.Processor(),
		}, nil
	}

	var result domain.TransactionResult
	err := a.withSession(ctx, a.identityFor(lookup.UserID), func(token string) error {
		if lookup.ExternalID != "" {
			transfer, callErr := a.client.GetTransfer(ctx, token, lookup.ExternalID)
			if callErr != nil {
				return callErr
			}
			result = a.resultFrom(transfer, transfer.ReferenceID)
			return nil
		}

		transfers, callErr := a.client.FindTransfersByReference(ctx, token, lookup.ReferenceID)
		if callErr != nil {
			return callErr
		}
		if len(transfers) == 0 {
			return domain.ErrTransactionNotFound
		}
		result = a.resultFrom(transfers[0], lookup.ReferenceID)
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			return domain.TransactionResult{
				ExternalID:  lookup.ExternalID,
				ReferenceID: lookup.ReferenceID,
				Status:      domain.StatusNotFound,
				Processor:   a.Processor(),
			}, nil
		}
		if errors.Is(err, domain.ErrUpstreamThrottled) {
			return domain.TransactionResult{
				ReferenceID: lookup.ReferenceID,
				Status:      domain.StatusRateLimited,
				Processor:   a.Processor(),
			}, nil
		}
		metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "fetch", "error").Inc()
		return domain.TransactionResult{}, err
	}

	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "fetch", string(result.Status)).Inc()
	return result, nil
}

// ReverseTransaction is permanently unsupported: the processor exposes no
// cancel API. Callers must not retry.
func (a *Adapter) ReverseTransaction(ctx context.Context, externalID string) (domain.TransactionResult, error) {
	return domain.TransactionResult{}, fmt.Errorf("reverse transaction %s: %w", externalID, domain.ErrNotSupported)
}

// withSession mirrors the bounded refresh contract: invalidate, one fresh
// authentication, one retry.
func (a *Adapter) withSession(ctx context.Context, id session.Identity, fn func(token string) error) error {
	sess, err := a.sessions.Get(ctx, id, false)
	if err != nil {
		return err
	}

	err = fn(sess.Token)
	if !errors.Is(err, domain.ErrSessionInvalid) {
		return err
	}

	a.sessions.Invalidate(ctx, id)
	metrics.SessionRefreshes.WithLabelValues(string(a.Processor())).Inc()
	sess, err = a.sessions.Get(ctx, id, true)
	if err != nil {
		return err
	}
	return fn(sess.Token)
}

// identityFor maps a request's user hint to the session identity. An empty
// user id means the shared service-level identity.
func (a *Adapter) identityFor(userID string) session.Identity {
	if userID == "" {
		return session.Identity{UserID: a.serviceIdentity, Shared: true}
	}
	return session.Identity{UserID: userID}
}

func (a *Adapter) resultFrom(transfer Transfer, referenceID string) domain.TransactionResult {
	if transfer.ReferenceID != "" {
		referenceID = transfer.ReferenceID
	}
	return domain.TransactionResult{
		ExternalID:  transfer.ID,
		ReferenceID: referenceID,
		Status:      NormalizeStatus(transfer.Status),
		Processor:   a.Processor(),
		RawOutcome:  transfer.Raw,
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
