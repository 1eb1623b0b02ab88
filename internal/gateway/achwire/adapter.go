// Package achwire adapts the ACH-style processor to the Gateway contract.
// This is the default processor for external bank transfers.
package achwire

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/gateway/ratelimit"
	"github.com/rteixeira/payrail/internal/gateway/session"
	"github.com/rteixeira/payrail/internal/metrics"
)

// Fees is the adapter-static fee configuration. Fee amounts are negative and
// attached to the transfer payload; same-day transfers carry the higher fee.
type Fees struct {
	Standard decimal.Decimal
	SameDay  decimal.Decimal
}

// Adapter implements gateway.Gateway against the ACH-style processor.
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

// Processor identifies the adapter's variant.
func (a *Adapter) Processor() domain.Processor {
	return domain.ProcessorAchWire
}

// CreateTransaction submits one transfer. Processor-side validation
// rejections come back as StatusInvalidRequest results, not errors.
func (a *Adapter) CreateTransaction(ctx context.Context, req domain.TransactionRequest) (domain.TransactionResult, error) {
	if err := req.Validate(); err != nil {
		return a.invalidResult(req.ReferenceID, err), nil
	}

	fee := a.fees.Standard
	if req.SameDay {
		fee = a.fees.SameDay
	}
	payload := CreatePayload{
		FromNodeID:  req.SourceID,
		ToNodeID:    req.DestinationID,
		Amount:      req.Amount,
		Fee:         fee,
		SameDay:     req.SameDay,
		ReferenceID: req.ReferenceID,
	}

	var tx Transaction
	err := a.withSession(ctx, a.identityFor(req.UserID), func(token string) error {
		var callErr error
		tx, callErr = a.client.CreateTransaction(ctx, token, payload)
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

	result := a.resultFrom(tx, req.ReferenceID)
	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "create", string(result.Status)).Inc()
	return result, nil
}

// FetchTransaction retrieves current state for a transaction. Fetches under
// the shared service identity consult the sliding-window limiter first and
// short-circuit to StatusRateLimited when the window is exhausted, protecting
// the shared identity from upstream throttling.
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
			tx, callErr := a.client.GetTransaction(ctx, token, lookup.ExternalID)
			if callErr != nil {
				return callErr
			}
			result = a.resultFrom(tx, tx.ReferenceID)
			return nil
		}

		// Secondary path: the external id is not yet known, list the node's
		// transactions and filter by reference id.
		txs, callErr := a.client.ListTransactions(ctx, token, lookup.SourceID)
		if callErr != nil {
			return callErr
		}
		for _, tx := range txs {
			if tx.ReferenceID == lookup.ReferenceID {
				result = a.resultFrom(tx, lookup.ReferenceID)
				return nil
			}
		}
		return domain.ErrTransactionNotFound
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

// ReverseTransaction cancels a submitted transaction.
func (a *Adapter) ReverseTransaction(ctx context.Context, externalID string) (domain.TransactionResult, error) {
	var tx Transaction
	err := a.withSession(ctx, a.identityFor(""), func(token string) error {
		var callErr error
		tx, callErr = a.client.CancelTransaction(ctx, token, externalID)
		return callErr
	})
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

	result := a.resultFrom(tx, tx.ReferenceID)
	metrics.ProcessorCalls.WithLabelValues(string(a.Processor()), "reverse", string(result.Status)).Inc()
	return result, nil
}

// withSession runs fn with a processor session. On an invalid-session signal
// the cached entry is discarded, one fresh authentication is performed and fn
// is retried exactly once, bounding retry amplification to a single extra
// round trip.
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

func (a *Adapter) resultFrom(tx Transaction, referenceID string) domain.TransactionResult {
	if tx.ReferenceID != "" {
		referenceID = tx.ReferenceID
	}
	return domain.TransactionResult{
		ExternalID:  tx.ID,
		ReferenceID: referenceID,
		Status:      NormalizeStatus(tx.Status),
		Processor:   a.Processor(),
		RawOutcome:  tx.Raw,
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
