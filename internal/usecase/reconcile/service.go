// Package reconcile refreshes internal payment records against processor
// state. A pass never fails on an anticipated outcome: only transport errors
// propagate, so the scheduling collaborator can re-invoke the job with its
// own backoff.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/gateway"
	"github.com/rteixeira/payrail/internal/metrics"
)

const auditTypeReconcile = "payment_reconciliation"

// Config carries the business-tuned grace periods and the probe order used
// when a payment's owning processor was never persisted.
type Config struct {
	// PaymentNotFoundGrace is how long a NotFound payment is treated as
	// eventually-consistent before being canceled.
	PaymentNotFoundGrace time.Duration

	// DisbursementNotFoundGrace is the same gate for disbursements, which
	// settle on a slower track.
	DisbursementNotFoundGrace time.Duration

	// ProbeOrder lists processors to ask, in priority order, when the record
	// does not say which one owns the transaction.
	ProbeOrder []domain.Processor
}

// Service is the reconciliation job.
type Service struct {
	payments domain.PaymentRepository
	audits   domain.AuditRepository
	notifier domain.Notifier
	gateways map[domain.Processor]gateway.Gateway
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(
	payments domain.PaymentRepository,
	audits domain.AuditRepository,
	notifier domain.Notifier,
	cfg Config,
	log zerolog.Logger,
	gateways ...gateway.Gateway,
) *Service {
	byProcessor := make(map[domain.Processor]gateway.Gateway, len(gateways))
	for _, gw := range gateways {
		byProcessor[gw.Processor()] = gw
	}
	return &Service{
		payments: payments,
		audits:   audits,
		notifier: notifier,
		gateways: byProcessor,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// RefreshPayment re-fetches processor state for one payment and applies the
// transition policy under the payment grace period.
func (s *Service) RefreshPayment(ctx context.Context, paymentID uuid.UUID) error {
	return s.refresh(ctx, paymentID, s.cfg.PaymentNotFoundGrace)
}

// RefreshDisbursement is RefreshPayment under the disbursement grace period.
func (s *Service) RefreshDisbursement(ctx context.Context, advanceID uuid.UUID) error {
	return s.refresh(ctx, advanceID, s.cfg.DisbursementNotFoundGrace)
}

// RefreshBatch sweeps unsettled payments. Per-record errors are logged and
// the sweep continues; the scheduler retries individual records later.
func (s *Service) RefreshBatch(ctx context.Context, limit int) error {
	records, err := s.payments.ListUnsettled(ctx, limit)
	if err != nil {
		return err
	}
	for _, rec := range records {
		grace := s.cfg.PaymentNotFoundGrace
		if rec.Type == domain.TypeAdvanceDisbursement || rec.Type == domain.TypePromotionDisbursement {
			grace = s.cfg.DisbursementNotFoundGrace
		}
		if err := s.refresh(ctx, rec.ID, grace); err != nil {
			s.log.Error().Err(err).Str("payment_id", rec.ID.String()).Msg("reconciliation pass failed")
		}
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, paymentID uuid.UUID, grace time.Duration) error {
	rec, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}

	// Terminal statuses are sticky; a record that already settled needs no
	// processor round trip.
	if rec.Status.IsTerminal() {
		s.log.Debug().Str("payment_id", rec.ID.String()).Str("status", string(rec.Status)).Msg("payment already terminal")
		return nil
	}

	result, err := s.fetchStatus(ctx, rec)
	if err != nil {
		return err
	}

	switch {
	case result.Status.IsRetryable():
		// Still in flight; the scheduler will poll again.
		s.log.Debug().Str("payment_id", rec.ID.String()).Str("status", string(result.Status)).Msg("payment not yet settled")
		return nil

	case result.Status == domain.StatusNotFound:
		return s.handleNotFound(ctx, rec, grace)

	case result.Status.IsTerminal():
		return s.applyTerminal(ctx, rec, result)

	default:
		s.log.Debug().Str("payment_id", rec.ID.String()).Str("status", string(result.Status)).Msg("no transition for fetched status")
		return nil
	}
}

// fetchStatus asks the owning processor for current state. When the owning
// processor was never persisted (a partial prior failure), the known
// processors are probed in priority order and NotFound answers are skipped.
func (s *Service) fetchStatus(ctx context.Context, rec *domain.PaymentRecord) (domain.TransactionResult, error) {
	// Polls run under the identity that submitted the transaction so the
	// shared service identity (and its limiter window) is only consumed by
	// disbursement lookups.
	lookup := domain.Lookup{ExternalID: rec.ExternalID, UserID: rec.LookupUser()}
	if rec.ExternalID == "" {
		lookup = domain.Lookup{ReferenceID: rec.ReferenceID, UserID: rec.LookupUser()}
	}

	if rec.ExternalProcessor != "" {
		gw, ok := s.gateways[rec.ExternalProcessor]
		if !ok {
			return domain.TransactionResult{}, fmt.Errorf("payment %s stored processor %s: %w", rec.ID, rec.ExternalProcessor, domain.ErrUnknownProcessor)
		}
		return gw.FetchTransaction(ctx, lookup)
	}

	for _, processor := range s.cfg.ProbeOrder {
		gw, ok := s.gateways[processor]
		if !ok {
			continue
		}
		result, err := gw.FetchTransaction(ctx, lookup)
		if err != nil {
			return domain.TransactionResult{}, err
		}
		if result.Status == domain.StatusNotFound {
			continue
		}
		return result, nil
	}

	// No probed processor knows the transaction.
	return domain.TransactionResult{
		ReferenceID: rec.ReferenceID,
		Status:      domain.StatusNotFound,
	}, nil
}

// handleNotFound applies the age-gated policy: a young record stays as-is
// because processor listings can lag even for transactions that ultimately
// succeed; past the grace period the processor has definitively lost track,
// so the payment is canceled and soft-deleted.
func (s *Service) handleNotFound(ctx context.Context, rec *domain.PaymentRecord, grace time.Duration) error {
	if rec.Age(s.now()) < grace {
		s.log.Debug().Str("payment_id", rec.ID.String()).Dur("age", rec.Age(s.now())).Msg("transaction not found within grace period, leaving pending")
		return nil
	}

	applied, err := s.payments.UpdateStatusIfNotTerminal(ctx, rec.ID, domain.StatusCanceled)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.payments.SoftDelete(ctx, rec.ID); err != nil {
		return err
	}

	s.recordTransition(ctx, rec, domain.StatusCanceled)
	s.notifier.PaymentFailed(ctx, rec, domain.StatusCanceled)
	s.notifier.StatusChanged(ctx, rec, rec.Status, domain.StatusCanceled)
	s.log.Info().Str("payment_id", rec.ID.String()).Msg("transaction lost at processor past grace period, canceled")
	return nil
}

func (s *Service) applyTerminal(ctx context.Context, rec *domain.PaymentRecord, result domain.TransactionResult) error {
	if result.Status == rec.Status {
		return nil
	}

	// When the original submission never recorded the external id, the full
	// outcome write backfills it together with the status; both writes carry
	// the not-terminal guard, so a concurrent pass cannot be overwritten.
	var applied bool
	var err error
	if rec.ExternalID == "" && result.ExternalID != "" {
		applied, err = s.payments.SetOutcome(ctx, rec.ID, result)
	} else {
		applied, err = s.payments.UpdateStatusIfNotTerminal(ctx, rec.ID, result.Status)
	}
	if err != nil {
		return err
	}
	if !applied {
		// A concurrent pass already settled the record.
		s.log.Warn().
			Str("payment_id", rec.ID.String()).
			Str("fetched_status", string(result.Status)).
			Msg("skipping transition, stored status already terminal")
		return nil
	}

	s.recordTransition(ctx, rec, result.Status)
	switch result.Status {
	case domain.StatusFailed, domain.StatusReturned, domain.StatusCanceled:
		s.notifier.PaymentFailed(ctx, rec, result.Status)
	}
	s.notifier.StatusChanged(ctx, rec, rec.Status, result.Status)
	return nil
}

// recordTransition writes the audit entry capturing previous and new status.
func (s *Service) recordTransition(ctx context.Context, rec *domain.PaymentRecord, next domain.CanonicalStatus) {
	metrics.ReconcileTransitions.WithLabelValues(string(rec.Status), string(next)).Inc()

	audit := domain.NewAuditRecord(rec.UserID, auditTypeReconcile, true, map[string]interface{}{
		"payment_id":      rec.ID.String(),
		"previous_status": string(rec.Status),
		"new_status":      string(next),
		"processor":       string(rec.ExternalProcessor),
	})
	if err := s.audits.Record(ctx, audit); err != nil {
		s.log.Warn().Err(err).Str("payment_id", rec.ID.String()).Msg("failed to write audit record")
	}
}
