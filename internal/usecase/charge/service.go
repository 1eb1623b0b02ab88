// Package charge orchestrates one attempted money movement end to end:
// select processor, validate eligibility, claim the payment record, submit to
// the processor, persist the outcome and emit an audit entry.
package charge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rteixeira/payrail/internal/domain"
	"github.com/rteixeira/payrail/internal/gateway"
	"github.com/rteixeira/payrail/internal/usecase/eligibility"
)

const auditTypeBankCharge = "bank_charge"

// Input identifies the payment being attempted and carries the immutable
// transaction request.
type Input struct {
	PaymentID uuid.UUID
	AccountID uuid.UUID
	Request   domain.TransactionRequest
}

// Service is the transaction orchestrator.
type Service struct {
	payments    domain.PaymentRepository
	accounts    domain.AccountRepository
	audits      domain.AuditRepository
	experiments domain.ExperimentDecider
	gateways    map[domain.Processor]gateway.Gateway
	eligCfg     eligibility.Config
	log         zerolog.Logger
	now         func() time.Time
}

// NewService creates the orchestrator. Each supplied gateway registers under
// its own processor variant.
func NewService(
	payments domain.PaymentRepository,
	accounts domain.AccountRepository,
	audits domain.AuditRepository,
	experiments domain.ExperimentDecider,
	eligCfg eligibility.Config,
	log zerolog.Logger,
	gateways ...gateway.Gateway,
) *Service {
	byProcessor := make(map[domain.Processor]gateway.Gateway, len(gateways))
	for _, gw := range gateways {
		byProcessor[gw.Processor()] = gw
	}
	return &Service{
		payments:    payments,
		accounts:    accounts,
		audits:      audits,
		experiments: experiments,
		gateways:    byProcessor,
		eligCfg:     eligCfg,
		log:         log,
		now:         time.Now,
	}
}

// ChargeBankAccount runs the charge state machine:
// Start -> ProcessorSelected -> EligibilityChecked -> Submitted -> {Success | Failure}.
//
// The payment record is claimed (processor + reference persisted) before the
// network call, so a crash mid-call still lets reconciliation find the
// in-flight transaction. Of two concurrent attempts for the same payment,
// exactly one wins the claim; the loser receives ErrTransactionConflict and
// never reaches the processor.
func (s *Service) ChargeBankAccount(ctx context.Context, in Input) (domain.TransactionResult, error) {
	account, err := s.accounts.GetByID(ctx, in.AccountID)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	// Fraud short-circuit: reject before any processor is selected.
	if account.FraudFlagged {
		s.audit(ctx, account.UserID, false, map[string]interface{}{
			"payment_id": in.PaymentID.String(),
			"reason":     "fraud_hold",
		})
		return domain.TransactionResult{}, domain.ErrFraudHold
	}

	processor := s.SelectProcessor(ctx, account)
	gw, ok := s.gateways[processor]
	if !ok {
		return domain.TransactionResult{}, fmt.Errorf("no gateway registered for %s: %w", processor, domain.ErrUnknownProcessor)
	}

	if err := s.checkEligibility(ctx, account, in.Request); err != nil {
		s.audit(ctx, account.UserID, false, map[string]interface{}{
			"payment_id": in.PaymentID.String(),
			"reason":     "ineligible",
			"error":      err.Error(),
		})
		return domain.TransactionResult{}, err
	}

	// Persist intent before the external call.
	if err := s.payments.ClaimForSubmission(ctx, in.PaymentID, processor, in.Request.ReferenceID); err != nil {
		return domain.TransactionResult{}, err
	}

	result, err := gw.CreateTransaction(ctx, in.Request)
	if err != nil {
		// Transport failure: the scheduling collaborator owns the retry; the
		// claim stays in place so reconciliation can find the transaction if
		// it did reach the processor.
		return domain.TransactionResult{}, err
	}

	applied, err := s.payments.SetOutcome(ctx, in.PaymentID, result)
	if err != nil {
		return domain.TransactionResult{}, err
	}
	if !applied {
		// A reconciliation pass settled the record while the processor call
		// was in flight; its terminal status stands.
		s.log.Warn().
			Str("payment_id", in.PaymentID.String()).
			Str("submission_status", string(result.Status)).
			Msg("outcome not recorded, payment already settled")
	}

	if s.isFailure(result.Status) {
		s.audit(ctx, account.UserID, false, map[string]interface{}{
			"payment_id":  in.PaymentID.String(),
			"processor":   string(result.Processor),
			"status":      string(result.Status),
			"external_id": result.ExternalID,
			"raw_outcome": result.RawOutcome,
		})
		return result, &domain.PaymentError{Status: result.Status, Result: result}
	}

	s.audit(ctx, account.UserID, true, map[string]interface{}{
		"payment_id":  in.PaymentID.String(),
		"processor":   string(result.Processor),
		"status":      string(result.Status),
		"external_id": result.ExternalID,
		"amount":      in.Request.Amount.String(),
	})
	return result, nil
}

// Retrieve re-fetches processor state for an existing payment, resolving the
// owning processor from the stored record.
func (s *Service) Retrieve(ctx context.Context, paymentID uuid.UUID) (domain.TransactionResult, error) {
	rec, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return domain.TransactionResult{}, err
	}

	gw, ok := s.gateways[rec.ExternalProcessor]
	if !ok {
		return domain.TransactionResult{}, fmt.Errorf("payment %s has no resolvable processor: %w", paymentID, domain.ErrUnknownProcessor)
	}

	lookup := domain.Lookup{ExternalID: rec.ExternalID, UserID: rec.LookupUser()}
	if rec.ExternalID == "" {
		lookup = domain.Lookup{ReferenceID: rec.ReferenceID, UserID: rec.LookupUser()}
	}
	return gw.FetchTransaction(ctx, lookup)
}

func (s *Service) checkEligibility(ctx context.Context, account *domain.BankAccount, req domain.TransactionRequest) error {
	now := s.now()

	var prior []*domain.PaymentRecord
	if req.Type == domain.TypeAdvancePayment && req.CorrespondingID != nil {
		since := now.Add(-s.eligCfg.RepeatChargeCoolDown)
		loaded, err := s.payments.ListByCorresponding(ctx, *req.CorrespondingID, since)
		if err != nil {
			return err
		}
		prior = loaded
	}

	return eligibility.Validate(s.eligCfg, eligibility.Input{
		Account:       account,
		Request:       req,
		PriorPayments: prior,
		Now:           now,
	})
}

// isFailure reports whether the submission outcome is a non-successful
// terminal status the orchestrator must raise as a PaymentError.
func (s *Service) isFailure(status domain.CanonicalStatus) bool {
	switch status {
	case domain.StatusCanceled, domain.StatusReturned, domain.StatusFailed, domain.StatusInvalidRequest:
		return true
	}
	return false
}

func (s *Service) audit(ctx context.Context, userID uuid.UUID, successful bool, extra map[string]interface{}) {
	rec := domain.NewAuditRecord(userID, auditTypeBankCharge, successful, extra)
	if err := s.audits.Record(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to write audit record")
	}
}
