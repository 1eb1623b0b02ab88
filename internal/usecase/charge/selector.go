package charge

import (
	"context"
	"hash/fnv"

	"github.com/google/uuid"

	"github.com/rteixeira/payrail/internal/domain"
)

// SelectProcessor deterministically routes an account to a processor:
// internal-ledger accounts always use the internal-ledger processor; external
// accounts follow the routing experiment and fall back to the default
// ACH-style processor.
func (s *Service) SelectProcessor(ctx context.Context, account *domain.BankAccount) domain.Processor {
	if account.Type == domain.AccountTypeLedger {
		return domain.ProcessorLedgerCore
	}
	if s.experiments != nil && s.experiments.UseCardRail(ctx, account.UserID) {
		return domain.ProcessorCardRail
	}
	return domain.ProcessorAchWire
}

// RolloutDecider is a hash-bucketed percentage rollout. A user's bucket is
// stable across calls, so routing stays deterministic per account.
type RolloutDecider struct {
	Percent int
}

func (d RolloutDecider) UseCardRail(_ context.Context, userID uuid.UUID) bool {
	if d.Percent <= 0 {
		return false
	}
	if d.Percent >= 100 {
		return true
	}
	h := fnv.New32a()
	h.Write(userID[:])
	return int(h.Sum32()%100) < d.Percent
}
