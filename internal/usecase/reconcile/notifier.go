package reconcile

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/rteixeira/payrail/internal/domain"
)

// LogNotifier satisfies domain.Notifier by logging. Used where no dispatch
// collaborator is wired; real deployments substitute the notification
// service.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) PaymentFailed(_ context.Context, rec *domain.PaymentRecord, status domain.CanonicalStatus) {
	n.Log.Info().
		Str("payment_id", rec.ID.String()).
		Str("user_id", rec.UserID.String()).
		Str("status", string(status)).
		Msg("payment failed")
}

func (n LogNotifier) StatusChanged(_ context.Context, rec *domain.PaymentRecord, previous, next domain.CanonicalStatus) {
	n.Log.Info().
		Str("payment_id", rec.ID.String()).
		Str("previous", string(previous)).
		Str("next", string(next)).
		Msg("payment status changed")
}
