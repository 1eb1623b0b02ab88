package achwire

import "github.com/rteixeira/payrail/internal/domain"

// NativeStatuses is the full status vocabulary the processor documents for
// transactions. Kept exported so normalization totality is testable.
var NativeStatuses = []string{
	"CREATED",
	"QUEUED",
	"PROCESSING",
	"SETTLED",
	"RETURNED",
	"CANCELED",
	"DECLINED",
	"LOCKED",
}

// NormalizeStatus maps the processor's native status to the canonical
// vocabulary. Unrecognized values map to StatusUnknown rather than failing,
// so a vocabulary addition upstream degrades to "poll again later".
func NormalizeStatus(raw string) domain.CanonicalStatus {
	switch raw {
	case "CREATED", "QUEUED", "PROCESSING":
		return domain.StatusPending
	case "SETTLED":
		return domain.StatusCompleted
	case "RETURNED":
		return domain.StatusReturned
	case "CANCELED":
		return domain.StatusCanceled
	case "DECLINED", "LOCKED":
		return domain.StatusFailed
	default:
		return domain.StatusUnknown
	}
}
