package cardrail

import "github.com/rteixeira/payrail/internal/domain"

// NativeStatuses is the processor's documented transfer status vocabulary.
var NativeStatuses = []string{
	"pending",
	"processing",
	"complete",
	"failed",
	"error",
	"reversed",
	"canceled",
}

// NormalizeStatus maps a native status to the canonical vocabulary; anything
// undocumented maps to StatusUnknown.
func NormalizeStatus(raw string) domain.CanonicalStatus {
	switch raw {
	case "pending", "processing":
		return domain.StatusPending
	case "complete":
		return domain.StatusCompleted
	case "failed", "error":
		return domain.StatusFailed
	case "reversed":
		return domain.StatusReturned
	case "canceled":
		return domain.StatusCanceled
	default:
		return domain.StatusUnknown
	}
}
