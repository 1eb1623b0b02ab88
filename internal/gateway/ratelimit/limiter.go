// Package ratelimit implements a sliding-window counter used to keep
// shared-identity processor calls under an upstream partner's ceiling.
package ratelimit

import (
	"sync"
	"time"

	"github.com/rteixeira/payrail/internal/metrics"
)

// Config describes one named limiter window.
type Config struct {
	WindowSeconds    int
	MaxCount         int
	PrecisionBuckets int
}

// Limiter is a bucketed sliding-window counter. The window is divided into
// PrecisionBuckets slots; expired slots are zeroed lazily on sample. Safe for
// concurrent use.
type Limiter struct {
	name string
	cfg  Config

	mu     sync.Mutex
	counts []int
	epochs []int64 // bucket-epoch stamp per slot, stale slots are reset

	now func() time.Time
}

// New creates a named limiter. The name identifies the endpoint class being
// guarded, e.g. "fetch-transaction-by-shared-identity".
func New(name string, cfg Config) *Limiter {
	if cfg.PrecisionBuckets <= 0 {
		cfg.PrecisionBuckets = 1
	}
	return &Limiter{
		name:   name,
		cfg:    cfg,
		counts: make([]int, cfg.PrecisionBuckets),
		epochs: make([]int64, cfg.PrecisionBuckets),
		now:    time.Now,
	}
}

// IsRateLimited samples the current window. When the ceiling has not been
// reached it counts the caller's imminent call and returns false; otherwise
// it returns true and the caller must not make the call.
func (l *Limiter) IsRateLimited() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucketWidth := float64(l.cfg.WindowSeconds) / float64(l.cfg.PrecisionBuckets)
	nowSec := float64(l.now().UnixNano()) / float64(time.Second)
	epoch := int64(nowSec / bucketWidth)

	total := 0
	for i := range l.counts {
		// A slot is live if its stamp falls inside the current window.
		if l.epochs[i] > epoch-int64(l.cfg.PrecisionBuckets) {
			total += l.counts[i]
		}
	}

	if total >= l.cfg.MaxCount {
		metrics.ThrottledFetches.WithLabelValues(l.name).Inc()
		return true
	}

	slot := int(epoch % int64(l.cfg.PrecisionBuckets))
	if l.epochs[slot] != epoch {
		l.counts[slot] = 0
		l.epochs[slot] = epoch
	}
	l.counts[slot]++
	return false
}

// Name returns the limiter's endpoint-class name.
func (l *Limiter) Name() string {
	return l.name
}
