// Package metrics declares the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcessorCalls counts processor round trips by operation and outcome.
	ProcessorCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrail_processor_calls_total",
		Help: "Total processor calls",
	}, []string{"processor", "operation", "status"})

	// ThrottledFetches counts fetches short-circuited by the local limiter
	// before any network call.
	ThrottledFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrail_throttled_fetches_total",
		Help: "Fetches short-circuited by the sliding-window limiter",
	}, []string{"limiter"})

	// SessionRefreshes counts forced re-authentications after an
	// invalid-session response.
	SessionRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrail_session_refreshes_total",
		Help: "Processor session refreshes triggered by auth rejection",
	}, []string{"processor"})

	// ReconcileTransitions counts applied status transitions.
	ReconcileTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payrail_reconcile_transitions_total",
		Help: "Payment status transitions applied by reconciliation",
	}, []string{"from", "to"})
)
