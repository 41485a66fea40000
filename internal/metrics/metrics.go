// Package metrics exposes Prometheus collectors for action dispatch, chain
// calls and multisig coordination.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chedda"

var (
	// ActionsTotal counts dispatched actions by name and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "actions",
		Name:      "dispatched_total",
		Help:      "Total number of dispatched actions by name and outcome",
	}, []string{"action", "outcome"})

	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "actions",
		Name:      "duration_seconds",
		Help:      "Action handler latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"action"})

	// ChainCallDuration tracks JSON-RPC latency by method.
	ChainCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "call_duration_seconds",
		Help:      "Chain RPC call latency by method",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method"})

	ChainCallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "call_errors_total",
		Help:      "Chain RPC call failures by method",
	}, []string{"method"})

	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "transactions_total",
		Help:      "Submitted transactions by final status",
	}, []string{"status"})

	MultisigCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multisig",
		Name:      "created_total",
		Help:      "Multisig wallets resolved for a pair, by source (deployed, existing, store)",
	}, []string{"source"})

	ProposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multisig",
		Name:      "proposals_total",
		Help:      "Safe transaction service operations by kind and outcome",
	}, []string{"kind", "outcome"})

	LookupCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "multisig",
		Name:      "lookup_cache_hits_total",
		Help:      "Multisig lookups served from the in-process cache",
	})
)

// ObserveChainCall records latency and failure for one RPC method.
func ObserveChainCall(method string, started time.Time, err error) {
	ChainCallDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		ChainCallErrors.WithLabelValues(method).Inc()
	}
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler returns the HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
