package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics records JSON-RPC activity segmented by module and method.
type RPCMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// LedgerMetrics tracks protocol-level counters: agreements opened, matched,
// and terminated, plus the amounts moved through custody.
type LedgerMetrics struct {
	agreements *prometheus.CounterVec
	settled    prometheus.Counter
	claimed    prometheus.Counter
}

var (
	rpcMetricsOnce sync.Once
	rpcRegistry    *RPCMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// Metrics returns the lazily-initialised RPC metrics registry.
func Metrics() *RPCMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &RPCMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module, method, and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lend",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			rpcRegistry.requests,
			rpcRegistry.errors,
			rpcRegistry.latency,
		)
	})
	return rpcRegistry
}

// Observe records one handled request and its latency.
func (m *RPCMetrics) Observe(module, method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// ObserveError records one failed request with its status code.
func (m *RPCMetrics) ObserveError(module, method, status string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(module, method, status).Inc()
}

// Ledger returns the lazily-initialised protocol metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			agreements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "agreements_total",
				Help:      "Agreement transitions segmented by operation.",
			}, []string{"operation"}),
			settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "repaid_total",
				Help:      "Agreements settled by repayment.",
			}),
			claimed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lend",
				Subsystem: "ledger",
				Name:      "claimed_total",
				Help:      "Agreements terminated by collateral forfeiture.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.agreements,
			ledgerRegistry.settled,
			ledgerRegistry.claimed,
		)
	})
	return ledgerRegistry
}

// RecordOperation counts one successful agreement transition.
func (m *LedgerMetrics) RecordOperation(operation string) {
	if m == nil {
		return
	}
	m.agreements.WithLabelValues(operation).Inc()
	switch operation {
	case "repay":
		m.settled.Inc()
	case "claim":
		m.claimed.Inc()
	}
}
