package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SecureOpsMetrics tracks engine activity by operation and failure kind.
type SecureOpsMetrics struct {
	requests        prometheus.Counter
	approvals       *prometheus.CounterVec
	cancellations   *prometheus.CounterVec
	metaTxRejected  *prometheus.CounterVec
	whitelistDenied prometheus.Counter
	pendingRecords  prometheus.Gauge
}

var (
	secureOpsOnce     sync.Once
	secureOpsRegistry *SecureOpsMetrics
)

// SecureOps returns the process-wide engine metrics, registering them on
// first use.
func SecureOps() *SecureOpsMetrics {
	secureOpsOnce.Do(func() {
		secureOpsRegistry = &SecureOpsMetrics{
			requests: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "secureops_requests_total",
				Help: "Count of accepted time-delayed transaction requests.",
			}),
			approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "secureops_approvals_total",
				Help: "Count of completed transactions by approval path.",
			}, []string{"path"}),
			cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "secureops_cancellations_total",
				Help: "Count of cancelled transactions by cancellation path.",
			}, []string{"path"}),
			metaTxRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "secureops_metatx_rejected_total",
				Help: "Count of rejected meta-transactions by failure kind.",
			}, []string{"reason"}),
			whitelistDenied: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "secureops_whitelist_denied_total",
				Help: "Count of dispatches denied by the target whitelist.",
			}),
			pendingRecords: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "secureops_pending_records",
				Help: "Number of transactions currently in the pending set.",
			}),
		}
		prometheus.MustRegister(
			secureOpsRegistry.requests,
			secureOpsRegistry.approvals,
			secureOpsRegistry.cancellations,
			secureOpsRegistry.metaTxRejected,
			secureOpsRegistry.whitelistDenied,
			secureOpsRegistry.pendingRecords,
		)
	})
	return secureOpsRegistry
}

// ObserveRequest records an accepted request.
func (m *SecureOpsMetrics) ObserveRequest() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

// ObserveApproval records a completed transaction on the given path
// ("delay" or "meta").
func (m *SecureOpsMetrics) ObserveApproval(path string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(path).Inc()
}

// ObserveCancellation records a cancellation on the given path.
func (m *SecureOpsMetrics) ObserveCancellation(path string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(path).Inc()
}

// ObserveMetaTxRejected records a rejected meta-transaction by reason.
func (m *SecureOpsMetrics) ObserveMetaTxRejected(reason string) {
	if m == nil {
		return
	}
	m.metaTxRejected.WithLabelValues(reason).Inc()
}

// ObserveWhitelistDenied records a dispatch denied fail-closed.
func (m *SecureOpsMetrics) ObserveWhitelistDenied() {
	if m == nil {
		return
	}
	m.whitelistDenied.Inc()
}

// SetPending records the current pending-set size, typically once at
// startup from the restored aggregate.
func (m *SecureOpsMetrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pendingRecords.Set(float64(n))
}

// PendingAdded notes a record entering the pending set.
func (m *SecureOpsMetrics) PendingAdded() {
	if m == nil {
		return
	}
	m.pendingRecords.Inc()
}

// PendingSettled notes a pending record reaching a terminal status.
func (m *SecureOpsMetrics) PendingSettled() {
	if m == nil {
		return
	}
	m.pendingRecords.Dec()
}
