package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics records counters for the money-moving paths: ledger writes,
// order transitions and rejected debits.
type EngineMetrics struct {
	ledgerEntries     *prometheus.CounterVec
	orderTransitions  *prometheus.CounterVec
	insufficientFunds *prometheus.CounterVec
	checkoutDuration  *prometheus.HistogramVec
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	ledgerEntries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_total",
		Help: "Ledger entries written, labeled by transaction type.",
	}, []string{"type"})
	orderTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order state transitions, labeled by target status.",
	}, []string{"to"})
	insufficientFunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "insufficient_funds_total",
		Help: "Debits rejected for lack of available balance, labeled by operation.",
	}, []string{"operation"})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"payment_type"})
	reg.MustRegister(ledgerEntries, orderTransitions, insufficientFunds, checkoutDuration)
	return &EngineMetrics{
		ledgerEntries:     ledgerEntries,
		orderTransitions:  orderTransitions,
		insufficientFunds: insufficientFunds,
		checkoutDuration:  checkoutDuration,
	}
}

// IncLedgerEntry increments the ledger entry counter for the given type.
func (e *EngineMetrics) IncLedgerEntry(txnType string) {
	if e == nil || e.ledgerEntries == nil {
		return
	}
	e.ledgerEntries.WithLabelValues(normalizeLabel(txnType)).Inc()
}

// IncOrderTransition increments the transition counter for the target status.
func (e *EngineMetrics) IncOrderTransition(to string) {
	if e == nil || e.orderTransitions == nil {
		return
	}
	e.orderTransitions.WithLabelValues(normalizeLabel(to)).Inc()
}

// IncInsufficientFunds increments the rejected-debit counter for the operation.
func (e *EngineMetrics) IncInsufficientFunds(operation string) {
	if e == nil || e.insufficientFunds == nil {
		return
	}
	e.insufficientFunds.WithLabelValues(normalizeLabel(operation)).Inc()
}

// ObserveCheckout records the duration of a checkout request.
func (e *EngineMetrics) ObserveCheckout(paymentType string, duration time.Duration) {
	if e == nil || e.checkoutDuration == nil {
		return
	}
	e.checkoutDuration.WithLabelValues(normalizeLabel(paymentType)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
