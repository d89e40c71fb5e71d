package appointment

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters/histograms for booking flows. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	operations    *prometheus.CounterVec
	ledgerLatency *prometheus.HistogramVec
	ledgerRetries prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking operations by outcome",
		}, []string{"operation", "outcome"}),
		ledgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "ledger_latency_seconds",
			Help:      "Latency of booking ledger calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
		ledgerRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "ledger_retries_total",
			Help:      "Conditional creates retried after a transient ledger failure",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.ledgerLatency, m.ledgerRetries)
	return m
}

func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) ObserveLedger(call string, seconds float64) {
	if m == nil {
		return
	}
	m.ledgerLatency.WithLabelValues(call).Observe(seconds)
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.ledgerRetries.Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyTerminal):
		return "terminal"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}
