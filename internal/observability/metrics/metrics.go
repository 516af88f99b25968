package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentIntents   *prometheus.CounterVec
	reconciliations  *prometheus.CounterVec
	consumptions     *prometheus.CounterVec
	freeTierDenied   *prometheus.CounterVec
	processorFailure prometheus.Counter
}

// New registers the domain counters.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the domain counters on a specific registry, used by tests.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		paymentIntents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cvforge_payment_intents_total",
			Help: "Payment intents created, by product kind.",
		}, []string{"kind"}),
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cvforge_payment_reconciliations_total",
			Help: "Reconciliation outcomes, by transition result and status.",
		}, []string{"result", "status"}),
		consumptions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cvforge_entitlement_consumptions_total",
			Help: "Entitlement consumptions, by grant source.",
		}, []string{"source"}),
		freeTierDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cvforge_free_tier_denied_total",
			Help: "Free-tier requests denied after the daily limit.",
		}, []string{"feature"}),
		processorFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "cvforge_processor_failures_total",
			Help: "Failed calls to the external payment processor.",
		}),
	}
}

func (m *Metrics) RecordIntent(kind string) {
	if m == nil {
		return
	}
	m.paymentIntents.WithLabelValues(normalize(kind)).Inc()
}

func (m *Metrics) RecordReconciliation(result, status string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalize(result), normalize(status)).Inc()
}

func (m *Metrics) RecordConsumption(source string) {
	if m == nil {
		return
	}
	m.consumptions.WithLabelValues(normalize(source)).Inc()
}

func (m *Metrics) RecordFreeTierDenied(feature string) {
	if m == nil {
		return
	}
	m.freeTierDenied.WithLabelValues(normalize(feature)).Inc()
}

func (m *Metrics) RecordProcessorFailure() {
	if m == nil {
		return
	}
	m.processorFailure.Inc()
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unknown"
	}
	return value
}
