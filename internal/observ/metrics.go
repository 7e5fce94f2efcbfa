package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process counters exposed on /metrics.
type Metrics struct {
	EventsIngested    *prometheus.CounterVec
	EventsRejected    prometheus.Counter
	EventsDuplicate   prometheus.Counter
	ReconcileCycles   prometheus.Counter
	ReconcileFailures prometheus.Counter
	EventsSynthesized prometheus.Counter
}

// New registers the tradepulse counters on the given registerer.
// Pass prometheus.DefaultRegisterer in production wiring.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepulse_events_ingested_total",
			Help: "Lifecycle events accepted and appended to the event store.",
		}, []string{"event_type"}),
		EventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_events_rejected_total",
			Help: "Inbound webhook payloads dropped at validation.",
		}),
		EventsDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_events_duplicate_total",
			Help: "Appends ignored because the (trade_id, event_type, timestamp) key already exists.",
		}),
		ReconcileCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_reconcile_cycles_total",
			Help: "Reconciliation scheduler ticks that ran a cycle.",
		}),
		ReconcileFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_reconcile_failures_total",
			Help: "Per-trade reconciliation failures.",
		}),
		EventsSynthesized: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradepulse_events_synthesized_total",
			Help: "MFE updates synthesized for stale trades.",
		}),
	}
}
