// Package stats implements the §4.6 process-wide counters: monotonic
// unless explicitly reset, plus a gauge of current events across all
// windows. Every counter is mirrored onto a Prometheus registry, the way
// ingest/internal/metrics wires promauto counters for an
// ingestion path.
package stats

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/telhawk-systems/logiccorrelator/internal/window"
)

// Collector holds the §4.6 counters and derives the current-events gauge
// and per-type summary from the window store it was built against.
type Collector struct {
	store *window.Store

	eventsProcessed   atomic.Int64
	eventsRejected    atomic.Int64
	rulesEvaluated    atomic.Int64
	correlationsFound atomic.Int64
	alertsGenerated   atomic.Int64
	alertsDropped     atomic.Int64

	promEventsProcessed   prometheus.Counter
	promEventsRejected    prometheus.Counter
	promRulesEvaluated    prometheus.Counter
	promCorrelationsFound prometheus.Counter
	promAlertsGenerated   prometheus.Counter
	promAlertsDropped     prometheus.Counter
}

// New creates a Collector backed by store, registering its series with
// reg. Pass a fresh prometheus.NewRegistry() in tests to avoid the
// duplicate-registration panic promauto raises against the global default
// registerer.
func New(store *window.Store, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	c := &Collector{store: store}

	c.promEventsProcessed = factory.NewCounter(prometheus.CounterOpts{
		Name: "logiccorrelator_events_processed_total",
		Help: "Total events admitted to the window store.",
	})
	c.promEventsRejected = factory.NewCounter(prometheus.CounterOpts{
		Name: "logiccorrelator_events_rejected_total",
		Help: "Total events dropped for an EventSchemaError (missing type or timestamp).",
	})
	c.promRulesEvaluated = factory.NewCounter(prometheus.CounterOpts{
		Name: "logiccorrelator_rules_evaluated_total",
		Help: "Total rule evaluations performed.",
	})
	c.promCorrelationsFound = factory.NewCounter(prometheus.CounterOpts{
		Name: "logiccorrelator_correlations_found_total",
		Help: "Total rule evaluations where every condition matched.",
	})
	c.promAlertsGenerated = factory.NewCounter(prometheus.CounterOpts{
		Name: "logiccorrelator_alerts_generated_total",
		Help: "Total alerts constructed from matched rules.",
	})
	c.promAlertsDropped = factory.NewCounter(prometheus.CounterOpts{
		Name: "logiccorrelator_alerts_dropped_total",
		Help: "Total alert deliveries a sink failed or timed out on.",
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "logiccorrelator_current_events",
		Help: "Current total events retained across all windows.",
	}, func() float64 { return float64(store.Stats().CurrentEvents) })

	return c
}

func (c *Collector) IncEventsProcessed() {
	c.eventsProcessed.Add(1)
	c.promEventsProcessed.Inc()
}

func (c *Collector) IncEventsRejected() {
	c.eventsRejected.Add(1)
	c.promEventsRejected.Inc()
}

func (c *Collector) AddRulesEvaluated(n int64) {
	c.rulesEvaluated.Add(n)
	c.promRulesEvaluated.Add(float64(n))
}

func (c *Collector) IncCorrelationsFound() {
	c.correlationsFound.Add(1)
	c.promCorrelationsFound.Inc()
}

func (c *Collector) IncAlertsGenerated() {
	c.alertsGenerated.Add(1)
	c.promAlertsGenerated.Inc()
}

func (c *Collector) IncAlertsDropped() {
	c.alertsDropped.Add(1)
	c.promAlertsDropped.Inc()
}

// Snapshot is a point-in-time read of every counter plus the window
// store's derived gauges, supplementing the ported
// event_aggregator.py::get_stats shape with events_per_type and
// windows_active.
type Snapshot struct {
	EventsProcessed   int64          `json:"events_processed"`
	EventsRejected    int64          `json:"events_rejected"`
	RulesEvaluated    int64          `json:"rules_evaluated"`
	CorrelationsFound int64          `json:"correlations_found"`
	AlertsGenerated   int64          `json:"alerts_generated"`
	AlertsDropped     int64          `json:"alerts_dropped"`
	CurrentEvents     int64          `json:"current_events"`
	WindowsActive     int            `json:"windows_active"`
	EventsPerType     map[string]int `json:"events_per_type"`
}

// Snapshot returns the current value of every counter and gauge. Readable
// at any time by the host, per §4.6.
func (c *Collector) Snapshot() Snapshot {
	st := c.store.Stats()
	return Snapshot{
		EventsProcessed:   c.eventsProcessed.Load(),
		EventsRejected:    c.eventsRejected.Load(),
		RulesEvaluated:    c.rulesEvaluated.Load(),
		CorrelationsFound: c.correlationsFound.Load(),
		AlertsGenerated:   c.alertsGenerated.Load(),
		AlertsDropped:     c.alertsDropped.Load(),
		CurrentEvents:     st.CurrentEvents,
		WindowsActive:     st.WindowsActive,
		EventsPerType:     c.store.Summary(),
	}
}

// Reset zeroes every monotonic counter. The Prometheus series are left
// alone — Prometheus counters are defined to never decrease — so this is
// for tests that want a clean Snapshot, not for production use.
func (c *Collector) Reset() {
	c.eventsProcessed.Store(0)
	c.eventsRejected.Store(0)
	c.rulesEvaluated.Store(0)
	c.correlationsFound.Store(0)
	c.alertsGenerated.Store(0)
	c.alertsDropped.Store(0)
}
