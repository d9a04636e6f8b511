// Package metrics holds the Prometheus collectors for the simulator,
// dispatcher and failover monitor.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the fleet metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Ticks            prometheus.Counter
	TickDuration     prometheus.Histogram
	TickStepFailures prometheus.Counter
	ActiveDrones     prometheus.Gauge
	Alerts           *prometheus.CounterVec

	TelemetrySamples prometheus.Counter
	FlushFailures    *prometheus.CounterVec

	Dispatches       *prometheus.CounterVec
	Failovers        *prometheus.CounterVec
	TrackingSessions prometheus.Gauge
}

// NewCollector registers the fleet metrics against reg, defaulting to the
// global registry when nil. Registering twice against the same registry
// returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_sim_ticks_total",
		Help: "Total number of completed simulation ticks.",
	}), "fleet_sim_ticks_total"); err != nil {
		return nil, err
	}
	if c.TickDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_sim_tick_duration_seconds",
		Help:    "Wall time spent advancing every active drone once.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}), "fleet_sim_tick_duration_seconds"); err != nil {
		return nil, err
	}
	if c.TickStepFailures, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_sim_tick_step_failures_total",
		Help: "Per-drone tick steps that failed and were rolled back.",
	}), "fleet_sim_tick_step_failures_total"); err != nil {
		return nil, err
	}
	if c.ActiveDrones, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_sim_active_drones",
		Help: "Drones currently loaded into the simulation.",
	}), "fleet_sim_active_drones"); err != nil {
		return nil, err
	}
	if c.Alerts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_alerts_total",
		Help: "Alerts raised, labeled by alert type.",
	}, []string{"type"}), "fleet_alerts_total"); err != nil {
		return nil, err
	}
	if c.TelemetrySamples, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_telemetry_samples_total",
		Help: "Telemetry samples produced by the simulation.",
	}), "fleet_telemetry_samples_total"); err != nil {
		return nil, err
	}
	if c.FlushFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_telemetry_flush_failures_total",
		Help: "Failed telemetry writes, labeled by target (sink, broadcast, drone_record).",
	}, []string{"target"}), "fleet_telemetry_flush_failures_total"); err != nil {
		return nil, err
	}
	if c.Dispatches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_dispatch_total",
		Help: "Emergency dispatch attempts, labeled by operation and outcome.",
	}, []string{"operation", "outcome"}), "fleet_dispatch_total"); err != nil {
		return nil, err
	}
	if c.Failovers, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_failovers_total",
		Help: "Failovers triggered by the monitor, labeled by reason and outcome.",
	}, []string{"reason", "outcome"}), "fleet_failovers_total"); err != nil {
		return nil, err
	}
	if c.TrackingSessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_tracking_sessions",
		Help: "Emergency orders under live tracking.",
	}), "fleet_tracking_sessions"); err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// TickCompleted records one finished tick.
func (c *Collector) TickCompleted(d time.Duration, activeDrones int) {
	if c == nil {
		return
	}
	c.Ticks.Inc()
	c.TickDuration.Observe(d.Seconds())
	c.ActiveDrones.Set(float64(activeDrones))
}

func (c *Collector) SetActiveDrones(n int) {
	if c == nil {
		return
	}
	c.ActiveDrones.Set(float64(n))
}

func (c *Collector) TickStepFailed() {
	if c == nil {
		return
	}
	c.TickStepFailures.Inc()
}

func (c *Collector) AlertRaised(alertType string) {
	if c == nil {
		return
	}
	c.Alerts.WithLabelValues(alertType).Inc()
}

func (c *Collector) SamplesRecorded(n int) {
	if c == nil {
		return
	}
	c.TelemetrySamples.Add(float64(n))
}

func (c *Collector) FlushFailed(target string) {
	if c == nil {
		return
	}
	c.FlushFailures.WithLabelValues(target).Inc()
}

func (c *Collector) DispatchOutcome(operation, outcome string) {
	if c == nil {
		return
	}
	c.Dispatches.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) FailoverOutcome(reason, outcome string) {
	if c == nil {
		return
	}
	c.Failovers.WithLabelValues(reason, outcome).Inc()
}

func (c *Collector) SetTrackingSessions(n int) {
	if c == nil {
		return
	}
	c.TrackingSessions.Set(float64(n))
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T, name string) (T, error) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
