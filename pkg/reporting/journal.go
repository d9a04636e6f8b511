// Package reporting keeps a journal of what happened during a fleet run and
// turns it into an after-action report.
package reporting

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/picogrid/fleet-dispatch-sim/pkg/dispatch"
	"github.com/picogrid/fleet-dispatch-sim/pkg/failover"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/simulation"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
)

// Event types
const (
	EventTypeDispatch     = "dispatch"
	EventTypeFailover     = "failover"
	EventTypeDelivery     = "delivery"
	EventTypeLanding      = "landing"
	EventTypeFleet        = "fleet"
	EventTypeAlert        = "alert"
	EventTypeNotification = "notification"
	EventTypeSystem       = "system"
)

// maxEvents bounds the journal
const maxEvents = 10000

// Event is one journal entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp" yaml:"timestamp"`
	Type      string                 `json:"type" yaml:"type"`
	Severity  models.Severity        `json:"severity" yaml:"severity"`
	DroneID   string                 `json:"droneId,omitempty" yaml:"drone_id,omitempty"`
	OrderID   string                 `json:"orderId,omitempty" yaml:"order_id,omitempty"`
	Message   string                 `json:"message" yaml:"message"`
	Details   map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Metric is a tracked value with its history.
type Metric struct {
	Name        string        `json:"name" yaml:"name"`
	Value       float64       `json:"value" yaml:"value"`
	Unit        string        `json:"unit" yaml:"unit"`
	LastUpdated time.Time     `json:"lastUpdated" yaml:"last_updated"`
	History     []MetricPoint `json:"-" yaml:"-"`
}

// MetricPoint is a metric value at a point in time.
type MetricPoint struct {
	Timestamp time.Time
	Value     float64
}

// Summary condenses the journal.
type Summary struct {
	RunID       string
	StartTime   time.Time
	Duration    time.Duration
	TotalEvents int
	EventCounts map[string]int
	DroneEvents map[string]map[string]int
	Metrics     map[string]Metric
}

var (
	colorDebug    = color.New(color.FgHiBlack)
	colorInfo     = color.New(color.FgCyan)
	colorWarning  = color.New(color.FgYellow)
	colorCritical = color.New(color.FgRed, color.Bold)
	colorDrone    = color.New(color.FgBlue, color.Bold)
	colorSuccess  = color.New(color.FgGreen)
)

// Journal records mission events. It is a store.NotificationGateway, so
// ground-staff notices land in it, and a store.RealtimeBroadcaster, so it can
// sit next to the live broadcasters and pick up fleet, dispatch and alert
// events as they are fanned out.
type Journal struct {
	runID     string
	startTime time.Time
	clock     schedule.Clock
	out       io.Writer

	mu      sync.RWMutex
	events  []Event
	metrics map[string]Metric
}

var (
	_ store.NotificationGateway = (*Journal)(nil)
	_ store.RealtimeBroadcaster = (*Journal)(nil)
)

// NewJournal creates a journal echoing entries to out. A nil out keeps it quiet,
// an empty runID gets a random one.
func NewJournal(runID string, out io.Writer, clock schedule.Clock) *Journal {
	if runID == "" {
		runID = uuid.NewString()
	}
	if clock == nil {
		clock = schedule.RealClock{}
	}
	j := &Journal{
		runID:     runID,
		startTime: clock.Now(),
		clock:     clock,
		out:       out,
		metrics:   make(map[string]Metric),
	}
	j.print(models.SeverityInfo, "Run Started", fmt.Sprintf("ID: %s | Time: %s", runID, j.startTime.Format("15:04:05")))
	return j
}

// NewConsoleJournal echoes to stdout.
func NewConsoleJournal(runID string) *Journal {
	return NewJournal(runID, os.Stdout, nil)
}

// RunID returns the identifier of this run.
func (j *Journal) RunID() string { return j.runID }

// Notify records a ground-staff notice.
func (j *Journal) Notify(_ context.Context, recipients []string, message string, severity models.Severity) error {
	j.record(Event{
		Type:     EventTypeNotification,
		Severity: severity,
		Message:  message,
		Details:  map[string]interface{}{"recipients": strings.Join(recipients, ",")},
	})
	j.print(severity, "📣 Notice", fmt.Sprintf("%s → %s", message, strings.Join(recipients, ", ")))
	return nil
}

// Publish journals the payloads it understands and counts the rest.
func (j *Journal) Publish(_ context.Context, _ string, payload any) error {
	switch ev := payload.(type) {
	case simulation.FleetEvent:
		j.fleetEvent(ev)
	case dispatch.AssignmentEvent:
		j.assignment(ev)
	case telemetry.AlertEvent:
		j.LogAlert(ev.DroneID, ev.OrderID, ev.Alert)
	case failover.ProgressUpdate:
		j.UpdateMetric("progress."+ev.OrderID, ev.Progress.Percent, "%")
	case models.TelemetrySample:
		j.increment("telemetry_samples", "samples")
	default:
		j.increment("unclassified_publications", "messages")
	}
	return nil
}

func (j *Journal) fleetEvent(ev simulation.FleetEvent) {
	switch ev.Type {
	case simulation.EventDeliveryCompleted:
		j.record(Event{
			Timestamp: ev.At,
			Type:      EventTypeDelivery,
			Severity:  models.SeverityInfo,
			DroneID:   ev.DroneID,
			OrderID:   ev.OrderID,
			Message:   fmt.Sprintf("Order %s delivered by %s", ev.OrderID, ev.DroneID),
		})
		j.print(models.SeverityInfo, "📦 Delivered", fmt.Sprintf("Order: %s | Drone: %s", ev.OrderID, colorDrone.Sprint(ev.DroneID)))
	case simulation.EventDroneLanded:
		j.record(Event{
			Timestamp: ev.At,
			Type:      EventTypeLanding,
			Severity:  models.SeverityInfo,
			DroneID:   ev.DroneID,
			OrderID:   ev.OrderID,
			Message:   fmt.Sprintf("Drone %s landed (%s)", ev.DroneID, ev.Status),
			Details:   map[string]interface{}{"status": string(ev.Status)},
		})
	default:
		j.record(Event{
			Timestamp: ev.At,
			Type:      EventTypeFleet,
			Severity:  models.SeverityInfo,
			DroneID:   ev.DroneID,
			Message:   fmt.Sprintf("%s: %s", ev.Type, ev.DroneID),
		})
	}
}

func (j *Journal) assignment(ev dispatch.AssignmentEvent) {
	if ev.PreviousID != "" || ev.Reason != "" {
		j.LogFailover(ev.OrderID, ev.PreviousID, ev.DroneID, ev.Reason)
		return
	}
	j.LogDispatch(ev.OrderID, ev.DroneID, ev.EstimatedETA)
}

// LogDispatch records an emergency assignment.
func (j *Journal) LogDispatch(orderID, droneID string, eta time.Time) {
	j.record(Event{
		Type:     EventTypeDispatch,
		Severity: models.SeverityInfo,
		DroneID:  droneID,
		OrderID:  orderID,
		Message:  fmt.Sprintf("Emergency order %s assigned to %s", orderID, droneID),
		Details:  map[string]interface{}{"eta": eta.Format(time.RFC3339)},
	})
	j.print(models.SeverityInfo, "🚀 Dispatch",
		fmt.Sprintf("Order: %s | Drone: %s | ETA: %s", orderID, colorDrone.Sprint(droneID), eta.Format("15:04:05")))
}

// LogFailover records a reassignment.
func (j *Journal) LogFailover(orderID, from, to string, reason models.FailoverReason) {
	j.record(Event{
		Type:     EventTypeFailover,
		Severity: models.SeverityWarning,
		DroneID:  to,
		OrderID:  orderID,
		Message:  fmt.Sprintf("Order %s moved from %s to %s (%s)", orderID, from, to, reason),
		Details:  map[string]interface{}{"from": from, "reason": string(reason)},
	})
	j.print(models.SeverityWarning, "🔄 Failover",
		fmt.Sprintf("Order: %s | %s → %s | Reason: %s", orderID, from, colorDrone.Sprint(to), reason))
}

// LogAlert records a drone alert.
func (j *Journal) LogAlert(droneID, orderID string, a models.Alert) {
	j.record(Event{
		Timestamp: a.RaisedAt,
		Type:      EventTypeAlert,
		Severity:  a.Severity,
		DroneID:   droneID,
		OrderID:   orderID,
		Message:   a.Message,
		Details:   map[string]interface{}{"alert": string(a.Type)},
	})
	j.print(a.Severity, "⚠️ "+string(a.Type), fmt.Sprintf("Drone: %s | %s", colorDrone.Sprint(droneID), a.Message))
}

// LogError records a failure.
func (j *Journal) LogError(message string, err error, details map[string]interface{}) {
	if details == nil {
		details = make(map[string]interface{})
	}
	details["error"] = err.Error()

	j.record(Event{
		Type:     EventTypeSystem,
		Severity: models.SeverityCritical,
		Message:  message,
		Details:  details,
	})
	j.print(models.SeverityCritical, "Error", fmt.Sprintf("%s: %v", message, err))
}

// UpdateMetric sets a metric value and appends it to its history.
func (j *Journal) UpdateMetric(name string, value float64, unit string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setMetric(name, value, unit)
}

func (j *Journal) increment(name, unit string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setMetric(name, j.metrics[name].Value+1, unit)
}

func (j *Journal) setMetric(name string, value float64, unit string) {
	now := j.clock.Now()
	metric, exists := j.metrics[name]
	if !exists {
		metric = Metric{Name: name, Unit: unit}
	}
	metric.Value = value
	metric.LastUpdated = now
	metric.History = append(metric.History, MetricPoint{Timestamp: now, Value: value})

	// Keep only last 1000 points
	if len(metric.History) > 1000 {
		metric.History = metric.History[len(metric.History)-1000:]
	}
	j.metrics[name] = metric
}

// Events returns a copy of the journal.
func (j *Journal) Events() []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	events := make([]Event, len(j.events))
	copy(events, j.events)
	return events
}

// Metrics returns the current metrics.
func (j *Journal) Metrics() map[string]Metric {
	j.mu.RLock()
	defer j.mu.RUnlock()

	metrics := make(map[string]Metric, len(j.metrics))
	for k, v := range j.metrics {
		metrics[k] = v
	}
	return metrics
}

// Summary counts events by type and by drone.
func (j *Journal) Summary() Summary {
	j.mu.RLock()
	defer j.mu.RUnlock()

	eventCounts := make(map[string]int)
	droneEvents := make(map[string]map[string]int)
	for _, event := range j.events {
		eventCounts[event.Type]++
		if event.DroneID != "" {
			if droneEvents[event.DroneID] == nil {
				droneEvents[event.DroneID] = make(map[string]int)
			}
			droneEvents[event.DroneID][event.Type]++
		}
	}

	metrics := make(map[string]Metric, len(j.metrics))
	for k, v := range j.metrics {
		metrics[k] = v
	}
	return Summary{
		RunID:       j.runID,
		StartTime:   j.startTime,
		Duration:    j.clock.Now().Sub(j.startTime),
		TotalEvents: len(j.events),
		EventCounts: eventCounts,
		DroneEvents: droneEvents,
		Metrics:     metrics,
	}
}

// PrintSummary writes a formatted summary to w.
func (j *Journal) PrintSummary(w io.Writer) {
	summary := j.Summary()

	colorSuccess.Fprintln(w, "\n╔══════════════════════════════════════════════════════════╗")
	colorSuccess.Fprintf(w, "║              FLEET RUN SUMMARY - %-8s                ║\n", shortID(summary.RunID))
	colorSuccess.Fprintln(w, "╚══════════════════════════════════════════════════════════╝")

	fmt.Fprintf(w, "\n📊 Duration: %v | Total Events: %d\n", summary.Duration.Round(time.Second), summary.TotalEvents)

	fmt.Fprintln(w, "\n📈 Event Distribution:")
	for _, eventType := range sortedKeys(summary.EventCounts) {
		fmt.Fprintf(w, "   %-20s: %d\n", eventType, summary.EventCounts[eventType])
	}

	if len(summary.DroneEvents) > 0 {
		fmt.Fprintln(w, "\n🛸 Drone Activity:")
		drones := make([]string, 0, len(summary.DroneEvents))
		for id := range summary.DroneEvents {
			drones = append(drones, id)
		}
		sort.Strings(drones)
		for _, id := range drones {
			fmt.Fprintf(w, "\n   %s:\n", colorDrone.Sprint(id))
			for _, eventType := range sortedKeys(summary.DroneEvents[id]) {
				fmt.Fprintf(w, "      %-18s: %d\n", eventType, summary.DroneEvents[id][eventType])
			}
		}
	}

	if len(summary.Metrics) > 0 {
		fmt.Fprintln(w, "\n📊 Metrics:")
		names := make([]string, 0, len(summary.Metrics))
		for name := range summary.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := summary.Metrics[name]
			fmt.Fprintf(w, "   %-28s: %.2f %s\n", name, m.Value, m.Unit)
		}
	}

	colorSuccess.Fprintln(w, "\n════════════════════════════════════════════════════════════")
}

func (j *Journal) record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = j.clock.Now()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
	if len(j.events) > maxEvents {
		j.events = j.events[len(j.events)-maxEvents:]
	}
}

func (j *Journal) print(severity models.Severity, title, message string) {
	if j.out == nil {
		return
	}

	var c *color.Color
	switch severity {
	case models.SeverityWarning:
		c = colorWarning
	case models.SeverityCritical:
		c = colorCritical
	case models.SeverityInfo:
		c = colorInfo
	default:
		c = colorDebug
	}
	fmt.Fprintf(j.out, "[%s] %s %s | %s\n",
		j.clock.Now().Format("15:04:05.000"),
		c.Sprint(fmt.Sprintf("%-8s", severity)),
		title,
		message)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
