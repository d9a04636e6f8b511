package reporting

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
)

// ReportConfig configures report generation
type ReportConfig struct {
	OutputDir string
	// Format is "json", "yaml" or "markdown"
	Format string
	// DetailLevel "full" includes the raw event log
	DetailLevel string
}

// Report is the after-action summary of a fleet run.
type Report struct {
	Metadata        ReportMetadata   `json:"metadata" yaml:"metadata"`
	Summary         ExecutiveSummary `json:"summary" yaml:"summary"`
	Timeline        []TimelineEntry  `json:"timeline" yaml:"timeline"`
	Drones          []DroneOutcome   `json:"drones" yaml:"drones"`
	Orders          []OrderOutcome   `json:"orders" yaml:"orders"`
	EventLog        []Event          `json:"eventLog,omitempty" yaml:"event_log,omitempty"`
	Recommendations []Recommendation `json:"recommendations" yaml:"recommendations"`
}

// ReportMetadata identifies the run
type ReportMetadata struct {
	RunID       string    `json:"runId" yaml:"run_id"`
	GeneratedAt time.Time `json:"generatedAt" yaml:"generated_at"`
	RunStart    time.Time `json:"runStart" yaml:"run_start"`
	RunEnd      time.Time `json:"runEnd" yaml:"run_end"`
	Duration    string    `json:"duration" yaml:"duration"`
}

// ExecutiveSummary is the high-level outcome
type ExecutiveSummary struct {
	Outcome              string   `json:"outcome" yaml:"outcome"`
	EmergencyOrders      int      `json:"emergencyOrders" yaml:"emergency_orders"`
	Delivered            int      `json:"delivered" yaml:"delivered"`
	Failovers            int      `json:"failovers" yaml:"failovers"`
	ManualInterventions  int      `json:"manualInterventions" yaml:"manual_interventions"`
	Alerts               int      `json:"alerts" yaml:"alerts"`
	AverageDeliveryDelay string   `json:"avgDeliveryDelay,omitempty" yaml:"avg_delivery_delay,omitempty"`
	KeyEvents            []string `json:"keyEvents" yaml:"key_events"`
}

// TimelineEntry is one significant event
type TimelineEntry struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	ElapsedTime string    `json:"elapsedTime" yaml:"elapsed_time"`
	EventType   string    `json:"eventType" yaml:"event_type"`
	Description string    `json:"description" yaml:"description"`
	Impact      string    `json:"impact" yaml:"impact"`
}

// DroneOutcome is a drone's final state and activity
type DroneOutcome struct {
	ID           string             `json:"id" yaml:"id"`
	Status       models.DroneStatus `json:"status" yaml:"status"`
	BatteryLevel float64            `json:"batteryLevel" yaml:"battery_level"`
	Deliveries   int                `json:"deliveries" yaml:"deliveries"`
	Alerts       int                `json:"alerts" yaml:"alerts"`
	Failovers    int                `json:"failovers" yaml:"failovers"`
}

// OrderOutcome is an order's final state
type OrderOutcome struct {
	ID                         string                `json:"id" yaml:"id"`
	Status                     models.OrderStatus    `json:"status" yaml:"status"`
	Priority                   models.Priority       `json:"priority" yaml:"priority"`
	EmergencyState             models.EmergencyState `json:"emergencyState,omitempty" yaml:"emergency_state,omitempty"`
	AssignedDrone              string                `json:"assignedDrone,omitempty" yaml:"assigned_drone,omitempty"`
	FailoverCount              int                   `json:"failoverCount" yaml:"failover_count"`
	RequiresManualIntervention bool                  `json:"requiresManualIntervention" yaml:"requires_manual_intervention"`
	// Delay is actual minus estimated delivery, empty when not delivered
	Delay string `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Recommendation is a suggested improvement
type Recommendation struct {
	Priority    string `json:"priority" yaml:"priority"` // "High", "Medium", "Low"
	Category    string `json:"category" yaml:"category"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Generator builds reports from a journal and the final records.
type Generator struct {
	journal *Journal
	config  ReportConfig
}

// NewGenerator creates a report generator
func NewGenerator(journal *Journal, config ReportConfig) *Generator {
	if config.Format == "" {
		config.Format = "json"
	}
	if config.OutputDir == "" {
		config.OutputDir = "reports"
	}
	return &Generator{journal: journal, config: config}
}

// Generate builds the report.
func (g *Generator) Generate(ctx context.Context, drones store.DroneRepository, orders store.OrderRepository) (*Report, error) {
	summary := g.journal.Summary()
	events := g.journal.Events()

	droneRecords, err := drones.Find(ctx, store.DroneFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list drones: %w", err)
	}
	orderRecords, err := orders.Find(ctx, store.OrderFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	report := &Report{
		Metadata: ReportMetadata{
			RunID:       summary.RunID,
			GeneratedAt: g.journal.clock.Now(),
			RunStart:    summary.StartTime,
			RunEnd:      summary.StartTime.Add(summary.Duration),
			Duration:    summary.Duration.Round(time.Second).String(),
		},
	}

	report.Timeline = g.buildTimeline(events, summary.StartTime)
	report.Drones = g.analyzeDrones(droneRecords, summary)
	report.Orders = g.analyzeOrders(orderRecords)
	report.Summary = g.generateExecutiveSummary(events, summary, orderRecords)
	if g.config.DetailLevel == "full" {
		report.EventLog = events
	}
	report.Recommendations = g.generateRecommendations(report)

	return report, nil
}

// Save writes the report to OutputDir and returns the file path.
func (g *Generator) Save(report *Report) (string, error) {
	if err := os.MkdirAll(g.config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := report.Metadata.GeneratedAt.Format("20060102_150405")
	base := filepath.Join(g.config.OutputDir, fmt.Sprintf("fleet_report_%s_%s", shortID(report.Metadata.RunID), timestamp))

	var (
		data []byte
		ext  string
		err  error
	)
	switch g.config.Format {
	case "json":
		ext = ".json"
		data, err = json.MarshalIndent(report, "", "  ")
	case "yaml":
		ext = ".yaml"
		data, err = yaml.Marshal(report)
	case "markdown":
		ext = ".md"
		data = []byte(g.markdown(report))
	default:
		return "", fmt.Errorf("unsupported format: %s", g.config.Format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := base + ext
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func (g *Generator) markdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Fleet Run Report\n\n")
	sb.WriteString(fmt.Sprintf("**Run ID:** %s\n", r.Metadata.RunID))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n", r.Metadata.GeneratedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("**Duration:** %s\n\n", r.Metadata.Duration))

	sb.WriteString("## Executive Summary\n\n")
	sb.WriteString(fmt.Sprintf("**Outcome:** %s\n\n", r.Summary.Outcome))
	sb.WriteString(fmt.Sprintf("- **Emergency orders:** %d\n", r.Summary.EmergencyOrders))
	sb.WriteString(fmt.Sprintf("- **Delivered:** %d\n", r.Summary.Delivered))
	sb.WriteString(fmt.Sprintf("- **Failovers:** %d\n", r.Summary.Failovers))
	sb.WriteString(fmt.Sprintf("- **Manual interventions:** %d\n", r.Summary.ManualInterventions))
	sb.WriteString(fmt.Sprintf("- **Alerts:** %d\n\n", r.Summary.Alerts))

	if len(r.Summary.KeyEvents) > 0 {
		sb.WriteString("### Key Events\n")
		for _, event := range r.Summary.KeyEvents {
			sb.WriteString(fmt.Sprintf("- %s\n", event))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Orders\n\n")
	sb.WriteString("| Order | Status | Priority | Drone | Failovers | Delay |\n|---|---|---|---|---|---|\n")
	for _, o := range r.Orders {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s |\n", o.ID, o.Status, o.Priority, o.AssignedDrone, o.FailoverCount, o.Delay))
	}

	sb.WriteString("\n## Drones\n\n")
	sb.WriteString("| Drone | Status | Battery | Deliveries | Alerts |\n|---|---|---|---|---|\n")
	for _, d := range r.Drones {
		sb.WriteString(fmt.Sprintf("| %s | %s | %.1f%% | %d | %d |\n", d.ID, d.Status, d.BatteryLevel, d.Deliveries, d.Alerts))
	}

	if len(r.Recommendations) > 0 {
		sb.WriteString("\n## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			sb.WriteString(fmt.Sprintf("### %s (%s Priority)\n", rec.Title, rec.Priority))
			sb.WriteString(fmt.Sprintf("%s\n\n", rec.Description))
		}
	}
	return sb.String()
}

func (g *Generator) generateExecutiveSummary(events []Event, summary Summary, orders []*models.OrderRecord) ExecutiveSummary {
	exec := ExecutiveSummary{
		Failovers: summary.EventCounts[EventTypeFailover],
		Alerts:    summary.EventCounts[EventTypeAlert],
		KeyEvents: make([]string, 0),
	}

	var delays []time.Duration
	for _, o := range orders {
		if !o.IsEmergency {
			continue
		}
		exec.EmergencyOrders++
		if o.Status == models.OrderDelivered {
			exec.Delivered++
			if !o.EstimatedDelivery.IsZero() && !o.ActualDelivery.IsZero() {
				delays = append(delays, o.ActualDelivery.Sub(o.EstimatedDelivery))
			}
		}
		if o.EmergencyTracking != nil && o.EmergencyTracking.RequiresManualIntervention {
			exec.ManualInterventions++
		}
	}
	if len(delays) > 0 {
		var total time.Duration
		for _, d := range delays {
			total += d
		}
		exec.AverageDeliveryDelay = (total / time.Duration(len(delays))).Round(time.Second).String()
	}

	switch {
	case exec.EmergencyOrders == 0:
		exec.Outcome = "No emergency orders were dispatched"
	case exec.Delivered == exec.EmergencyOrders:
		exec.Outcome = "Every emergency order was delivered"
	case exec.ManualInterventions > 0:
		exec.Outcome = fmt.Sprintf("%d emergency orders need ground staff", exec.ManualInterventions)
	default:
		exec.Outcome = fmt.Sprintf("%d of %d emergency orders delivered", exec.Delivered, exec.EmergencyOrders)
	}

	for _, event := range events {
		if len(exec.KeyEvents) >= 10 {
			break
		}
		if event.Type == EventTypeFailover || event.Severity == models.SeverityCritical {
			exec.KeyEvents = append(exec.KeyEvents, event.Message)
		}
	}
	return exec
}

func (g *Generator) buildTimeline(events []Event, startTime time.Time) []TimelineEntry {
	timeline := make([]TimelineEntry, 0)

	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, event := range sorted {
		if !isSignificant(event) {
			continue
		}
		timeline = append(timeline, TimelineEntry{
			Timestamp:   event.Timestamp,
			ElapsedTime: formatDuration(event.Timestamp.Sub(startTime)),
			EventType:   event.Type,
			Description: event.Message,
			Impact:      assessImpact(event),
		})
	}
	return timeline
}

func (g *Generator) analyzeDrones(records []*models.DroneRecord, summary Summary) []DroneOutcome {
	out := make([]DroneOutcome, 0, len(records))
	for _, d := range records {
		counts := summary.DroneEvents[d.ID]
		out = append(out, DroneOutcome{
			ID:           d.ID,
			Status:       d.Status,
			BatteryLevel: d.BatteryLevel,
			Deliveries:   counts[EventTypeDelivery],
			Alerts:       counts[EventTypeAlert],
			Failovers:    counts[EventTypeFailover],
		})
	}
	return out
}

func (g *Generator) analyzeOrders(records []*models.OrderRecord) []OrderOutcome {
	out := make([]OrderOutcome, 0, len(records))
	for _, o := range records {
		oc := OrderOutcome{
			ID:            o.ID,
			Status:        o.Status,
			Priority:      o.Priority,
			AssignedDrone: o.AssignedDrone,
		}
		if et := o.EmergencyTracking; et != nil {
			oc.EmergencyState = et.State
			oc.FailoverCount = et.FailoverCount
			oc.RequiresManualIntervention = et.RequiresManualIntervention
		}
		if o.Status == models.OrderDelivered && !o.EstimatedDelivery.IsZero() && !o.ActualDelivery.IsZero() {
			oc.Delay = o.ActualDelivery.Sub(o.EstimatedDelivery).Round(time.Second).String()
		}
		out = append(out, oc)
	}
	return out
}

func (g *Generator) generateRecommendations(r *Report) []Recommendation {
	recs := make([]Recommendation, 0)

	if r.Summary.ManualInterventions > 0 {
		recs = append(recs, Recommendation{
			Priority:    "High",
			Category:    "Fleet Capacity",
			Title:       "Add standby capacity",
			Description: fmt.Sprintf("%d emergency orders found no backup drone. Keep more emergency-capable drones on standby.", r.Summary.ManualInterventions),
		})
	}

	critical := 0
	for _, d := range r.Drones {
		if d.Status == models.DroneCriticalBattery {
			critical++
		}
	}
	if critical > 0 {
		recs = append(recs, Recommendation{
			Priority:    "Medium",
			Category:    "Battery",
			Title:       "Review charging rotation",
			Description: fmt.Sprintf("%d drones ended the run on critical battery.", critical),
		})
	}

	if r.Summary.Failovers > r.Summary.EmergencyOrders && r.Summary.EmergencyOrders > 0 {
		recs = append(recs, Recommendation{
			Priority:    "Medium",
			Category:    "Dispatch",
			Title:       "Raise the dispatch battery floor",
			Description: "Emergency orders averaged more than one failover each.",
		})
	}
	return recs
}

func isSignificant(event Event) bool {
	switch event.Type {
	case EventTypeDispatch, EventTypeFailover, EventTypeDelivery, EventTypeNotification:
		return true
	}
	return event.Severity == models.SeverityCritical
}

func assessImpact(event Event) string {
	switch {
	case event.Severity == models.SeverityCritical:
		return "High"
	case event.Type == EventTypeFailover || event.Severity == models.SeverityWarning:
		return "Medium"
	default:
		return "Low"
	}
}

func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
