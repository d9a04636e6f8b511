package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/picogrid/fleet-dispatch-sim/pkg/dispatch"
	"github.com/picogrid/fleet-dispatch-sim/pkg/failover"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/simulation"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
)

var runStart = time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

func newTestJournal(t *testing.T) (*Journal, *schedule.ManualClock, *bytes.Buffer) {
	t.Helper()
	clock := schedule.NewManualClock(runStart)
	var out bytes.Buffer
	return NewJournal("run-1234567890", &out, clock), clock, &out
}

func TestPublishRoutesPayloads(t *testing.T) {
	j, clock, out := newTestJournal(t)
	ctx := context.Background()

	clock.Advance(time.Minute)
	require.NoError(t, j.Publish(ctx, "fleet.events", dispatch.AssignmentEvent{
		OrderID: "o1", DroneID: "d1", EstimatedETA: runStart.Add(20 * time.Minute),
	}))
	require.NoError(t, j.Publish(ctx, "fleet.events", dispatch.AssignmentEvent{
		OrderID: "o1", DroneID: "d2", PreviousID: "d1", Reason: models.ReasonCriticalBattery,
	}))
	require.NoError(t, j.Publish(ctx, "fleet.events", simulation.FleetEvent{
		Type: simulation.EventDeliveryCompleted, DroneID: "d2", OrderID: "o1", At: clock.Now(),
	}))
	require.NoError(t, j.Publish(ctx, "fleet.events", simulation.FleetEvent{
		Type: simulation.EventDroneLanded, DroneID: "d2", Status: models.DroneAvailable, At: clock.Now(),
	}))
	require.NoError(t, j.Publish(ctx, "drone.d1.alerts", telemetry.AlertEvent{
		DroneID: "d1", OrderID: "o1",
		Alert: models.Alert{Type: models.AlertBatteryLow, Severity: models.SeverityWarning, Message: "battery at 18%", RaisedAt: clock.Now()},
	}))
	require.NoError(t, j.Publish(ctx, "order.o1.tracking", failover.ProgressUpdate{
		OrderID: "o1", Progress: models.Progress{Percent: 42.5},
	}))
	require.NoError(t, j.Publish(ctx, "drone.d1.telemetry", models.TelemetrySample{DroneID: "d1"}))
	require.NoError(t, j.Publish(ctx, "drone.d1.telemetry", models.TelemetrySample{DroneID: "d1"}))
	require.NoError(t, j.Publish(ctx, "misc", "hello"))

	events := j.Events()
	require.Len(t, events, 5)
	assert.Equal(t, EventTypeDispatch, events[0].Type)
	assert.Equal(t, EventTypeFailover, events[1].Type)
	assert.Equal(t, "d1", events[1].Details["from"])
	assert.Equal(t, EventTypeDelivery, events[2].Type)
	assert.Equal(t, EventTypeLanding, events[3].Type)
	assert.Equal(t, EventTypeAlert, events[4].Type)
	assert.Equal(t, models.SeverityWarning, events[4].Severity)

	metrics := j.Metrics()
	assert.Equal(t, 42.5, metrics["progress.o1"].Value)
	assert.Equal(t, 2.0, metrics["telemetry_samples"].Value)
	assert.Equal(t, 1.0, metrics["unclassified_publications"].Value)

	assert.Contains(t, out.String(), "Failover")
	assert.Contains(t, out.String(), "Delivered")
}

func TestNotifyRecordsRecipients(t *testing.T) {
	j, _, out := newTestJournal(t)

	require.NoError(t, j.Notify(context.Background(), []string{"ops@fleet", "lead@fleet"}, "order o9 needs a drone", models.SeverityCritical))

	events := j.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventTypeNotification, events[0].Type)
	assert.Equal(t, "ops@fleet,lead@fleet", events[0].Details["recipients"])
	assert.Contains(t, out.String(), "order o9 needs a drone")
}

func TestQuietJournalAndGeneratedRunID(t *testing.T) {
	j := NewJournal("", nil, schedule.NewManualClock(runStart))
	assert.NotEmpty(t, j.RunID())

	j.LogError("tick failed", assert.AnError, nil)
	events := j.Events()
	require.Len(t, events, 1)
	assert.Equal(t, assert.AnError.Error(), events[0].Details["error"])
}

func TestSummaryCountsByTypeAndDrone(t *testing.T) {
	j, clock, _ := newTestJournal(t)
	j.LogDispatch("o1", "d1", runStart)
	j.LogDispatch("o2", "d2", runStart)
	j.LogFailover("o1", "d1", "d3", models.ReasonDelayedDelivery)
	clock.Advance(90 * time.Second)

	summary := j.Summary()
	assert.Equal(t, "run-1234567890", summary.RunID)
	assert.Equal(t, 90*time.Second, summary.Duration)
	assert.Equal(t, 3, summary.TotalEvents)
	assert.Equal(t, 2, summary.EventCounts[EventTypeDispatch])
	assert.Equal(t, 1, summary.DroneEvents["d3"][EventTypeFailover])

	var buf bytes.Buffer
	j.PrintSummary(&buf)
	assert.Contains(t, buf.String(), "run-1234")
	assert.Contains(t, buf.String(), "dispatch")
}

func reportFixture(t *testing.T) (*Journal, store.DroneRepository, store.OrderRepository) {
	t.Helper()
	j, clock, _ := newTestJournal(t)

	j.LogDispatch("o1", "d1", runStart.Add(10*time.Minute))
	clock.Advance(2 * time.Minute)
	j.LogFailover("o1", "d1", "d2", models.ReasonCriticalBattery)
	clock.Advance(10 * time.Minute)
	j.LogDispatch("o2", "d3", runStart.Add(20*time.Minute))
	require.NoError(t, j.Notify(context.Background(), []string{"ops@fleet"}, "order o2 needs manual intervention", models.SeverityCritical))

	drones := store.NewMemoryDroneRepository(
		&models.DroneRecord{ID: "d1", Status: models.DroneCriticalBattery, BatteryLevel: 6},
		&models.DroneRecord{ID: "d2", Status: models.DroneAvailable, BatteryLevel: 71},
		&models.DroneRecord{ID: "d3", Status: models.DroneEmergencyAssigned, BatteryLevel: 40},
	)
	orders := store.NewMemoryOrderRepository(
		&models.OrderRecord{
			ID: "o1", Status: models.OrderDelivered, Priority: models.PriorityEmergency, IsEmergency: true,
			AssignedDrone:     "d2",
			EstimatedDelivery: runStart.Add(10 * time.Minute),
			ActualDelivery:    runStart.Add(13 * time.Minute),
			EmergencyTracking: &models.EmergencyTracking{State: models.EmergencyDelivered, FailoverCount: 1},
		},
		&models.OrderRecord{
			ID: "o2", Status: models.OrderInTransit, Priority: models.PriorityEmergency, IsEmergency: true,
			AssignedDrone:     "d3",
			EmergencyTracking: &models.EmergencyTracking{State: models.EmergencyFailover, RequiresManualIntervention: true},
		},
		&models.OrderRecord{ID: "o3", Status: models.OrderPending, Priority: models.PriorityLow},
	)
	return j, drones, orders
}

func TestGenerateReport(t *testing.T) {
	j, drones, orders := reportFixture(t)
	gen := NewGenerator(j, ReportConfig{OutputDir: t.TempDir()})

	report, err := gen.Generate(context.Background(), drones, orders)
	require.NoError(t, err)

	assert.Equal(t, "run-1234567890", report.Metadata.RunID)
	assert.Equal(t, 2, report.Summary.EmergencyOrders)
	assert.Equal(t, 1, report.Summary.Delivered)
	assert.Equal(t, 1, report.Summary.Failovers)
	assert.Equal(t, 1, report.Summary.ManualInterventions)
	assert.Equal(t, "3m0s", report.Summary.AverageDeliveryDelay)
	assert.Equal(t, "1 emergency orders need ground staff", report.Summary.Outcome)
	assert.Len(t, report.Summary.KeyEvents, 2)

	require.Len(t, report.Timeline, 4)
	assert.Equal(t, "00:00", report.Timeline[0].ElapsedTime)
	assert.Equal(t, "02:00", report.Timeline[1].ElapsedTime)
	assert.Equal(t, "Medium", report.Timeline[1].Impact)
	assert.Equal(t, "High", report.Timeline[3].Impact)

	require.Len(t, report.Orders, 3)
	assert.Equal(t, "3m0s", report.Orders[0].Delay)
	assert.True(t, report.Orders[1].RequiresManualIntervention)
	assert.Empty(t, report.Orders[2].EmergencyState)

	require.Len(t, report.Drones, 3)
	assert.Equal(t, 1, report.Drones[1].Failovers)

	titles := make([]string, 0, len(report.Recommendations))
	for _, r := range report.Recommendations {
		titles = append(titles, r.Title)
	}
	assert.ElementsMatch(t, []string{"Add standby capacity", "Review charging rotation"}, titles)
	assert.Nil(t, report.EventLog)
}

func TestSaveReportFormats(t *testing.T) {
	j, drones, orders := reportFixture(t)

	for _, format := range []string{"json", "yaml", "markdown"} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			gen := NewGenerator(j, ReportConfig{OutputDir: dir, Format: format, DetailLevel: "full"})
			report, err := gen.Generate(context.Background(), drones, orders)
			require.NoError(t, err)
			require.Len(t, report.EventLog, 4)

			path, err := gen.Save(report)
			require.NoError(t, err)
			assert.Equal(t, dir, filepath.Dir(path))
			assert.True(t, strings.HasPrefix(filepath.Base(path), "fleet_report_run-1234_"))

			data, err := os.ReadFile(path)
			require.NoError(t, err)

			switch format {
			case "json":
				var decoded map[string]any
				require.NoError(t, json.Unmarshal(data, &decoded))
				assert.Contains(t, decoded, "recommendations")
			case "yaml":
				var decoded map[string]any
				require.NoError(t, yaml.Unmarshal(data, &decoded))
				assert.Contains(t, decoded, "event_log")
			case "markdown":
				assert.Contains(t, string(data), "# Fleet Run Report")
				assert.Contains(t, string(data), "| o1 | delivered | emergency | d2 | 1 | 3m0s |")
			}
		})
	}
}

func TestSaveRejectsUnknownFormat(t *testing.T) {
	j, drones, orders := reportFixture(t)
	gen := NewGenerator(j, ReportConfig{OutputDir: t.TempDir(), Format: "html"})
	report, err := gen.Generate(context.Background(), drones, orders)
	require.NoError(t, err)

	_, err = gen.Save(report)
	assert.ErrorContains(t, err, "unsupported format")
}
