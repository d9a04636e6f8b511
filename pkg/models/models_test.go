package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	for _, name := range []string{"idle", "takeoff", "flying", "delivering", "returning", "landing", "emergency"} {
		m, err := ParseMode(name)
		require.NoError(t, err)
		assert.Equal(t, name, m.String())
		assert.True(t, m.Valid())
	}

	_, err := ParseMode("hovering")
	assert.Error(t, err)

	assert.False(t, Mode(42).Valid())
	assert.Equal(t, "Mode(42)", Mode(42).String())
}

func TestModeJSON(t *testing.T) {
	type wrapper struct {
		Mode Mode `json:"mode"`
	}
	data, err := json.Marshal(wrapper{Mode: ModeReturning})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mode":"returning"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"landing"}`), &w))
	assert.Equal(t, ModeLanding, w.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"parked"}`), &w))

	_, err = json.Marshal(wrapper{Mode: Mode(-1)})
	assert.Error(t, err)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, DroneAvailable.Dispatchable())
	assert.True(t, DroneEmergencyStandby.Dispatchable())
	assert.False(t, DroneInFlight.Dispatchable())
	assert.False(t, DroneMaintenance.Simulatable())
	assert.False(t, DroneOffline.Simulatable())
	assert.True(t, DroneCharging.Simulatable())
	assert.False(t, DroneStatus("parked").Valid())

	assert.True(t, OrderInTransit.Active())
	assert.True(t, OrderCancelled.Terminal())
	assert.False(t, OrderPending.Active())

	assert.True(t, PriorityHigh.Preemptible())
	assert.False(t, PriorityLow.Preemptible())
	assert.False(t, PriorityEmergency.Preemptible())

	assert.Equal(t, DroneCriticalBattery, ReasonCriticalBattery.RetiredStatus())
	assert.Equal(t, DroneMaintenance, ReasonDelayedDelivery.RetiredStatus())
}

func TestAlertsDedupeAndExpire(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	alerts := Alerts{}

	assert.True(t, alerts.Raise(Alert{Type: AlertBatteryLow, RaisedAt: now}))
	assert.False(t, alerts.Raise(Alert{Type: AlertBatteryLow, RaisedAt: now.Add(time.Second)}))
	assert.True(t, alerts.Raise(Alert{Type: AlertGeofenceViolation, RaisedAt: now.Add(2 * time.Minute)}))
	require.Len(t, alerts, 2)
	assert.Equal(t, now, alerts[AlertBatteryLow].RaisedAt)

	removed := alerts.Expire(now.Add(6*time.Minute), DefaultAlertTTL)
	assert.Equal(t, 1, removed)
	assert.False(t, alerts.Has(AlertBatteryLow))
	assert.True(t, alerts.Has(AlertGeofenceViolation))

	// Once expired the same type can be raised again
	assert.True(t, alerts.Raise(Alert{Type: AlertBatteryLow, RaisedAt: now.Add(6 * time.Minute)}))
	list := alerts.List()
	require.Len(t, list, 2)
	assert.Equal(t, AlertGeofenceViolation, list[0].Type)
}

func TestFlightPathBound(t *testing.T) {
	var fp FlightPath
	base := time.Unix(0, 0)
	for i := 0; i < 350; i++ {
		fp.Append(PathPoint{Position: Position{Altitude: float64(i)}, Timestamp: base.Add(time.Duration(i) * time.Second)})
		assert.LessOrEqual(t, fp.Len(), FlightPathCapacity)
	}

	points := fp.Points()
	require.Len(t, points, FlightPathCapacity)
	assert.Equal(t, 250.0, points[0].Position.Altitude)
	assert.Equal(t, 349.0, points[len(points)-1].Position.Altitude)

	last, ok := fp.Last()
	require.True(t, ok)
	assert.Equal(t, 349.0, last.Position.Altitude)
}

func TestFlightPathPartial(t *testing.T) {
	var fp FlightPath
	_, ok := fp.Last()
	assert.False(t, ok)

	fp.Append(PathPoint{Position: Position{Latitude: 1}})
	fp.Append(PathPoint{Position: Position{Latitude: 2}})
	points := fp.Points()
	require.Len(t, points, 2)
	assert.Equal(t, 1.0, points[0].Position.Latitude)
}

func TestDroneSimStateCloneIsDeep(t *testing.T) {
	s := &DroneSimState{
		DroneID:     "d1",
		Destination: &Coordinates{Latitude: 1, Longitude: 2},
		Alerts:      Alerts{},
	}
	s.Alerts.Raise(Alert{Type: AlertBatteryLow})
	s.FlightPath.Append(PathPoint{Position: Position{Altitude: 10}})

	c := s.Clone()
	c.Destination.Latitude = 99
	c.Alerts.Raise(Alert{Type: AlertGeofenceViolation})
	c.FlightPath.Append(PathPoint{})

	assert.Equal(t, 1.0, s.Destination.Latitude)
	assert.Len(t, s.Alerts, 1)
	assert.Equal(t, 1, s.FlightPath.Len())
	assert.Equal(t, 2, c.FlightPath.Len())
}

func TestOrderCloneIsDeep(t *testing.T) {
	o := &OrderRecord{
		ID:                "o1",
		Route:             &Route{Waypoints: []Waypoint{{Kind: WaypointStart}}},
		EmergencyTracking: &EmergencyTracking{Failovers: []FailoverEvent{{FromDroneID: "d1"}}},
	}
	o.AppendHistory(OrderPending, "created", &Coordinates{Latitude: 5}, time.Now())

	c := o.Clone()
	c.Route.Waypoints[0].Kind = WaypointDelivery
	c.EmergencyTracking.Failovers[0].FromDroneID = "d9"
	c.TrackingHistory[0].Location.Latitude = 7
	c.AppendHistory(OrderProcessing, "assigned", nil, time.Now())

	assert.Equal(t, WaypointStart, o.Route.Waypoints[0].Kind)
	assert.Equal(t, "d1", o.EmergencyTracking.Failovers[0].FromDroneID)
	assert.Equal(t, 5.0, o.TrackingHistory[0].Location.Latitude)
	assert.Len(t, o.TrackingHistory, 1)
}

func TestTelemetrySampleSnapshot(t *testing.T) {
	s := &DroneSimState{
		DroneID:  "d1",
		Position: Position{Latitude: 0, Longitude: 0, Altitude: 50},
		Alerts:   Alerts{},
	}
	s.Alerts.Raise(Alert{Type: AlertBatteryLow})

	sample := NewTelemetrySample(s, time.Now())
	s.Alerts.Raise(Alert{Type: AlertGeofenceViolation})

	assert.Len(t, sample.Alerts, 1)
	assert.InDelta(t, 6378187.0, sample.ECEF[0], 1e-3)
	assert.NotEqual(t, sample.ID, NewTelemetrySample(s, time.Now()).ID)
}

func TestManualInterventionMatchesNoCandidate(t *testing.T) {
	err := fmt.Errorf("failover: %w", &ManualInterventionError{OrderID: "o1", Reason: ReasonCriticalBattery})
	assert.True(t, errors.Is(err, ErrNoCandidateDrone))

	var mi *ManualInterventionError
	require.True(t, errors.As(err, &mi))
	assert.Equal(t, "o1", mi.OrderID)

	tickErr := &TickStepError{DroneID: "d1", Err: ErrDroneNotFound}
	assert.ErrorIs(t, tickErr, ErrDroneNotFound)
}
