package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/fleet-dispatch-sim/pkg/battery"
	"github.com/picogrid/fleet-dispatch-sim/pkg/geofence"
	"github.com/picogrid/fleet-dispatch-sim/pkg/kinematics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
)

var (
	base    = models.Coordinates{Latitude: 40.0, Longitude: -74.0}
	dropOff = models.Coordinates{Latitude: 40.0, Longitude: -73.99}
	epoch   = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

type harness struct {
	sched   *Scheduler
	clock   *schedule.ManualClock
	exec    *schedule.ManualExecutor
	drones  *store.MemoryDroneRepository
	orders  *store.MemoryOrderRepository
	metrics *metrics.Collector
}

func newHarness(t *testing.T, cfg Config, drones []*models.DroneRecord, orders ...*models.OrderRecord) *harness {
	t.Helper()

	clock := schedule.NewManualClock(epoch)
	exec := schedule.NewManualExecutor(clock)
	m, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	h := &harness{
		clock:   clock,
		exec:    exec,
		drones:  store.NewMemoryDroneRepository(drones...),
		orders:  store.NewMemoryOrderRepository(orders...),
		metrics: m,
	}

	rng := rand.New(rand.NewSource(1))
	h.sched, err = NewScheduler(cfg, Dependencies{
		Drones:     h.drones,
		Orders:     h.orders,
		Kinematics: kinematics.NewEngine(kinematics.DefaultParams(), rng),
		Battery:    battery.NewModel(battery.DefaultParams(), rng),
		Executor:   exec,
		Clock:      clock,
		Metrics:    m,
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)
	return h
}

// tick advances the manual clock by dt and runs one tick.
func (h *harness) tick(t *testing.T, dt time.Duration) {
	t.Helper()
	h.clock.Advance(dt)
	require.NoError(t, h.sched.Tick(context.Background()))
}

func (h *harness) state(t *testing.T, id string) models.DroneSimState {
	t.Helper()
	st, err := h.sched.Query(id)
	require.NoError(t, err)
	return st
}

func (h *harness) record(t *testing.T, id string) *models.DroneRecord {
	t.Helper()
	rec, err := h.drones.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func droneAt(id string, c models.Coordinates, level float64) *models.DroneRecord {
	return &models.DroneRecord{
		ID:           id,
		Model:        "quad-x4",
		Status:       models.DroneAvailable,
		BatteryLevel: level,
		Location:     models.Position{Latitude: c.Latitude, Longitude: c.Longitude},
		MaxPayload:   5,
		MaxRange:     30,
		Reliability:  90,
	}
}

func TestStartLoadsSimulatableDrones(t *testing.T) {
	grounded := droneAt("d3", base, 80)
	grounded.Status = models.DroneMaintenance
	offline := droneAt("d4", base, 80)
	offline.Status = models.DroneOffline

	h := newHarness(t, Config{TickInterval: time.Hour, Exclude: []string{"d2"}},
		[]*models.DroneRecord{droneAt("d1", base, 80), droneAt("d2", base, 80), grounded, offline, droneAt("d5", base, 80)})

	ctx := context.Background()
	require.NoError(t, h.sched.Start(ctx))
	require.NoError(t, h.sched.Start(ctx))
	assert.True(t, h.sched.Running())
	assert.Equal(t, []string{"d1", "d5"}, h.sched.Registry().IDs())
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.ActiveDrones))

	require.NoError(t, h.sched.Stop(ctx))
	require.NoError(t, h.sched.Stop(ctx))
	assert.False(t, h.sched.Running())
	assert.Zero(t, h.sched.Registry().Len())
}

func TestAddDroneSeedsFromActiveOrder(t *testing.T) {
	rec := droneAt("d1", base, 70)
	rec.Status = models.DroneInFlight
	rec.CurrentOrderID = "o1"
	order := &models.OrderRecord{
		ID:            "o1",
		Status:        models.OrderInTransit,
		Priority:      models.PriorityEmergency,
		Delivery:      models.Location{Coordinates: dropOff},
		AssignedDrone: "d1",
	}

	h := newHarness(t, Config{}, []*models.DroneRecord{rec, droneAt("d2", base, 60)}, order)
	ctx := context.Background()
	require.NoError(t, h.sched.AddDrone(ctx, "d1"))
	require.NoError(t, h.sched.AddDrone(ctx, "d2"))
	require.NoError(t, h.sched.AddDrone(ctx, "d1"))

	st := h.state(t, "d1")
	assert.Equal(t, models.ModeFlying, st.Mode)
	require.NotNil(t, st.Destination)
	assert.Equal(t, dropOff, *st.Destination)
	assert.True(t, st.EmergencyMode)
	assert.Equal(t, "o1", st.OrderID)
	assert.Equal(t, 50.0, st.Position.Altitude)

	idle := h.state(t, "d2")
	assert.Equal(t, models.ModeIdle, idle.Mode)
	assert.Nil(t, idle.Destination)

	err := h.sched.AddDrone(ctx, "ghost")
	assert.ErrorIs(t, err, models.ErrDroneNotFound)
}

func TestTickMovesDroneTowardDestination(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90)})
	require.NoError(t, h.sched.AddDrone(context.Background(), "d1"))
	require.NoError(t, h.sched.Dispatch("d1", Mission{OrderID: "o1", Waypoints: []models.Coordinates{dropOff}}))

	h.tick(t, 2*time.Second)
	assert.Equal(t, models.ModeTakeoff, h.state(t, "d1").Mode)

	for i := 0; i < 13; i++ {
		h.tick(t, 2*time.Second)
	}
	st := h.state(t, "d1")
	assert.Equal(t, models.ModeFlying, st.Mode)
	assert.Equal(t, 50.0, st.Position.Altitude)

	before := st.Position.Coordinates().DistanceMeters(dropOff)
	h.tick(t, 5*time.Second)
	st = h.state(t, "d1")
	after := st.Position.Coordinates().DistanceMeters(dropOff)
	assert.InDelta(t, 75, before-after, 0.5)
	assert.Less(t, st.Battery.Level, 90.0)
	assert.Equal(t, 15, st.FlightPath.Len())
	assert.Equal(t, 15.0, testutil.ToFloat64(h.metrics.Ticks))
}

func TestZeroElapsedTickIsNoop(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90)})
	require.NoError(t, h.sched.AddDrone(context.Background(), "d1"))
	require.NoError(t, h.sched.Dispatch("d1", Mission{Waypoints: []models.Coordinates{dropOff}}))

	require.NoError(t, h.sched.Tick(context.Background()))
	st := h.state(t, "d1")
	assert.Equal(t, models.ModeIdle, st.Mode)
	assert.Equal(t, 90.0, st.Battery.Level)
	assert.Zero(t, st.FlightPath.Len())
}

func TestDeliveryCompletesAfterDwellAndDroneLands(t *testing.T) {
	rec := droneAt("d1", dropOff, 80)
	rec.Status = models.DroneInFlight
	rec.CurrentOrderID = "o1"
	order := &models.OrderRecord{
		ID:            "o1",
		Status:        models.OrderInTransit,
		Priority:      models.PriorityEmergency,
		Delivery:      models.Location{Coordinates: dropOff},
		AssignedDrone: "d1",
		EmergencyTracking: &models.EmergencyTracking{
			State:        models.EmergencyAssigned,
			LiveTracking: true,
		},
	}
	h := newHarness(t, Config{}, []*models.DroneRecord{rec}, order)
	ctx := context.Background()
	require.NoError(t, h.sched.AddDrone(ctx, "d1"))

	h.tick(t, 2*time.Second)
	assert.Equal(t, models.ModeDelivering, h.state(t, "d1").Mode)
	assert.Equal(t, 1, h.exec.Pending())

	// dwell is not over yet
	assert.Zero(t, h.exec.Advance(29*time.Second))
	assert.Equal(t, 1, h.exec.Advance(time.Second))

	o, err := h.orders.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, o.Status)
	assert.Equal(t, h.clock.Now(), o.ActualDelivery)
	require.NotEmpty(t, o.TrackingHistory)
	assert.Equal(t, models.OrderDelivered, o.TrackingHistory[len(o.TrackingHistory)-1].Status)
	assert.Equal(t, models.EmergencyDelivered, o.EmergencyTracking.State)
	assert.False(t, o.EmergencyTracking.LiveTracking)

	d := h.record(t, "d1")
	assert.Equal(t, models.DroneReturning, d.Status)
	assert.Empty(t, d.CurrentOrderID)

	st := h.state(t, "d1")
	assert.Equal(t, models.ModeReturning, st.Mode)
	assert.Empty(t, st.OrderID)

	for i := 0; i < 30 && h.state(t, "d1").Mode != models.ModeIdle; i++ {
		h.tick(t, 2*time.Second)
	}
	assert.Equal(t, models.ModeIdle, h.state(t, "d1").Mode)
	assert.Equal(t, models.DroneAvailable, h.record(t, "d1").Status)
}

func TestCriticalBatteryLatchesUntilLanding(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 12)})
	require.NoError(t, h.sched.AddDrone(context.Background(), "d1"))
	require.NoError(t, h.sched.Dispatch("d1", Mission{OrderID: "o1", Waypoints: []models.Coordinates{dropOff}}))

	var st models.DroneSimState
	for i := 0; i < 10; i++ {
		h.tick(t, time.Minute)
		st = h.state(t, "d1")
		if st.Mode == models.ModeEmergency {
			break
		}
	}
	require.Equal(t, models.ModeEmergency, st.Mode)
	assert.Less(t, st.Battery.Level, 10.0)
	assert.True(t, st.EmergencyMode)
	assert.True(t, st.CriticalLatched)
	assert.True(t, st.Alerts.Has(models.AlertEmergencyLanding))
	assert.True(t, st.Alerts.Has(models.AlertBatteryLow))

	assert.ErrorIs(t, h.sched.SetEmergencyMode("d1", false), models.ErrDroneGrounded)
	assert.ErrorIs(t, h.sched.Dispatch("d1", Mission{Waypoints: []models.Coordinates{base}}), models.ErrDroneGrounded)
	require.NoError(t, h.sched.Recall("d1"))

	for i := 0; i < 20; i++ {
		h.tick(t, 5*time.Second)
		st = h.state(t, "d1")
		if st.Mode == models.ModeIdle {
			break
		}
		require.Equal(t, models.ModeEmergency, st.Mode, "mode must stay emergency until touchdown")
	}
	assert.Equal(t, models.ModeIdle, st.Mode)
	assert.False(t, st.CriticalLatched)
	assert.False(t, st.EmergencyMode)
	assert.Equal(t, models.DroneCriticalBattery, h.record(t, "d1").Status)
}

func TestFailedStepLeavesStateUntouched(t *testing.T) {
	broken := droneAt("bad", base, 80)
	broken.Location.Latitude = math.NaN()
	h := newHarness(t, Config{}, []*models.DroneRecord{broken, droneAt("good", base, 80)})
	ctx := context.Background()
	require.NoError(t, h.sched.AddDrone(ctx, "bad"))
	require.NoError(t, h.sched.AddDrone(ctx, "good"))

	h.clock.Advance(2 * time.Second)
	err := h.sched.Tick(ctx)
	require.Error(t, err)

	var stepErr *models.TickStepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "bad", stepErr.DroneID)

	assert.Equal(t, epoch, h.state(t, "bad").LastTickAt)
	assert.Equal(t, h.clock.Now(), h.state(t, "good").LastTickAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TickStepFailures))
}

func TestDispatchFliesThroughWaypoints(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90)})
	require.NoError(t, h.sched.AddDrone(context.Background(), "d1"))
	require.NoError(t, h.sched.Dispatch("d1", Mission{OrderID: "o1", Waypoints: []models.Coordinates{base, dropOff}}))

	h.tick(t, time.Minute) // takeoff
	h.tick(t, time.Minute) // cruise altitude
	h.tick(t, 2*time.Second)

	st := h.state(t, "d1")
	assert.Equal(t, models.ModeFlying, st.Mode)
	require.NotNil(t, st.Destination)
	assert.Equal(t, dropOff, *st.Destination)
	assert.Zero(t, h.exec.Pending())

	assert.Error(t, h.sched.Dispatch("d1", Mission{}))
	assert.ErrorIs(t, h.sched.Dispatch("ghost", Mission{Waypoints: []models.Coordinates{base}}), models.ErrDroneNotActive)
}

func TestRegistryChangesDuringTicks(t *testing.T) {
	const writers, rounds = 4, 200

	records := []*models.DroneRecord{droneAt("anchor", base, 90)}
	for w := 0; w < writers; w++ {
		records = append(records, droneAt(fmt.Sprintf("w%d", w), base, 90))
	}
	h := newHarness(t, Config{Workers: 2}, records)
	ctx := context.Background()
	require.NoError(t, h.sched.AddDrone(ctx, "anchor"))
	require.NoError(t, h.sched.Dispatch("anchor", Mission{Waypoints: []models.Coordinates{dropOff}}))

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		id := fmt.Sprintf("w%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				if !assert.NoError(t, h.sched.AddDrone(ctx, id)) {
					return
				}
				st, err := h.sched.Query(id)
				assert.NoError(t, err)
				assert.Equal(t, id, st.DroneID)

				assert.NoError(t, h.sched.Dispatch(id, Mission{OrderID: "o-" + id, Waypoints: []models.Coordinates{dropOff}}))
				st, err = h.sched.Query(id)
				assert.NoError(t, err)
				assert.Equal(t, "o-"+id, st.OrderID)

				assert.NoError(t, h.sched.RemoveDrone(id))
				_, err = h.sched.Query(id)
				assert.ErrorIs(t, err, models.ErrDroneNotActive)
			}
		}()
	}

	for i := 0; i < rounds; i++ {
		h.tick(t, 100*time.Millisecond)
		for _, st := range h.sched.QueryAll() {
			assert.NotEmpty(t, st.DroneID)
			assert.True(t, st.Mode.Valid(), st.DroneID)
		}
	}
	wg.Wait()

	assert.Equal(t, []string{"anchor"}, h.sched.Registry().IDs())
	assert.Zero(t, h.exec.Pending())
}

func TestRecallAndGround(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90), droneAt("d2", base, 90)})
	ctx := context.Background()
	require.NoError(t, h.sched.AddDrone(ctx, "d1"))
	require.NoError(t, h.sched.AddDrone(ctx, "d2"))
	for _, id := range []string{"d1", "d2"} {
		require.NoError(t, h.sched.Dispatch(id, Mission{OrderID: "o-" + id, Waypoints: []models.Coordinates{dropOff}, Emergency: true}))
	}
	h.tick(t, time.Minute)
	h.tick(t, time.Minute)
	h.tick(t, 2*time.Second)

	require.NoError(t, h.sched.Recall("d1"))
	st := h.state(t, "d1")
	assert.Equal(t, models.ModeReturning, st.Mode)
	assert.Empty(t, st.OrderID)
	assert.Nil(t, st.Destination)
	assert.False(t, st.EmergencyMode)

	require.NoError(t, h.sched.Ground("d2"))
	assert.Equal(t, models.ModeLanding, h.state(t, "d2").Mode)

	assert.ErrorIs(t, h.sched.Recall("ghost"), models.ErrDroneNotActive)
	assert.ErrorIs(t, h.sched.Ground("ghost"), models.ErrDroneNotActive)
}

func TestDispatchWhileLandingClimbsBackToCruise(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90)})
	require.NoError(t, h.sched.AddDrone(context.Background(), "d1"))

	e, ok := h.sched.registry.get("d1")
	require.True(t, ok)
	e.mu.Lock()
	e.state.Mode = models.ModeLanding
	e.state.Position.Altitude = 44
	e.mu.Unlock()

	require.NoError(t, h.sched.Dispatch("d1", Mission{OrderID: "o1", Waypoints: []models.Coordinates{dropOff}}))
	st := h.state(t, "d1")
	assert.Equal(t, models.ModeTakeoff, st.Mode)
	assert.Equal(t, "o1", st.OrderID)

	cruise := kinematics.DefaultParams().CruiseAltitude
	for i := 0; i < 10 && h.state(t, "d1").Mode == models.ModeTakeoff; i++ {
		h.tick(t, 2*time.Second)
	}
	st = h.state(t, "d1")
	assert.Equal(t, models.ModeFlying, st.Mode)
	assert.Equal(t, cruise, st.Position.Altitude)
}

func TestSetEmergencyModeOnlyTogglesFlag(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90)})
	require.NoError(t, h.sched.AddDrone(context.Background(), "d1"))

	before := h.state(t, "d1")
	require.NoError(t, h.sched.SetEmergencyMode("d1", true))
	after := h.state(t, "d1")
	assert.True(t, after.EmergencyMode)
	assert.Equal(t, before.Mode, after.Mode)
	assert.Equal(t, before.Position, after.Position)

	require.NoError(t, h.sched.SetEmergencyMode("d1", false))
	assert.False(t, h.state(t, "d1").EmergencyMode)
	assert.ErrorIs(t, h.sched.SetEmergencyMode("ghost", true), models.ErrDroneNotActive)
}

func TestRemoveDroneCancelsCompletion(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90), droneAt("d2", base, 90)})
	ctx := context.Background()
	require.NoError(t, h.sched.AddDrone(ctx, "d1"))
	require.NoError(t, h.sched.AddDrone(ctx, "d2"))

	e, ok := h.sched.registry.get("d1")
	require.True(t, ok)
	e.mu.Lock()
	e.state.Mode = models.ModeFlying
	e.state.Position.Altitude = 50
	e.state.Destination = &models.Coordinates{Latitude: base.Latitude, Longitude: base.Longitude}
	e.mu.Unlock()

	h.tick(t, 2*time.Second)
	require.Equal(t, models.ModeDelivering, h.state(t, "d1").Mode)
	require.Equal(t, 1, h.exec.Pending())

	require.NoError(t, h.sched.RemoveDrone("d1"))
	assert.Zero(t, h.exec.Pending())
	assert.ErrorIs(t, h.sched.RemoveDrone("d1"), models.ErrDroneNotActive)
	_, err := h.sched.Query("d1")
	assert.ErrorIs(t, err, models.ErrDroneNotActive)

	all := h.sched.QueryAll()
	require.Len(t, all, 1)
	assert.Equal(t, "d2", all[0].DroneID)
}

func TestStopLandsFleetBeforeTearDown(t *testing.T) {
	h := newHarness(t, Config{}, []*models.DroneRecord{droneAt("d1", base, 90), droneAt("d2", base, 90)})

	sched, err := NewScheduler(Config{TickInterval: 5 * time.Millisecond, StopTimeout: 5 * time.Second}, Dependencies{
		Drones: h.drones,
		Orders: h.orders,
		Logger: logger.Discard(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sched.Start(ctx))

	e, ok := sched.registry.get("d1")
	require.True(t, ok)
	e.mu.Lock()
	e.state.Mode = models.ModeFlying
	e.state.Position.Altitude = 0.001
	e.mu.Unlock()
	require.NoError(t, sched.Dispatch("d2", Mission{Waypoints: []models.Coordinates{dropOff}}))

	require.NoError(t, sched.Stop(ctx))
	assert.Zero(t, sched.Registry().Len())

	rec, err := h.drones.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DroneAvailable, rec.Status)
}

func TestStopTimeoutKeepsAirborneDrones(t *testing.T) {
	h := newHarness(t, Config{TickInterval: 5 * time.Millisecond, StopTimeout: 50 * time.Millisecond},
		[]*models.DroneRecord{droneAt("d1", base, 90), droneAt("d2", base, 90)})
	ctx := context.Background()
	require.NoError(t, h.sched.Start(ctx))

	e, ok := h.sched.registry.get("d1")
	require.True(t, ok)
	e.mu.Lock()
	e.state.Mode = models.ModeDelivering
	e.state.Position.Altitude = 50
	e.completionTask = h.exec.Schedule(time.Minute, func() {})
	e.mu.Unlock()

	// The manual clock never moves, so the drone cannot descend.
	require.NoError(t, h.sched.Stop(ctx))
	assert.False(t, h.sched.Running())
	assert.Zero(t, h.exec.Pending())
	assert.Equal(t, []string{"d1"}, h.sched.Registry().IDs())

	st := h.state(t, "d1")
	assert.Equal(t, models.ModeLanding, st.Mode)
}

func TestTickEmitsTelemetryAndGeofenceAlerts(t *testing.T) {
	ctx := context.Background()
	clock := schedule.NewManualClock(epoch)
	drones := store.NewMemoryDroneRepository(droneAt("d1", base, 90), droneAt("far", dropOff, 90))
	sink := store.NewMemoryTelemetrySink(10)
	buf := telemetry.NewBuffer(telemetry.BufferConfig{}, telemetry.Targets{Sink: sink, Drones: drones}, logger.Discard(), nil)
	rec := telemetry.NewRecorder(buf, nil)

	fence, err := geofence.NewMonitor(geofence.Boundary{Center: base, RadiusMeters: 500})
	require.NoError(t, err)

	sched, err := NewScheduler(Config{}, Dependencies{
		Drones:   drones,
		Orders:   store.NewMemoryOrderRepository(),
		Geofence: fence,
		Recorder: rec,
		Executor: schedule.NewManualExecutor(clock),
		Clock:    clock,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)
	require.NoError(t, sched.AddDrone(ctx, "d1"))
	require.NoError(t, sched.AddDrone(ctx, "far"))

	clock.Advance(2 * time.Second)
	require.NoError(t, sched.Tick(ctx))
	require.NoError(t, buf.Flush(ctx))

	assert.Len(t, sink.Samples("d1"), 1)
	assert.Len(t, sink.Samples("far"), 1)

	far, err := sched.Query("far")
	require.NoError(t, err)
	assert.Equal(t, models.GeofenceViolation, far.GeofenceStatus)
	assert.True(t, far.Alerts.Has(models.AlertGeofenceViolation))

	latest, ok := rec.Latest("far")
	require.True(t, ok)
	assert.Equal(t, models.GeofenceViolation, latest.GeofenceStatus)

	d1, err := drones.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), d1.LastTelemetryAt)
}

func TestConfigValidation(t *testing.T) {
	assert.Error(t, Config{TickInterval: -time.Second}.Validate())
	assert.Error(t, Config{Workers: -1}.Validate())
	assert.NoError(t, DefaultConfig().Validate())

	cfg := Config{}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.DeliveryDwell)

	_, err := NewScheduler(Config{}, Dependencies{})
	assert.Error(t, err)
}
