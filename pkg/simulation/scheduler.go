// Package simulation drives the simulated fleet: one fixed-interval tick
// advances every active drone through kinematics, battery drain, geofence
// checks and telemetry.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/picogrid/fleet-dispatch-sim/pkg/battery"
	"github.com/picogrid/fleet-dispatch-sim/pkg/geofence"
	"github.com/picogrid/fleet-dispatch-sim/pkg/kinematics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
	"github.com/picogrid/fleet-dispatch-sim/pkg/tracing"
)

// ErrStopping is returned when a mission is sent while the scheduler is landing the fleet.
var ErrStopping = errors.New("scheduler is stopping")

// Fleet event types published on store.FleetEventsChannel.
const (
	EventDroneAdded        = "drone_added"
	EventDroneRemoved      = "drone_removed"
	EventDeliveryCompleted = "delivery_completed"
	EventDroneLanded       = "drone_landed"
)

// FleetEvent is a fleet-wide lifecycle notification.
type FleetEvent struct {
	Type    string             `json:"type"`
	DroneID string             `json:"droneId"`
	OrderID string             `json:"orderId,omitempty"`
	Status  models.DroneStatus `json:"status,omitempty"`
	At      time.Time          `json:"at"`
}

// Dependencies are the collaborators a Scheduler needs. Geofence, Recorder,
// Metrics and Logger may be nil.
type Dependencies struct {
	Drones     store.DroneRepository
	Orders     store.OrderRepository
	Kinematics *kinematics.Engine
	Battery    *battery.Model
	Geofence   *geofence.Monitor
	Recorder   *telemetry.Recorder
	Executor   schedule.Executor
	Clock      schedule.Clock
	// Locks must be shared with every other writer of drone records
	Locks   *store.KeyedMutex
	Metrics *metrics.Collector
	Logger  logger.Logger
}

// Scheduler owns the active-drone registry and the tick loop.
type Scheduler struct {
	cfg      Config
	drones   store.DroneRepository
	orders   store.OrderRepository
	kin      *kinematics.Engine
	battery  *battery.Model
	geofence *geofence.Monitor
	recorder *telemetry.Recorder
	exec     schedule.Executor
	clock    schedule.Clock
	locks    *store.KeyedMutex
	metrics  *metrics.Collector
	log      logger.Logger

	registry *Registry
	tickMu   sync.Mutex

	mu       sync.Mutex
	running  bool
	stopping bool
	cancel   context.CancelFunc
	done     chan struct{}
	drained  chan struct{}
}

var (
	_ Service = (*Scheduler)(nil)
	_ Fleet   = (*Scheduler)(nil)
)

// NewScheduler creates a stopped scheduler with an empty registry.
func NewScheduler(cfg Config, deps Dependencies) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Drones == nil || deps.Orders == nil {
		return nil, errors.New("scheduler needs drone and order repositories")
	}
	if deps.Kinematics == nil {
		deps.Kinematics = kinematics.NewEngine(kinematics.DefaultParams(), nil)
	}
	if deps.Battery == nil {
		deps.Battery = battery.NewModel(battery.DefaultParams(), nil)
	}
	if deps.Executor == nil {
		deps.Executor = schedule.NewTimerExecutor()
	}
	if deps.Clock == nil {
		deps.Clock = schedule.RealClock{}
	}
	if deps.Locks == nil {
		deps.Locks = store.NewKeyedMutex()
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetDefaultLogger()
	}

	return &Scheduler{
		cfg:      cfg.withDefaults(),
		drones:   deps.Drones,
		orders:   deps.Orders,
		kin:      deps.Kinematics,
		battery:  deps.Battery,
		geofence: deps.Geofence,
		recorder: deps.Recorder,
		exec:     deps.Executor,
		clock:    deps.Clock,
		locks:    deps.Locks,
		metrics:  deps.Metrics,
		log:      deps.Logger.WithPrefix("scheduler"),
		registry: NewRegistry(),
	}, nil
}

func (s *Scheduler) Name() string { return "simulation" }

// Registry exposes the active-drone registry.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start loads every simulatable drone that is not excluded and begins the
// tick loop. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	records, err := s.drones.Find(ctx, store.DroneFilter{ExcludeID: s.cfg.Exclude})
	if err != nil {
		return fmt.Errorf("failed to load drones: %w", err)
	}

	loaded := 0
	for _, rec := range records {
		if !rec.Status.Simulatable() || s.registry.Has(rec.ID) {
			continue
		}
		if _, err := s.addRecord(ctx, rec); err != nil {
			s.log.WithField("drone", rec.ID).Warnf("Skipping drone: %v", err)
			continue
		}
		loaded++
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.drained = make(chan struct{})
	s.running = true
	s.stopping = false

	go s.run(loopCtx, s.done, s.drained)

	s.metrics.SetActiveDrones(s.registry.Len())
	s.log.Infof("%s Simulation started with %d drones (tick %s)", logger.IconRocket, loaded, s.cfg.TickInterval)
	return nil
}

func (s *Scheduler) run(ctx context.Context, done, drained chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var drainOnce sync.Once
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Debugf("Tick finished with failures: %v", err)
			}
			if s.isStopping() && s.registry.allIdle() {
				drainOnce.Do(func() { close(drained) })
			}
		}
	}
}

func (s *Scheduler) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// Stop cancels deferred work, commands every airborne drone to land and
// keeps ticking until the fleet is on the ground, StopTimeout elapses or ctx
// ends. Landed drones are then dropped; drones still airborne stay queryable.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	cancel, done, drained := s.cancel, s.done, s.drained
	s.mu.Unlock()

	if n := s.exec.CancelAll(); n > 0 {
		s.log.Infof("Cancelled %d pending delivery completions", n)
	}
	for _, e := range s.registry.entries() {
		e.mu.Lock()
		e.completionTask = ""
		land(e)
		e.mu.Unlock()
	}

	if !s.registry.allIdle() {
		s.log.Infof("Waiting for %d drones to land", s.registry.Len())
		waitCtx, cancelWait := context.WithTimeout(ctx, s.cfg.StopTimeout)
		select {
		case <-drained:
		case <-done:
		case <-waitCtx.Done():
			s.log.Warn("Stop deadline reached before every drone landed")
		}
		cancelWait()
	}

	cancel()
	<-done

	airborne := s.registry.removeIdle()
	if len(airborne) > 0 {
		s.log.WithField("drones", airborne).Warnf("%d drones still airborne; keeping their state", len(airborne))
	}

	s.mu.Lock()
	s.running = false
	s.stopping = false
	s.mu.Unlock()

	s.metrics.SetActiveDrones(s.registry.Len())
	s.log.Info("Simulation stopped")
	return nil
}

// AddDrone loads a drone into the simulation. A drone that already carries an
// active delivery starts in flight toward the drop-off.
func (s *Scheduler) AddDrone(ctx context.Context, droneID string) error {
	if s.registry.Has(droneID) {
		return nil
	}
	rec, err := s.drones.Get(ctx, droneID)
	if err != nil {
		return fmt.Errorf("failed to load drone %s: %w", droneID, err)
	}
	if _, err := s.addRecord(ctx, rec); err != nil {
		return err
	}
	s.metrics.SetActiveDrones(s.registry.Len())
	return nil
}

func (s *Scheduler) addRecord(ctx context.Context, rec *models.DroneRecord) (*entry, error) {
	now := s.clock.Now()
	home := s.cfg.HomeBase
	if home == (models.Coordinates{}) {
		home = rec.Location.Coordinates()
	}

	state := &models.DroneSimState{
		DroneID:  rec.ID,
		Position: rec.Location,
		HomeBase: home,
		Battery: models.Battery{
			Level:        rec.BatteryLevel,
			Voltage:      12.0 + (rec.BatteryLevel/100)*2,
			TemperatureC: 20,
		},
		Mode:           models.ModeIdle,
		GeofenceStatus: models.GeofenceInside,
		Alerts:         models.Alerts{},
		LastTickAt:     now,
	}

	if rec.CurrentOrderID != "" {
		order, err := s.orders.Get(ctx, rec.CurrentOrderID)
		switch {
		case err == nil && order.Status.Active():
			dest := order.Delivery.Coordinates
			state.Mode = models.ModeFlying
			state.Destination = &dest
			state.OrderID = order.ID
			state.EmergencyMode = order.Priority == models.PriorityEmergency
			if cruise := s.kin.Params().CruiseAltitude; state.Position.Altitude < cruise {
				state.Position.Altitude = cruise
			}
		case err != nil && !errors.Is(err, models.ErrOrderNotFound):
			return nil, fmt.Errorf("failed to load order %s for drone %s: %w", rec.CurrentOrderID, rec.ID, err)
		}
	}

	e, err := s.registry.add(state)
	if err != nil {
		return nil, err
	}
	s.publish(FleetEvent{Type: EventDroneAdded, DroneID: rec.ID, OrderID: state.OrderID, Status: rec.Status, At: now})
	s.log.WithFields(map[string]interface{}{"drone": rec.ID, "mode": state.Mode}).Debug("Drone added")
	return e, nil
}

// RemoveDrone drops a drone without landing it.
func (s *Scheduler) RemoveDrone(droneID string) error {
	e, ok := s.registry.remove(droneID)
	if !ok {
		return fmt.Errorf("remove %s: %w", droneID, models.ErrDroneNotActive)
	}

	e.mu.Lock()
	e.removed = true
	if e.completionTask != "" {
		s.exec.Cancel(e.completionTask)
		e.completionTask = ""
	}
	orderID := e.state.OrderID
	e.mu.Unlock()

	if s.recorder != nil {
		s.recorder.Forget(droneID)
	}
	s.metrics.SetActiveDrones(s.registry.Len())
	s.publish(FleetEvent{Type: EventDroneRemoved, DroneID: droneID, OrderID: orderID, At: s.clock.Now()})
	return nil
}

// Query returns a copy of one drone's state.
func (s *Scheduler) Query(droneID string) (models.DroneSimState, error) {
	e, ok := s.registry.get(droneID)
	if !ok {
		return models.DroneSimState{}, fmt.Errorf("query %s: %w", droneID, models.ErrDroneNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.state.Clone(), nil
}

// QueryAll returns a copy of every active drone's state, ordered by ID.
func (s *Scheduler) QueryAll() []models.DroneSimState {
	entries := s.registry.entries()
	out := make([]models.DroneSimState, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, *e.state.Clone())
		e.mu.Unlock()
	}
	return out
}

// SetEmergencyMode toggles the emergency flag without touching anything else.
// A drone latched by a critical battery cannot leave emergency mode in flight.
func (s *Scheduler) SetEmergencyMode(droneID string, on bool) error {
	e, ok := s.registry.get(droneID)
	if !ok {
		return fmt.Errorf("set emergency mode on %s: %w", droneID, models.ErrDroneNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !on && e.state.CriticalLatched {
		return fmt.Errorf("clear emergency mode on %s: %w", droneID, models.ErrDroneGrounded)
	}
	e.state.EmergencyMode = on
	return nil
}

// Dispatch sends an active drone on a mission.
func (s *Scheduler) Dispatch(droneID string, m Mission) error {
	if len(m.Waypoints) == 0 {
		return fmt.Errorf("mission for %s has no waypoints", droneID)
	}
	if s.isStopping() {
		return ErrStopping
	}
	e, ok := s.registry.get(droneID)
	if !ok {
		return fmt.Errorf("dispatch %s: %w", droneID, models.ErrDroneNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	if st.CriticalLatched || st.Mode == models.ModeEmergency {
		return fmt.Errorf("dispatch %s: %w", droneID, models.ErrDroneGrounded)
	}

	s.cancelCompletion(e)
	first := m.Waypoints[0]
	st.Destination = &first
	e.legs = append([]models.Coordinates(nil), m.Waypoints[1:]...)
	st.OrderID = m.OrderID
	st.EmergencyMode = m.Emergency
	switch {
	case st.Mode == models.ModeLanding:
		// climb back to cruise before heading out
		st.Mode = models.ModeTakeoff
	case st.Mode.Airborne() && st.Mode != models.ModeTakeoff:
		st.Mode = models.ModeFlying
	}

	s.log.WithFields(map[string]interface{}{"drone": droneID, "order": m.OrderID, "emergency": m.Emergency}).
		Infof("%s Dispatched with %d waypoints", logger.IconDrone, len(m.Waypoints))
	return nil
}

// Recall abandons the current mission and flies the drone home. A grounded
// drone keeps descending.
func (s *Scheduler) Recall(droneID string) error {
	e, ok := s.registry.get(droneID)
	if !ok {
		return fmt.Errorf("recall %s: %w", droneID, models.ErrDroneNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.cancelCompletion(e)
	st := e.state
	if st.CriticalLatched || st.Mode == models.ModeEmergency {
		return nil
	}
	st.OrderID = ""
	st.Destination = nil
	e.legs = nil
	st.EmergencyMode = false
	if st.Mode.Airborne() && !st.Mode.Descending() {
		st.Mode = models.ModeReturning
	}
	return nil
}

// Ground lands the drone where it is.
func (s *Scheduler) Ground(droneID string) error {
	e, ok := s.registry.get(droneID)
	if !ok {
		return fmt.Errorf("ground %s: %w", droneID, models.ErrDroneNotActive)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	s.cancelCompletion(e)
	land(e)
	return nil
}

// land must be called with e.mu held.
func land(e *entry) {
	st := e.state
	e.legs = nil
	if st.Mode == models.ModeEmergency {
		return
	}
	st.Destination = nil
	if st.Mode != models.ModeIdle {
		st.Mode = models.ModeLanding
	}
}

func (s *Scheduler) cancelCompletion(e *entry) {
	if e.completionTask != "" {
		s.exec.Cancel(e.completionTask)
		e.completionTask = ""
	}
}

// stepResult carries what a committed step needs to do outside the entry lock.
type stepResult struct {
	landed   bool
	latched  bool
	orderID  string
	position models.Position
}

// Tick advances every active drone once. A drone whose step fails keeps its
// previous state; the other drones are unaffected. The returned error joins
// the per-drone failures.
func (s *Scheduler) Tick(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	ctx, span := tracing.Tracer().Start(ctx, "simulation.Tick")
	defer span.End()

	started := time.Now()
	now := s.clock.Now()
	entries := s.registry.entries()

	var (
		errMu sync.Mutex
		errs  []error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for _, e := range entries {
		g.Go(func() error {
			res, err := s.step(e, now)
			if err != nil {
				s.metrics.TickStepFailed()
				s.log.WithField("drone", e.id).Errorf("Tick step failed: %v", err)
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
				return nil
			}
			if res.landed {
				s.onLanded(ctx, e.id, res)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.TickCompleted(time.Since(started), len(entries))
	span.SetAttributes(attribute.Int("fleet.drones", len(entries)), attribute.Int("fleet.step_failures", len(errs)))

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tick step failures")
		return err
	}
	return nil
}

// step advances one drone on a copy of its state and commits the copy only
// if every stage succeeds.
func (s *Scheduler) step(e *entry, now time.Time) (res stepResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return res, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = &models.TickStepError{DroneID: e.id, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	dt := now.Sub(e.state.LastTickAt)
	if dt <= 0 {
		return res, nil
	}

	next := e.state.Clone()
	legs := e.legs

	tr, err := s.kin.Advance(next, dt, now)
	if err != nil {
		return res, &models.TickStepError{DroneID: e.id, Err: err}
	}

	if tr.Arrived && len(legs) > 0 {
		wp := legs[0]
		legs = legs[1:]
		next.Destination = &wp
		next.Mode = models.ModeFlying
		tr.Arrived = false
	}

	raised := s.battery.Apply(next, dt.Minutes(), now)
	if s.geofence != nil {
		if a := s.geofence.Check(next, now); a != nil {
			raised = append(raised, *a)
		}
	}
	next.Alerts.Expire(now, s.cfg.AlertTTL)
	next.LastTickAt = now

	if tr.Landed {
		res = stepResult{landed: true, latched: next.CriticalLatched, orderID: next.OrderID, position: next.Position}
		next.CriticalLatched = false
		next.EmergencyMode = false
		next.OrderID = ""
		next.Destination = nil
		legs = nil
	}

	// commit
	e.state = next
	e.legs = legs

	if tr.Arrived && next.Mode == models.ModeDelivering {
		s.cancelCompletion(e)
		droneID, orderID := e.id, next.OrderID
		e.completionTask = s.exec.Schedule(s.cfg.DeliveryDwell, func() {
			s.completeDelivery(droneID, orderID)
		})
	}

	if s.recorder != nil {
		s.recorder.Emit(next, raised, now)
	}
	return res, nil
}

// completeDelivery runs after the dwell: the order is marked delivered, the
// drone record is released and the drone heads home.
func (s *Scheduler) completeDelivery(droneID, orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TaskTimeout)
	defer cancel()

	unlock := s.locks.Lock(droneID)
	defer unlock()

	e, ok := s.registry.get(droneID)
	if !ok {
		return
	}
	e.mu.Lock()
	if e.state.Mode != models.ModeDelivering || e.state.OrderID != orderID {
		e.mu.Unlock()
		return
	}
	e.completionTask = ""
	e.state.Mode = models.ModeReturning
	e.state.Destination = nil
	e.state.OrderID = ""
	e.state.EmergencyMode = e.state.CriticalLatched
	loc := e.state.Position.Coordinates()
	e.mu.Unlock()

	now := s.clock.Now()
	log := s.log.WithFields(map[string]interface{}{"drone": droneID, "order": orderID})

	if orderID != "" {
		if err := s.markDelivered(ctx, orderID, droneID, loc, now); err != nil {
			log.Errorf("Failed to complete order: %v", err)
		}
	}

	rec, err := s.drones.Get(ctx, droneID)
	if err != nil {
		log.Errorf("Failed to load drone record: %v", err)
	} else if rec.CurrentOrderID == "" || rec.CurrentOrderID == orderID {
		rec.Status = models.DroneReturning
		rec.CurrentOrderID = ""
		rec.Assignment = nil
		if err := s.drones.Save(ctx, rec); err != nil {
			log.Errorf("Failed to release drone record: %v", err)
		}
	}

	s.publish(FleetEvent{Type: EventDeliveryCompleted, DroneID: droneID, OrderID: orderID, Status: models.DroneReturning, At: now})
	log.Infof("%s Delivery completed, returning to base", logger.IconSuccess)
}

func (s *Scheduler) markDelivered(ctx context.Context, orderID, droneID string, loc models.Coordinates, now time.Time) error {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() || order.AssignedDrone != droneID {
		return nil
	}

	order.Status = models.OrderDelivered
	order.ActualDelivery = now
	order.AppendHistory(models.OrderDelivered, fmt.Sprintf("Delivered by drone %s", droneID), &loc, now)
	if et := order.EmergencyTracking; et != nil {
		et.State = models.EmergencyDelivered
		et.LiveTracking = false
	}
	return s.orders.Save(ctx, order)
}

// onLanded settles the drone record once the drone is on the ground.
func (s *Scheduler) onLanded(ctx context.Context, droneID string, res stepResult) {
	unlock := s.locks.Lock(droneID)
	defer unlock()

	log := s.log.WithField("drone", droneID)
	rec, err := s.drones.Get(ctx, droneID)
	if err != nil {
		log.Errorf("Failed to load drone record after landing: %v", err)
		return
	}

	// Reassigned while descending; the new mission owns the record.
	if rec.CurrentOrderID != "" && rec.CurrentOrderID != res.orderID {
		return
	}

	switch {
	case res.latched:
		rec.Status = models.DroneCriticalBattery
	case rec.Status == models.DroneCriticalBattery || rec.Status == models.DroneMaintenance:
	default:
		rec.Status = models.DroneAvailable
	}
	rec.CurrentOrderID = ""
	rec.Assignment = nil
	rec.Location = res.position

	if err := s.drones.Save(ctx, rec); err != nil {
		log.Errorf("Failed to update drone record after landing: %v", err)
		return
	}

	s.publish(FleetEvent{Type: EventDroneLanded, DroneID: droneID, OrderID: res.orderID, Status: rec.Status, At: s.clock.Now()})
	log.Infof("Landed, status %s", rec.Status)
}

func (s *Scheduler) publish(ev FleetEvent) {
	if s.recorder != nil {
		s.recorder.PublishEvent(store.FleetEventsChannel, ev)
	}
}
