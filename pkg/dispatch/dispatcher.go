package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/simulation"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/tracing"
)

// Dispatch outcomes, used as metric labels.
const (
	OutcomeAssigned           = "assigned"
	OutcomeNoCandidate        = "no_candidate"
	OutcomeManualIntervention = "manual_intervention"
	OutcomeError              = "error"
)

// Tracker starts live tracking of an assigned emergency order.
type Tracker interface {
	StartTracking(ctx context.Context, orderID string) error
}

// Config tunes the dispatcher.
type Config struct {
	Planner PlannerConfig
	// GroundStaff receives manual-intervention and failover notices
	GroundStaff []string
}

// Dependencies are the collaborators of a Dispatcher. Fleet, Notifier,
// Broadcaster, Metrics and Logger may be nil.
type Dependencies struct {
	Drones      store.DroneRepository
	Orders      store.OrderRepository
	Fleet       simulation.Fleet
	Notifier    store.NotificationGateway
	Broadcaster store.RealtimeBroadcaster
	// Locks must be shared with the scheduler
	Locks   *store.KeyedMutex
	Clock   schedule.Clock
	Metrics *metrics.Collector
	Logger  logger.Logger
}

// Result is the outcome of a successful assignment or failover.
type Result struct {
	Order         *models.OrderRecord
	AssignedDrone *models.DroneRecord
	Candidate     Candidate
	PausedOrders  []*models.OrderRecord
	Route         *models.Route
	EstimatedTime time.Duration
}

// AssignmentEvent is published on the order's tracking channel after a commit.
type AssignmentEvent struct {
	Type         string                `json:"type"`
	OrderID      string                `json:"orderId"`
	DroneID      string                `json:"droneId"`
	PreviousID   string                `json:"previousDroneId,omitempty"`
	Reason       models.FailoverReason `json:"reason,omitempty"`
	EstimatedETA time.Time             `json:"estimatedDelivery"`
}

// Dispatcher assigns emergency orders to drones. Every operation plans
// against the current records first and writes only once a drone has been
// chosen, so a failed plan leaves both stores untouched.
type Dispatcher struct {
	drones   store.DroneRepository
	orders   store.OrderRepository
	fleet    simulation.Fleet
	notifier store.NotificationGateway
	bus      store.RealtimeBroadcaster
	locks    *store.KeyedMutex
	clock    schedule.Clock
	metrics  *metrics.Collector
	log      logger.Logger

	scorer  Scorer
	planner *Planner
	staff   []string

	// mu serializes assignments so a drone cannot be chosen twice
	mu sync.Mutex

	trackerMu sync.RWMutex
	tracker   Tracker
}

// New creates a dispatcher.
func New(cfg Config, deps Dependencies) (*Dispatcher, error) {
	if deps.Drones == nil || deps.Orders == nil {
		return nil, errors.New("dispatcher needs drone and order repositories")
	}
	if deps.Locks == nil {
		deps.Locks = store.NewKeyedMutex()
	}
	if deps.Clock == nil {
		deps.Clock = schedule.RealClock{}
	}
	if deps.Notifier == nil {
		deps.Notifier = store.Discard{}
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = store.Discard{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetDefaultLogger()
	}

	planner := NewPlanner(cfg.Planner)
	return &Dispatcher{
		drones:   deps.Drones,
		orders:   deps.Orders,
		fleet:    deps.Fleet,
		notifier: deps.Notifier,
		bus:      deps.Broadcaster,
		locks:    deps.Locks,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		log:      deps.Logger.WithPrefix("dispatch"),
		scorer:   Scorer{CruiseSpeed: planner.CruiseSpeed()},
		planner:  planner,
		staff:    cfg.GroundStaff,
	}, nil
}

// SetTracker installs the hook started after every successful commit.
func (d *Dispatcher) SetTracker(t Tracker) {
	d.trackerMu.Lock()
	defer d.trackerMu.Unlock()
	d.tracker = t
}

// Planner returns the route planner.
func (d *Dispatcher) Planner() *Planner { return d.planner }

// Candidates ranks every eligible drone for an order without changing anything.
func (d *Dispatcher) Candidates(ctx context.Context, orderID string) ([]Candidate, error) {
	order, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	pool, err := d.pool(ctx, store.DroneFilter{}, nil)
	if err != nil {
		return nil, err
	}
	return d.scorer.Rank(pool, order), nil
}

// Assign makes an order an emergency, pauses competing deliveries, picks the
// best drone and commits the assignment. With no eligible drone it returns
// ErrNoCandidateDrone and writes nothing.
func (d *Dispatcher) Assign(ctx context.Context, orderID, requestedBy string) (*Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "dispatch.Assign", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.log.WithField("order", orderID)

	order, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return nil, d.fail(span, "assign", OutcomeError, err)
	}
	if order.Status.Terminal() {
		return nil, d.fail(span, "assign", OutcomeError, fmt.Errorf("order %s is already %s", orderID, order.Status))
	}

	paused, freed, err := d.planPause(ctx, order)
	if err != nil {
		return nil, d.fail(span, "assign", OutcomeError, err)
	}
	held, err := d.planRelease(ctx, order)
	if err != nil {
		return nil, d.fail(span, "assign", OutcomeError, err)
	}
	if held != nil {
		freed[held.ID] = held
	}

	pool, err := d.pool(ctx, store.DroneFilter{}, freed)
	if err != nil {
		return nil, d.fail(span, "assign", OutcomeError, err)
	}
	cand, err := d.scorer.Select(pool, order)
	if err != nil {
		log.Warnf("%s No eligible drone for emergency order", logger.IconAlert)
		return nil, d.fail(span, "assign", OutcomeNoCandidate, err)
	}
	route := d.planner.Plan(cand.Drone.Location.Coordinates(), order.Pickup.Coordinates, order.Delivery.Coordinates)

	// commit
	keys := []string{cand.Drone.ID}
	for id := range freed {
		keys = append(keys, id)
	}
	unlock := d.locks.LockAll(keys...)

	drone, err := d.drones.Get(ctx, cand.Drone.ID)
	if err == nil && !drone.Status.Dispatchable() && freed[drone.ID] == nil {
		err = fmt.Errorf("drone %s changed to %s during planning", drone.ID, drone.Status)
	}
	if err != nil {
		unlock()
		return nil, d.fail(span, "assign", OutcomeError, err)
	}

	now := d.clock.Now()
	pausedOrders := d.commitPause(ctx, order.ID, paused, freed, now)
	if held != nil && held.ID != drone.ID {
		d.release(ctx, held, order.ID)
	}

	if err := d.commitDrone(ctx, drone, order.ID, now); err != nil {
		unlock()
		return nil, d.fail(span, "assign", OutcomeError, err)
	}

	order.Priority = models.PriorityEmergency
	order.IsEmergency = true
	order.Status = models.OrderProcessing
	order.AssignedDrone = drone.ID
	order.Route = route
	order.EstimatedDelivery = now.Add(minutes(route.EstimatedTimeMinutes))
	et := order.EmergencyTracking
	if et == nil {
		et = &models.EmergencyTracking{}
		order.EmergencyTracking = et
	}
	et.State = models.EmergencyAssigned
	et.LiveTracking = true
	et.ApprovedBy = requestedBy
	et.ApprovedAt = now
	et.RequiresManualIntervention = false
	note := fmt.Sprintf("Emergency dispatch approved by %s; drone %s assigned", requestedBy, drone.ID)
	if held != nil && held.ID != drone.ID {
		note += fmt.Sprintf(" in place of %s", held.ID)
	}
	order.AppendHistory(models.OrderProcessing, note, nil, now)

	if err := d.orders.Save(ctx, order); err != nil {
		unlock()
		return nil, d.fail(span, "assign", OutcomeError, &models.PersistenceError{Op: "save order", ID: order.ID, Err: err})
	}
	unlock()

	d.fly(ctx, drone.ID, order, route)
	d.startTracking(ctx, order.ID)
	d.publish(ctx, AssignmentEvent{Type: "emergency_assigned", OrderID: order.ID, DroneID: drone.ID, EstimatedETA: order.EstimatedDelivery})

	d.metrics.DispatchOutcome("assign", OutcomeAssigned)
	span.SetAttributes(attribute.String("drone.id", drone.ID), attribute.Float64("dispatch.score", cand.Score), attribute.Int("dispatch.paused", len(pausedOrders)))
	log.WithFields(map[string]interface{}{"drone": drone.ID, "score": fmt.Sprintf("%.1f", cand.Score), "paused": len(pausedOrders)}).
		Infof("%s Emergency order assigned, ETA %.1f min", logger.IconRocket, route.EstimatedTimeMinutes)

	return &Result{
		Order:         order.Clone(),
		AssignedDrone: drone.Clone(),
		Candidate:     cand,
		PausedOrders:  pausedOrders,
		Route:         route.Clone(),
		EstimatedTime: minutes(route.EstimatedTimeMinutes),
	}, nil
}

// Failover moves an emergency order off its current drone. The old drone is
// retired and a new one committed. With no backup drone the order is flagged
// for manual intervention and a *models.ManualInterventionError is returned.
func (d *Dispatcher) Failover(ctx context.Context, orderID string, reason models.FailoverReason) (*Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "dispatch.Failover", trace.WithAttributes(
		attribute.String("order.id", orderID), attribute.String("failover.reason", string(reason))))
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.log.WithFields(map[string]interface{}{"order": orderID, "reason": reason})

	order, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return nil, d.fail(span, "failover", OutcomeError, err)
	}
	if order.Status.Terminal() {
		return nil, d.fail(span, "failover", OutcomeError, fmt.Errorf("order %s is already %s", orderID, order.Status))
	}
	oldID := order.AssignedDrone

	var exclude []string
	if oldID != "" {
		exclude = append(exclude, oldID)
	}
	pool, err := d.pool(ctx, store.DroneFilter{ExcludeID: exclude}, nil)
	if err != nil {
		return nil, d.fail(span, "failover", OutcomeError, err)
	}

	cand, err := d.scorer.Select(pool, order)
	if err != nil {
		if err := d.flagManual(ctx, order, oldID, reason); err != nil {
			return nil, d.fail(span, "failover", OutcomeError, err)
		}
		log.Errorf("%s No backup drone; manual intervention required", logger.IconAlert)
		return nil, d.fail(span, "failover", OutcomeManualIntervention,
			&models.ManualInterventionError{OrderID: order.ID, Reason: reason})
	}
	route := d.planner.Plan(cand.Drone.Location.Coordinates(), order.Pickup.Coordinates, order.Delivery.Coordinates)

	// commit
	unlock := d.locks.LockAll(oldID, cand.Drone.ID)

	drone, err := d.drones.Get(ctx, cand.Drone.ID)
	if err == nil && !drone.Status.Dispatchable() {
		err = fmt.Errorf("drone %s changed to %s during planning", drone.ID, drone.Status)
	}
	if err != nil {
		unlock()
		return nil, d.fail(span, "failover", OutcomeError, err)
	}

	now := d.clock.Now()
	if oldID != "" {
		if err := d.retire(ctx, oldID, order.ID, reason); err != nil {
			log.Warnf("Failed to retire drone %s: %v", oldID, err)
		}
	}
	if err := d.commitDrone(ctx, drone, order.ID, now); err != nil {
		unlock()
		return nil, d.fail(span, "failover", OutcomeError, err)
	}

	order.AssignedDrone = drone.ID
	order.Route = route
	order.EstimatedDelivery = now.Add(minutes(route.EstimatedTimeMinutes))
	if !order.Status.Active() {
		order.Status = models.OrderProcessing
	}
	et := order.EmergencyTracking
	if et == nil {
		et = &models.EmergencyTracking{LiveTracking: true}
		order.EmergencyTracking = et
	}
	et.State = models.EmergencyFailover
	et.FailoverCount++
	et.Failovers = append(et.Failovers, models.FailoverEvent{FromDroneID: oldID, ToDroneID: drone.ID, Reason: reason, At: now})
	et.RequiresManualIntervention = false
	order.AppendHistory(order.Status,
		fmt.Sprintf("Failover (%s): drone %s replaced by %s", reason, displayID(oldID), drone.ID), nil, now)

	if err := d.orders.Save(ctx, order); err != nil {
		unlock()
		return nil, d.fail(span, "failover", OutcomeError, &models.PersistenceError{Op: "save order", ID: order.ID, Err: err})
	}
	unlock()

	if oldID != "" && d.fleet != nil {
		var ferr error
		if reason == models.ReasonCriticalBattery {
			ferr = d.fleet.Ground(oldID)
		} else {
			ferr = d.fleet.Recall(oldID)
		}
		if ferr != nil && !errors.Is(ferr, models.ErrDroneNotActive) {
			log.Warnf("Failed to stand down drone %s: %v", oldID, ferr)
		}
	}
	d.fly(ctx, drone.ID, order, route)
	d.startTracking(ctx, order.ID)
	d.publish(ctx, AssignmentEvent{Type: "emergency_failover", OrderID: order.ID, DroneID: drone.ID, PreviousID: oldID, Reason: reason, EstimatedETA: order.EstimatedDelivery})
	d.notify(ctx, fmt.Sprintf("Emergency order %s failed over from %s to %s (%s)", order.ID, displayID(oldID), drone.ID, reason), models.SeverityWarning)

	d.metrics.DispatchOutcome("failover", OutcomeAssigned)
	span.SetAttributes(attribute.String("drone.id", drone.ID))
	log.WithField("drone", drone.ID).Warnf("%s Failover committed (failover #%d)", logger.IconRefresh, et.FailoverCount)

	return &Result{
		Order:         order.Clone(),
		AssignedDrone: drone.Clone(),
		Candidate:     cand,
		Route:         route.Clone(),
		EstimatedTime: minutes(route.EstimatedTimeMinutes),
	}, nil
}

// pool returns the drones to score with live simulated position and battery
// laid over the records. Drones in freed are treated as already released.
func (d *Dispatcher) pool(ctx context.Context, filter store.DroneFilter, freed map[string]*models.DroneRecord) ([]*models.DroneRecord, error) {
	records, err := d.drones.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list drones: %w", err)
	}

	pool := make([]*models.DroneRecord, 0, len(records))
	for _, rec := range records {
		if f, ok := freed[rec.ID]; ok {
			rec = f.Clone()
		}
		if d.fleet != nil {
			if st, err := d.fleet.Query(rec.ID); err == nil {
				if st.CriticalLatched {
					continue
				}
				rec.Location = st.Position
				rec.BatteryLevel = st.Battery.Level
			}
		}
		pool = append(pool, rec)
	}
	return pool, nil
}

// planPause finds the deliveries the emergency preempts: active normal or
// high priority orders whose drone is in flight. It returns those orders and
// the drones as they will look once freed, keyed by ID.
func (d *Dispatcher) planPause(ctx context.Context, emergency *models.OrderRecord) ([]*models.OrderRecord, map[string]*models.DroneRecord, error) {
	active, err := d.orders.Find(ctx, store.OrderFilter{
		Statuses:   []models.OrderStatus{models.OrderProcessing, models.OrderInTransit},
		Priorities: []models.Priority{models.PriorityNormal, models.PriorityHigh},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list active orders: %w", err)
	}

	var paused []*models.OrderRecord
	freed := make(map[string]*models.DroneRecord)
	for _, o := range active {
		if o.ID == emergency.ID || o.IsEmergency || o.AssignedDrone == "" {
			continue
		}
		drone, err := d.drones.Get(ctx, o.AssignedDrone)
		if errors.Is(err, models.ErrDroneNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if drone.Status != models.DroneInFlight {
			continue
		}

		drone.Status = models.DroneAvailable
		drone.CurrentOrderID = ""
		drone.Assignment = nil
		freed[drone.ID] = drone
		paused = append(paused, o)
	}
	return paused, freed, nil
}

// planRelease returns the drone already bound to the order, as it will look
// once released, so it can compete with the rest of the fleet. It returns nil
// when the order has no drone or the drone has moved on.
func (d *Dispatcher) planRelease(ctx context.Context, order *models.OrderRecord) (*models.DroneRecord, error) {
	if order.AssignedDrone == "" {
		return nil, nil
	}
	drone, err := d.drones.Get(ctx, order.AssignedDrone)
	if errors.Is(err, models.ErrDroneNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if drone.CurrentOrderID != order.ID {
		return nil, nil
	}

	switch drone.Status {
	case models.DroneInFlight, models.DroneEmergencyAssigned, models.DroneReturning:
		drone.Status = models.DroneAvailable
	}
	drone.CurrentOrderID = ""
	drone.Assignment = nil
	return drone, nil
}

// release unbinds the order's previous drone and sends it home. Must be
// called with its lock held.
func (d *Dispatcher) release(ctx context.Context, planned *models.DroneRecord, orderID string) {
	log := d.log.WithFields(map[string]interface{}{"order": orderID, "drone": planned.ID})

	drone, err := d.drones.Get(ctx, planned.ID)
	if err != nil {
		log.Errorf("Failed to load drone to release: %v", err)
		return
	}
	if drone.CurrentOrderID != orderID {
		return
	}
	drone.Status = planned.Status
	drone.CurrentOrderID = ""
	drone.Assignment = nil
	if err := d.drones.Save(ctx, drone); err != nil {
		log.Errorf("Failed to release drone: %v", err)
		return
	}

	if d.fleet != nil {
		if err := d.fleet.Recall(drone.ID); err != nil && !errors.Is(err, models.ErrDroneNotActive) {
			log.Warnf("Failed to recall drone: %v", err)
		}
	}
	log.Infof("%s Previous drone released", logger.IconArrow)
}

// commitPause writes the planned pause. Orders that finished since planning
// are skipped. Must be called with the freed drones' locks held.
func (d *Dispatcher) commitPause(ctx context.Context, emergencyID string, planned []*models.OrderRecord, freed map[string]*models.DroneRecord, now time.Time) []*models.OrderRecord {
	var paused []*models.OrderRecord
	for _, p := range planned {
		o, err := d.orders.Get(ctx, p.ID)
		if err != nil || !o.Status.Active() || o.AssignedDrone != p.AssignedDrone {
			continue
		}
		droneID := o.AssignedDrone
		log := d.log.WithFields(map[string]interface{}{"order": o.ID, "drone": droneID})

		o.Status = models.OrderProcessing
		o.AssignedDrone = ""
		o.AppendHistory(models.OrderProcessing,
			fmt.Sprintf("Paused for emergency order %s; drone %s released", emergencyID, droneID), nil, now)
		if err := d.orders.Save(ctx, o); err != nil {
			log.Errorf("Failed to pause order: %v", err)
			continue
		}

		drone, err := d.drones.Get(ctx, droneID)
		if err != nil {
			log.Errorf("Failed to load drone to release: %v", err)
			continue
		}
		drone.Status = freed[droneID].Status
		drone.CurrentOrderID = ""
		drone.Assignment = nil
		if err := d.drones.Save(ctx, drone); err != nil {
			log.Errorf("Failed to release drone: %v", err)
			continue
		}

		if d.fleet != nil {
			if err := d.fleet.Recall(droneID); err != nil && !errors.Is(err, models.ErrDroneNotActive) {
				log.Warnf("Failed to recall drone: %v", err)
			}
		}
		log.Infof("%s Delivery paused", logger.IconArrow)
		paused = append(paused, o)
	}
	return paused
}

// commitDrone writes status and assignment together. Must be called with the
// drone's lock held.
func (d *Dispatcher) commitDrone(ctx context.Context, drone *models.DroneRecord, orderID string, now time.Time) error {
	drone.Status = models.DroneEmergencyAssigned
	drone.CurrentOrderID = orderID
	drone.Assignment = &models.EmergencyAssignment{
		OrderID:    orderID,
		DroneID:    drone.ID,
		AssignedAt: now,
		Priority:   models.PriorityEmergency,
	}
	if err := d.drones.Save(ctx, drone); err != nil {
		return &models.PersistenceError{Op: "assign drone", ID: drone.ID, Err: err}
	}
	return nil
}

// retire takes the old drone off the order. Must be called with its lock held.
func (d *Dispatcher) retire(ctx context.Context, droneID, orderID string, reason models.FailoverReason) error {
	drone, err := d.drones.Get(ctx, droneID)
	if err != nil {
		return err
	}
	if drone.CurrentOrderID != "" && drone.CurrentOrderID != orderID {
		return nil
	}
	drone.Status = reason.RetiredStatus()
	drone.CurrentOrderID = ""
	drone.Assignment = nil
	return d.drones.Save(ctx, drone)
}

// flagManual records that no backup drone exists. The current drone keeps
// the order until ground staff decide.
func (d *Dispatcher) flagManual(ctx context.Context, order *models.OrderRecord, oldID string, reason models.FailoverReason) error {
	now := d.clock.Now()
	et := order.EmergencyTracking
	if et == nil {
		et = &models.EmergencyTracking{LiveTracking: true}
		order.EmergencyTracking = et
	}
	et.State = models.EmergencyPending
	et.RequiresManualIntervention = true
	et.Failovers = append(et.Failovers, models.FailoverEvent{FromDroneID: oldID, Reason: reason, At: now})
	order.AppendHistory(order.Status,
		fmt.Sprintf("Failover (%s) found no backup drone; manual intervention required", reason), nil, now)

	if err := d.orders.Save(ctx, order); err != nil {
		return &models.PersistenceError{Op: "flag order", ID: order.ID, Err: err}
	}
	d.notify(ctx, fmt.Sprintf("MANUAL INTERVENTION: emergency order %s has no backup drone (%s on %s)", order.ID, reason, displayID(oldID)), models.SeverityCritical)
	return nil
}

// fly hands the committed route to the live fleet. The records stay
// authoritative if the simulation cannot take it.
func (d *Dispatcher) fly(ctx context.Context, droneID string, order *models.OrderRecord, route *models.Route) {
	if d.fleet == nil {
		return
	}
	mission := simulation.Mission{OrderID: order.ID, Emergency: true}
	for _, wp := range route.Waypoints[1:] {
		mission.Waypoints = append(mission.Waypoints, wp.Coordinates)
	}

	err := d.fleet.Dispatch(droneID, mission)
	if errors.Is(err, models.ErrDroneNotActive) {
		if err = d.fleet.AddDrone(ctx, droneID); err == nil {
			err = d.fleet.Dispatch(droneID, mission)
		}
	}
	if err != nil {
		d.log.WithField("drone", droneID).Warnf("Simulation did not take mission: %v", err)
	}
}

func (d *Dispatcher) startTracking(ctx context.Context, orderID string) {
	d.trackerMu.RLock()
	t := d.tracker
	d.trackerMu.RUnlock()
	if t == nil {
		return
	}
	if err := t.StartTracking(ctx, orderID); err != nil {
		d.log.WithField("order", orderID).Warnf("Failed to start tracking: %v", err)
	}
}

func (d *Dispatcher) publish(ctx context.Context, ev AssignmentEvent) {
	if err := d.bus.Publish(ctx, store.OrderTrackingChannel(ev.OrderID), ev); err != nil {
		d.log.WithField("order", ev.OrderID).Debugf("Publish failed: %v", err)
	}
}

func (d *Dispatcher) notify(ctx context.Context, msg string, sev models.Severity) {
	if err := d.notifier.Notify(ctx, d.staff, msg, sev); err != nil {
		d.log.Warnf("Notification failed: %v", err)
	}
}

func (d *Dispatcher) fail(span trace.Span, op, outcome string, err error) error {
	d.metrics.DispatchOutcome(op, outcome)
	span.RecordError(err)
	span.SetStatus(codes.Error, outcome)
	return err
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

func displayID(id string) string {
	if id == "" {
		return "(none)"
	}
	return id
}
