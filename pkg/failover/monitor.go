// Package failover watches emergency deliveries while they fly and moves
// them to a backup drone when the assigned one runs low or falls behind.
package failover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/dispatch"
	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/simulation"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
)

// Failover outcomes, used as metric labels.
const (
	OutcomeReassigned         = "reassigned"
	OutcomeManualIntervention = "manual_intervention"
	OutcomeError              = "error"
)

// ErrNotRunning is returned by StartTracking before Start or after Stop.
var ErrNotRunning = errors.New("failover monitor is not running")

// Reassigner moves an order to another drone.
type Reassigner interface {
	Failover(ctx context.Context, orderID string, reason models.FailoverReason) (*dispatch.Result, error)
}

// TelemetrySource returns the newest sample recorded for a drone.
type TelemetrySource interface {
	Latest(droneID string) (models.TelemetrySample, bool)
}

// Session is one order under live tracking.
type Session struct {
	OrderID      string    `json:"orderId"`
	DroneID      string    `json:"droneId"`
	StartedAt    time.Time `json:"startedAt"`
	LastUpdateAt time.Time `json:"lastUpdateAt,omitempty"`
	UpdateCount  int       `json:"updateCount"`
}

// CheckResult describes what one check observed and did.
type CheckResult struct {
	OrderID  string
	DroneID  string
	Progress *models.Progress
	// Alerts raised by this check; repeats of active alerts are not included
	Alerts []models.Alert
	// Failover is the reason a failover was attempted, empty if none was
	Failover models.FailoverReason
	// Reassigned is the new drone when the failover succeeded
	Reassigned string
	// Stopped is set when the order reached a terminal status and tracking ended
	Stopped bool
}

type session struct {
	// check serializes checks of one order
	check sync.Mutex

	mu     sync.Mutex
	info   Session
	alerts models.Alerts

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *session) snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Dependencies are the collaborators of a Monitor. Telemetry, Broadcaster,
// Metrics and Logger may be nil.
type Dependencies struct {
	Drones      store.DroneRepository
	Orders      store.OrderRepository
	Dispatcher  Reassigner
	Telemetry   TelemetrySource
	Broadcaster store.RealtimeBroadcaster
	// Locks must be shared with the dispatcher and scheduler
	Locks   *store.KeyedMutex
	Clock   schedule.Clock
	Metrics *metrics.Collector
	Logger  logger.Logger
}

// Monitor runs one tracking session per emergency order.
type Monitor struct {
	cfg        Config
	drones     store.DroneRepository
	orders     store.OrderRepository
	dispatcher Reassigner
	telemetry  TelemetrySource
	bus        store.RealtimeBroadcaster
	locks      *store.KeyedMutex
	clock      schedule.Clock
	metrics    *metrics.Collector
	log        logger.Logger

	mu       sync.Mutex
	base     context.Context
	cancel   context.CancelFunc
	sessions map[string]*session
	wg       sync.WaitGroup
}

var (
	_ simulation.Service = (*Monitor)(nil)
	_ dispatch.Tracker   = (*Monitor)(nil)
)

// NewMonitor creates a stopped monitor.
func NewMonitor(cfg Config, deps Dependencies) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Drones == nil || deps.Orders == nil || deps.Dispatcher == nil {
		return nil, errors.New("failover monitor needs repositories and a dispatcher")
	}
	if deps.Broadcaster == nil {
		deps.Broadcaster = store.Discard{}
	}
	if deps.Locks == nil {
		deps.Locks = store.NewKeyedMutex()
	}
	if deps.Clock == nil {
		deps.Clock = schedule.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetDefaultLogger()
	}

	return &Monitor{
		cfg:        cfg.withDefaults(),
		drones:     deps.Drones,
		orders:     deps.Orders,
		dispatcher: deps.Dispatcher,
		telemetry:  deps.Telemetry,
		bus:        deps.Broadcaster,
		locks:      deps.Locks,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		log:        deps.Logger.WithPrefix("failover"),
		sessions:   make(map[string]*session),
	}, nil
}

func (m *Monitor) Name() string { return "failover" }

// Start enables tracking and resumes it for every active emergency order
// that still has live tracking switched on.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.base != nil {
		m.mu.Unlock()
		return nil
	}
	m.base, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	active, err := m.orders.Find(ctx, store.OrderFilter{
		Statuses: []models.OrderStatus{models.OrderProcessing, models.OrderInTransit},
	})
	if err != nil {
		return fmt.Errorf("failed to load active orders: %w", err)
	}
	for _, o := range active {
		if !o.IsEmergency || o.EmergencyTracking == nil || !o.EmergencyTracking.LiveTracking {
			continue
		}
		if err := m.StartTracking(ctx, o.ID); err != nil {
			m.log.WithField("order", o.ID).Warnf("Failed to resume tracking: %v", err)
		}
	}

	m.log.Infof("%s Failover monitor started (interval %s)", logger.IconRocket, m.cfg.Interval)
	return nil
}

// Stop ends every session and waits for running checks to return, bounded by ctx.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.base == nil {
		m.mu.Unlock()
		return nil
	}
	m.cancel()
	m.base, m.cancel = nil, nil
	n := len(m.sessions)
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	m.metrics.SetTrackingSessions(0)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failover monitor stop: %w", ctx.Err())
	}
	m.log.Infof("Failover monitor stopped (%d sessions ended)", n)
	return nil
}

// StartTracking opens a session for the order. If one is open already its
// drone is refreshed from the order, which is what a failover needs.
func (m *Monitor) StartTracking(ctx context.Context, orderID string) error {
	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status.Terminal() {
		return fmt.Errorf("order %s is already %s", orderID, order.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.base == nil {
		return ErrNotRunning
	}

	if s, ok := m.sessions[orderID]; ok {
		s.mu.Lock()
		if s.info.DroneID != order.AssignedDrone {
			s.info.DroneID = order.AssignedDrone
			s.alerts = make(models.Alerts)
		}
		s.mu.Unlock()
		return nil
	}

	sctx, cancel := context.WithCancel(m.base)
	s := &session{
		info: Session{
			OrderID:   orderID,
			DroneID:   order.AssignedDrone,
			StartedAt: m.clock.Now(),
		},
		alerts: make(models.Alerts),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.sessions[orderID] = s
	m.metrics.SetTrackingSessions(len(m.sessions))

	m.wg.Add(1)
	go m.track(sctx, s)

	m.log.WithFields(map[string]interface{}{"order": orderID, "drone": order.AssignedDrone}).
		Infof("%s Live tracking started", logger.IconDrone)
	return nil
}

// StopTracking ends the order's session. It does not wait for a running
// check to return, so a session may stop itself.
func (m *Monitor) StopTracking(orderID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[orderID]
	if ok {
		delete(m.sessions, orderID)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.cancel()
	m.metrics.SetTrackingSessions(n)
	m.log.WithField("order", orderID).Info("Live tracking stopped")
	return true
}

// Sessions returns the open sessions ordered by order ID.
func (m *Monitor) Sessions() []Session {
	m.mu.Lock()
	list := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]Session, len(list))
	for i, s := range list {
		out[i] = s.snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (m *Monitor) track(ctx context.Context, s *session) {
	defer m.wg.Done()
	defer close(s.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.check(ctx, s); err != nil && ctx.Err() == nil {
				m.log.WithField("order", s.snapshot().OrderID).Warnf("Check failed: %v", err)
			}
		}
	}
}

// Check runs one evaluation of a tracked order right away.
func (m *Monitor) Check(ctx context.Context, orderID string) (CheckResult, error) {
	m.mu.Lock()
	s, ok := m.sessions[orderID]
	m.mu.Unlock()
	if !ok {
		return CheckResult{}, fmt.Errorf("order %s is not tracked", orderID)
	}
	return m.check(ctx, s)
}

// reading is what the monitor knows about the drone right now.
type reading struct {
	position models.Position
	battery  float64
	lastSeen time.Time
}

func (m *Monitor) check(ctx context.Context, s *session) (CheckResult, error) {
	s.check.Lock()
	defer s.check.Unlock()

	info := s.snapshot()
	res := CheckResult{OrderID: info.OrderID, DroneID: info.DroneID}
	log := m.log.WithField("order", info.OrderID)

	order, err := m.orders.Get(ctx, info.OrderID)
	if err != nil {
		return res, err
	}
	if order.Status.Terminal() {
		m.StopTracking(order.ID)
		res.Stopped = true
		return res, nil
	}

	droneID := order.AssignedDrone
	res.DroneID = droneID
	if droneID == "" {
		return res, nil
	}
	drone, err := m.drones.Get(ctx, droneID)
	if err != nil {
		return res, err
	}

	now := m.clock.Now()
	r := m.read(drone)

	if p := RouteProgress(order.Route, r.position.Coordinates(), now); p != nil {
		res.Progress = p
		m.saveProgress(ctx, order.ID, droneID, p)
		m.publish(ctx, store.OrderTrackingChannel(order.ID), ProgressUpdate{
			OrderID:           order.ID,
			DroneID:           droneID,
			Progress:          *p,
			Position:          r.position,
			BatteryLevel:      r.battery,
			EstimatedDelivery: order.EstimatedDelivery,
		})
	}

	s.mu.Lock()
	s.alerts.Expire(now, m.cfg.AlertTTL)
	s.mu.Unlock()

	threshold := drone.CriticalBatteryThreshold
	if threshold <= 0 {
		threshold = m.cfg.CriticalBattery
	}
	delayed := !order.EstimatedDelivery.IsZero() && now.Sub(order.EstimatedDelivery) > m.cfg.DelayThreshold
	if delayed {
		late := now.Sub(order.EstimatedDelivery).Round(time.Second)
		res.Alerts = m.raise(ctx, s, drone.ID, order.ID, models.Alert{
			Type:     models.AlertDeliveryDelay,
			Message:  fmt.Sprintf("Delivery is %s past its estimate", late),
			Severity: models.SeverityWarning,
			RaisedAt: now,
		}, res.Alerts)
	}

	// communication loss is reported but never reassigns the order
	since := r.lastSeen
	if since.IsZero() {
		since = info.StartedAt
	}
	if now.Sub(since) > m.cfg.CommLossTimeout {
		res.Alerts = m.raise(ctx, s, drone.ID, order.ID, models.Alert{
			Type:     models.AlertCommunicationLost,
			Message:  fmt.Sprintf("No telemetry for %s", now.Sub(since).Round(time.Second)),
			Severity: models.SeverityCritical,
			RaisedAt: now,
		}, res.Alerts)
	}

	switch {
	case r.battery <= threshold:
		res.Failover = models.ReasonCriticalBattery
	case delayed:
		res.Failover = models.ReasonDelayedDelivery
	}

	s.mu.Lock()
	s.info.DroneID = droneID
	s.info.LastUpdateAt = now
	s.info.UpdateCount++
	s.mu.Unlock()

	if res.Failover == "" {
		return res, nil
	}
	if order.EmergencyTracking != nil && order.EmergencyTracking.RequiresManualIntervention {
		log.Debugf("Failover (%s) skipped; order is waiting for ground staff", res.Failover)
		return res, nil
	}

	log.WithFields(map[string]interface{}{"drone": droneID, "battery": fmt.Sprintf("%.1f", r.battery)}).
		Warnf("%s Threshold breached, failing over (%s)", logger.IconAlert, res.Failover)

	out, err := m.dispatcher.Failover(ctx, order.ID, res.Failover)
	var manual *models.ManualInterventionError
	switch {
	case errors.As(err, &manual):
		m.metrics.FailoverOutcome(string(res.Failover), OutcomeManualIntervention)
		return res, nil
	case err != nil:
		m.metrics.FailoverOutcome(string(res.Failover), OutcomeError)
		return res, fmt.Errorf("failover %s: %w", res.Failover, err)
	}

	res.Reassigned = out.AssignedDrone.ID
	s.mu.Lock()
	s.info.DroneID = res.Reassigned
	s.alerts = make(models.Alerts)
	s.mu.Unlock()
	m.metrics.FailoverOutcome(string(res.Failover), OutcomeReassigned)
	return res, nil
}

// read prefers the newest telemetry sample and falls back to the record.
func (m *Monitor) read(drone *models.DroneRecord) reading {
	r := reading{
		position: drone.Location,
		battery:  drone.BatteryLevel,
		lastSeen: drone.LastTelemetryAt,
	}
	if m.telemetry == nil {
		return r
	}
	if sample, ok := m.telemetry.Latest(drone.ID); ok && !sample.RecordedAt.Before(r.lastSeen) {
		r.position = sample.Position
		r.battery = sample.Battery.Level
		r.lastSeen = sample.RecordedAt
	}
	return r
}

// saveProgress stores the progress under the drone's lock so it cannot undo
// a reassignment committed in between.
func (m *Monitor) saveProgress(ctx context.Context, orderID, droneID string, p *models.Progress) {
	unlock := m.locks.Lock(droneID)
	defer unlock()

	order, err := m.orders.Get(ctx, orderID)
	if err != nil || order.AssignedDrone != droneID || order.Status.Terminal() {
		return
	}
	if order.EmergencyTracking == nil {
		order.EmergencyTracking = &models.EmergencyTracking{LiveTracking: true}
	}
	c := *p
	order.EmergencyTracking.LastProgress = &c
	if err := m.orders.Save(ctx, order); err != nil {
		m.log.WithField("order", orderID).Warnf("Failed to save progress: %v", err)
	}
}

// raise publishes the alert unless the session already has it active.
func (m *Monitor) raise(ctx context.Context, s *session, droneID, orderID string, a models.Alert, raised []models.Alert) []models.Alert {
	s.mu.Lock()
	added := s.alerts.Raise(a)
	s.mu.Unlock()
	if !added {
		return raised
	}

	m.metrics.AlertRaised(string(a.Type))
	m.publish(ctx, store.DroneAlertsChannel(droneID), telemetry.AlertEvent{DroneID: droneID, OrderID: orderID, Alert: a})
	m.log.WithFields(map[string]interface{}{"order": orderID, "drone": droneID}).
		Warnf("%s %s: %s", logger.IconWarning, a.Type, a.Message)
	return append(raised, a)
}

func (m *Monitor) publish(ctx context.Context, channel string, payload any) {
	if err := m.bus.Publish(ctx, channel, payload); err != nil {
		m.log.Debugf("Publish to %s failed: %v", channel, err)
	}
}
