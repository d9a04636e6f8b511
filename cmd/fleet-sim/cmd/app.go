package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/picogrid/fleet-dispatch-sim/pkg/battery"
	"github.com/picogrid/fleet-dispatch-sim/pkg/config"
	"github.com/picogrid/fleet-dispatch-sim/pkg/dispatch"
	"github.com/picogrid/fleet-dispatch-sim/pkg/failover"
	"github.com/picogrid/fleet-dispatch-sim/pkg/geofence"
	"github.com/picogrid/fleet-dispatch-sim/pkg/kinematics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
	"github.com/picogrid/fleet-dispatch-sim/pkg/metrics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/reporting"
	"github.com/picogrid/fleet-dispatch-sim/pkg/schedule"
	"github.com/picogrid/fleet-dispatch-sim/pkg/simulation"
	"github.com/picogrid/fleet-dispatch-sim/pkg/store"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
	"github.com/picogrid/fleet-dispatch-sim/pkg/tracing"
)

// app is one fully wired fleet process
type app struct {
	cfg   *config.FleetConfig
	log   logger.Logger
	clock schedule.Clock

	drones *store.MemoryDroneRepository
	orders *store.MemoryOrderRepository
	sink   *store.MemoryTelemetrySink

	registry *prometheus.Registry
	metrics  *metrics.Collector
	journal  *reporting.Journal
	hub      *telemetry.Hub
	nats     *telemetry.NATSBroadcaster

	buffer     *telemetry.Buffer
	scheduler  *simulation.Scheduler
	dispatcher *dispatch.Dispatcher
	monitor    *failover.Monitor

	shutdownTracing func(context.Context) error
}

// newApp builds every component from cfg. Journal entries are echoed to
// journalOut when it is not nil.
func newApp(ctx context.Context, cfg *config.FleetConfig, journalOut io.Writer) (*app, error) {
	log := logger.GetDefaultLogger()
	a := &app{cfg: cfg, log: log, clock: schedule.RealClock{}}

	shutdown, err := tracing.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	a.shutdownTracing = shutdown

	a.registry = prometheus.NewRegistry()
	if a.metrics, err = metrics.NewCollector(a.registry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	now := a.clock.Now()
	a.drones = store.NewMemoryDroneRepository(cfg.SeedDrones()...)
	a.orders = store.NewMemoryOrderRepository(cfg.SeedOrders(now)...)
	a.sink = store.NewMemoryTelemetrySink(cfg.Telemetry.SamplesPerDrone)

	a.journal = reporting.NewJournal("", journalOut, a.clock)
	bus := telemetry.MultiBroadcaster{a.journal}
	if cfg.Broadcast.WebSocket {
		a.hub = telemetry.NewHub(log)
		bus = append(bus, a.hub)
	}
	if cfg.Broadcast.NATS.Enabled {
		nc := cfg.Broadcast.NATS
		if a.nats, err = telemetry.ConnectNATS(ctx, nc.URL, nc.Stream, nc.SubjectPrefix); err != nil {
			return nil, err
		}
		bus = append(bus, a.nats)
		logger.Networkf("Publishing to NATS stream %s at %s", nc.Stream, nc.URL)
	}

	// One lock set guards drone records for every writer
	locks := store.NewKeyedMutex()

	a.buffer = telemetry.NewBuffer(cfg.BufferSettings(), telemetry.Targets{
		Sink:        a.sink,
		Broadcaster: bus,
		Drones:      a.drones,
		Locks:       locks,
	}, log, a.metrics)
	recorder := telemetry.NewRecorder(a.buffer, a.metrics)

	seed := cfg.Simulation.RandomSeed
	if seed == 0 {
		seed = now.UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	fence, err := geofence.NewMonitor(cfg.GeofenceBoundary())
	if err != nil {
		return nil, fmt.Errorf("invalid geofence: %w", err)
	}

	a.scheduler, err = simulation.NewScheduler(cfg.SchedulerSettings(), simulation.Dependencies{
		Drones:     a.drones,
		Orders:     a.orders,
		Kinematics: kinematics.NewEngine(cfg.FlightParams(), rand.New(rand.NewSource(rng.Int63()))),
		Battery:    battery.NewModel(cfg.BatteryParams(), rand.New(rand.NewSource(rng.Int63()))),
		Geofence:   fence,
		Recorder:   recorder,
		Executor:   schedule.NewTimerExecutor(),
		Clock:      a.clock,
		Locks:      locks,
		Metrics:    a.metrics,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	a.dispatcher, err = dispatch.New(cfg.DispatchSettings(), dispatch.Dependencies{
		Drones:      a.drones,
		Orders:      a.orders,
		Fleet:       a.scheduler,
		Notifier:    a.journal,
		Broadcaster: bus,
		Locks:       locks,
		Clock:       a.clock,
		Metrics:     a.metrics,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	a.monitor, err = failover.NewMonitor(cfg.FailoverSettings(), failover.Dependencies{
		Drones:      a.drones,
		Orders:      a.orders,
		Dispatcher:  a.dispatcher,
		Telemetry:   recorder,
		Broadcaster: bus,
		Locks:       locks,
		Clock:       a.clock,
		Metrics:     a.metrics,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create failover monitor: %w", err)
	}
	a.dispatcher.SetTracker(a.monitor)

	return a, nil
}

// services lists the long-running components in start order
func (a *app) services() []simulation.Service {
	return []simulation.Service{a.scheduler, a.monitor}
}

// start brings the buffer and services up. On failure the ones already
// running are stopped again.
func (a *app) start(ctx context.Context) error {
	a.buffer.Start(ctx)

	var started []simulation.Service
	for _, svc := range a.services() {
		if err := svc.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop(ctx)
			}
			return fmt.Errorf("failed to start %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
	}
	return nil
}

// stop shuts services down in reverse order, flushes telemetry and closes
// the broadcasters. It keeps going past errors and logs them.
func (a *app) stop(ctx context.Context) {
	svcs := a.services()
	for i := len(svcs) - 1; i >= 0; i-- {
		if err := svcs[i].Stop(ctx); err != nil {
			a.log.Errorf("Failed to stop %s: %v", svcs[i].Name(), err)
		}
	}

	if err := a.buffer.Stop(ctx); err != nil {
		a.log.Warnf("Final telemetry flush failed: %v", err)
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.log.Warnf("Failed to close NATS connection: %v", err)
		}
	}
	tracing.ShutdownWithTimeout(ctx, a.shutdownTracing, a.log)
}

// writeReport generates the after-action report when enabled and returns its path.
func (a *app) writeReport(ctx context.Context) (string, error) {
	if !a.cfg.Logging.EnableReport {
		return "", nil
	}
	gen := reporting.NewGenerator(a.journal, a.cfg.ReportSettings())
	report, err := gen.Generate(ctx, a.drones, a.orders)
	if err != nil {
		return "", err
	}
	return gen.Save(report)
}

// waitFor blocks until ctx ends or d elapses. A zero d waits for ctx only.
func waitFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		<-ctx.Done()
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
