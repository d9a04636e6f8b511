// Package config holds the YAML configuration of a fleet run and maps it onto
// the settings of each component.
package config

import (
	"fmt"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/battery"
	"github.com/picogrid/fleet-dispatch-sim/pkg/dispatch"
	"github.com/picogrid/fleet-dispatch-sim/pkg/failover"
	"github.com/picogrid/fleet-dispatch-sim/pkg/geofence"
	"github.com/picogrid/fleet-dispatch-sim/pkg/kinematics"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
	"github.com/picogrid/fleet-dispatch-sim/pkg/reporting"
	"github.com/picogrid/fleet-dispatch-sim/pkg/simulation"
	"github.com/picogrid/fleet-dispatch-sim/pkg/telemetry"
	"github.com/picogrid/fleet-dispatch-sim/pkg/tracing"
)

// FleetConfig holds the complete configuration of a fleet run
type FleetConfig struct {
	// Basic simulation settings
	Simulation SimulationSettings `yaml:"simulation"`

	// Where drones return to; zero means each drone's starting point
	HomeBase models.Coordinates `yaml:"home_base"`

	Geofence GeofenceConfig `yaml:"geofence"`
	Battery  BatteryConfig  `yaml:"battery"`
	Flight   FlightConfig   `yaml:"flight"`

	// Emergency dispatch and failover
	Dispatch DispatchConfig `yaml:"dispatch"`
	Failover FailoverConfig `yaml:"failover"`

	// Telemetry batching and live fan-out
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Broadcast BroadcastConfig `yaml:"broadcast"`

	// Ops HTTP server (/metrics, /healthz, /ws)
	Server ServerConfig `yaml:"server"`

	Logging LoggingConfig  `yaml:"logging"`
	Tracing tracing.Config `yaml:"tracing"`

	// Seed records for the in-memory repositories
	Fleet FleetSeed `yaml:"fleet"`
}

// SimulationSettings holds the tick loop settings
type SimulationSettings struct {
	Name          string        `yaml:"name"`
	Description   string        `yaml:"description"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	DeliveryDwell time.Duration `yaml:"delivery_dwell"`
	StopTimeout   time.Duration `yaml:"stop_timeout"`
	Workers       int           `yaml:"workers"`
	// RandomSeed drives battery temperature and patrol headings; 0 picks one from the clock
	RandomSeed int64 `yaml:"random_seed"`
	// Duration of a run; 0 runs until interrupted
	Duration time.Duration `yaml:"duration"`
}

// GeofenceConfig defines the circular operating boundary around the home base
type GeofenceConfig struct {
	RadiusMeters float64 `yaml:"radius_meters"`
	WarningRatio float64 `yaml:"warning_ratio"` // 0.0 to 1.0
}

// BatteryConfig defines drain rates (percent per minute) and alert levels
type BatteryConfig struct {
	NormalDrainRate    float64 `yaml:"normal_drain_rate"`
	EmergencyDrainRate float64 `yaml:"emergency_drain_rate"`
	LowThreshold       float64 `yaml:"low_threshold"`
	CriticalThreshold  float64 `yaml:"critical_threshold"`
}

// FlightConfig defines flight performance
type FlightConfig struct {
	CruiseAltitude        float64 `yaml:"cruise_altitude"`         // meters
	ClimbRate             float64 `yaml:"climb_rate"`              // m/s
	LandingRate           float64 `yaml:"landing_rate"`            // m/s
	EmergencyDescentRate  float64 `yaml:"emergency_descent_rate"`  // m/s
	MaxSpeed              float64 `yaml:"max_speed"`               // m/s
	EmergencyMaxSpeed     float64 `yaml:"emergency_max_speed"`     // m/s
	PatrolSpeed           float64 `yaml:"patrol_speed"`            // m/s
	PatrolTurnProbability float64 `yaml:"patrol_turn_probability"` // 0.0 to 1.0
	ArrivalThreshold      float64 `yaml:"arrival_threshold"`       // meters
}

// DispatchConfig defines emergency routing
type DispatchConfig struct {
	CruiseSpeed        float64              `yaml:"cruise_speed"` // m/s
	PickupDwellMinutes float64              `yaml:"pickup_dwell_minutes"`
	Clearance          float64              `yaml:"clearance"`
	ProximityMeters    float64              `yaml:"proximity_meters"`
	NoFlyZones         []dispatch.NoFlyZone `yaml:"no_fly_zones"`
	GroundStaff        []string             `yaml:"ground_staff"`
}

// FailoverConfig defines the delivery watch thresholds
type FailoverConfig struct {
	CheckInterval   time.Duration `yaml:"check_interval"`
	CriticalBattery float64       `yaml:"critical_battery"`
	DelayThreshold  time.Duration `yaml:"delay_threshold"`
	CommLossTimeout time.Duration `yaml:"comm_loss_timeout"`
}

// TelemetryConfig defines sample batching
type TelemetryConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxBatchSize  int           `yaml:"max_batch_size"`
	Concurrency   int           `yaml:"concurrency"`
	MaxPending    int           `yaml:"max_pending"`
	AlertTTL      time.Duration `yaml:"alert_ttl"`
	// SamplesPerDrone bounds the in-memory telemetry history
	SamplesPerDrone int `yaml:"samples_per_drone"`
}

// BroadcastConfig defines the live fan-out targets
type BroadcastConfig struct {
	NATS      NATSConfig `yaml:"nats"`
	WebSocket bool       `yaml:"websocket"`
}

// NATSConfig defines the JetStream broadcaster
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// ServerConfig defines the ops HTTP server
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig defines logging and reporting settings
type LoggingConfig struct {
	ConsoleLevel     string `yaml:"console_level"` // "debug", "info", "warn", "error"
	NoColor          bool   `yaml:"no_color"`
	EchoJournal      bool   `yaml:"echo_journal"`
	EnableReport     bool   `yaml:"enable_report"`
	ReportFormat     string `yaml:"report_format"` // "json", "yaml", "markdown"
	ReportDetail     string `yaml:"report_detail"` // "summary", "full"
	ReportOutputPath string `yaml:"report_output_path"`
}

// FleetSeed lists the drones and orders loaded at startup
type FleetSeed struct {
	Drones []models.DroneRecord `yaml:"drones"`
	Orders []OrderSeed          `yaml:"orders"`
}

// OrderSeed is an order plus its delivery estimate relative to startup
type OrderSeed struct {
	models.OrderRecord `yaml:",inline"`
	EstimatedInMinutes float64 `yaml:"estimated_in_minutes"`
}

var (
	validLevels        = []string{"debug", "info", "warn", "error"}
	validReportFormats = []string{"json", "yaml", "markdown"}
	validReportDetails = []string{"summary", "full"}
)

// Validate checks if the configuration is valid
func (c *FleetConfig) Validate() error {
	if c.Simulation.Name == "" {
		return fmt.Errorf("simulation name is required")
	}

	if c.Simulation.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}

	if c.Simulation.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}

	if c.Simulation.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}

	if c.Geofence.RadiusMeters <= 0 {
		return fmt.Errorf("geofence radius must be positive")
	}

	if c.Geofence.WarningRatio < 0 || c.Geofence.WarningRatio > 1 {
		return fmt.Errorf("geofence warning ratio must be between 0.0 and 1.0")
	}

	// Battery thresholds
	if c.Battery.NormalDrainRate < 0 || c.Battery.EmergencyDrainRate < 0 {
		return fmt.Errorf("battery drain rates must not be negative")
	}

	if c.Battery.CriticalThreshold >= c.Battery.LowThreshold {
		return fmt.Errorf("battery critical threshold must be below the low threshold")
	}

	if c.Flight.MaxSpeed <= 0 || c.Flight.EmergencyMaxSpeed < c.Flight.MaxSpeed {
		return fmt.Errorf("max speed must be positive and not above the emergency max speed")
	}

	if c.Flight.PatrolTurnProbability < 0 || c.Flight.PatrolTurnProbability > 1 {
		return fmt.Errorf("patrol turn probability must be between 0.0 and 1.0")
	}

	if c.Dispatch.CruiseSpeed <= 0 {
		return fmt.Errorf("dispatch cruise speed must be positive")
	}

	for _, z := range c.Dispatch.NoFlyZones {
		if z.RadiusMeters <= 0 {
			return fmt.Errorf("no-fly zone %q must have a positive radius", z.Name)
		}
	}

	if err := c.FailoverSettings().Validate(); err != nil {
		return fmt.Errorf("failover: %w", err)
	}

	if c.Broadcast.NATS.Enabled && c.Broadcast.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}

	if c.Server.Enabled && c.Server.Address == "" {
		return fmt.Errorf("server address is required when the server is enabled")
	}

	if !oneOf(c.Logging.ConsoleLevel, validLevels) {
		return fmt.Errorf("unknown console level %q", c.Logging.ConsoleLevel)
	}

	if c.Logging.EnableReport && !oneOf(c.Logging.ReportFormat, validReportFormats) {
		return fmt.Errorf("unknown report format %q", c.Logging.ReportFormat)
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0.0 and 1.0")
	}

	return c.validateFleet()
}

func (c *FleetConfig) validateFleet() error {
	seen := make(map[string]bool, len(c.Fleet.Drones))
	for _, d := range c.Fleet.Drones {
		if d.ID == "" {
			return fmt.Errorf("fleet drone without id")
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate fleet drone %s", d.ID)
		}
		seen[d.ID] = true
		if !d.Status.Valid() {
			return fmt.Errorf("drone %s: unknown status %q", d.ID, d.Status)
		}
		if d.BatteryLevel < 0 || d.BatteryLevel > 100 {
			return fmt.Errorf("drone %s: battery level must be between 0 and 100", d.ID)
		}
	}

	orders := make(map[string]bool, len(c.Fleet.Orders))
	for _, o := range c.Fleet.Orders {
		if o.ID == "" {
			return fmt.Errorf("fleet order without id")
		}
		if orders[o.ID] {
			return fmt.Errorf("duplicate fleet order %s", o.ID)
		}
		orders[o.ID] = true
		if !o.Status.Valid() {
			return fmt.Errorf("order %s: unknown status %q", o.ID, o.Status)
		}
		if !o.Priority.Valid() {
			return fmt.Errorf("order %s: unknown priority %q", o.ID, o.Priority)
		}
		if o.AssignedDrone != "" && !seen[o.AssignedDrone] {
			return fmt.Errorf("order %s: assigned drone %s is not in the fleet", o.ID, o.AssignedDrone)
		}
	}
	return nil
}

// SchedulerSettings maps the configuration onto the scheduler.
func (c *FleetConfig) SchedulerSettings() simulation.Config {
	return simulation.Config{
		TickInterval:  c.Simulation.TickInterval,
		DeliveryDwell: c.Simulation.DeliveryDwell,
		StopTimeout:   c.Simulation.StopTimeout,
		Workers:       c.Simulation.Workers,
		AlertTTL:      c.Telemetry.AlertTTL,
		HomeBase:      c.HomeBase,
	}
}

// BatteryParams maps the battery section.
func (c *FleetConfig) BatteryParams() battery.Params {
	return battery.Params{
		NormalDrainRate:    c.Battery.NormalDrainRate,
		EmergencyDrainRate: c.Battery.EmergencyDrainRate,
		LowThreshold:       c.Battery.LowThreshold,
		CriticalThreshold:  c.Battery.CriticalThreshold,
	}
}

// FlightParams maps the flight section.
func (c *FleetConfig) FlightParams() kinematics.Params {
	return kinematics.Params{
		CruiseAltitude:        c.Flight.CruiseAltitude,
		ClimbRate:             c.Flight.ClimbRate,
		LandingRate:           c.Flight.LandingRate,
		EmergencyDescentRate:  c.Flight.EmergencyDescentRate,
		MaxSpeed:              c.Flight.MaxSpeed,
		EmergencyMaxSpeed:     c.Flight.EmergencyMaxSpeed,
		PatrolSpeed:           c.Flight.PatrolSpeed,
		PatrolTurnProbability: c.Flight.PatrolTurnProbability,
		ArrivalThreshold:      c.Flight.ArrivalThreshold,
	}
}

// GeofenceBoundary centers the geofence on the home base.
func (c *FleetConfig) GeofenceBoundary() geofence.Boundary {
	return geofence.Boundary{
		Center:       c.HomeBase,
		RadiusMeters: c.Geofence.RadiusMeters,
		WarningRatio: c.Geofence.WarningRatio,
	}
}

// DispatchSettings maps the dispatch section.
func (c *FleetConfig) DispatchSettings() dispatch.Config {
	return dispatch.Config{
		Planner: dispatch.PlannerConfig{
			CruiseSpeed:        c.Dispatch.CruiseSpeed,
			PickupDwellMinutes: c.Dispatch.PickupDwellMinutes,
			Clearance:          c.Dispatch.Clearance,
			ProximityMeters:    c.Dispatch.ProximityMeters,
			Zones:              c.Dispatch.NoFlyZones,
		},
		GroundStaff: c.Dispatch.GroundStaff,
	}
}

// FailoverSettings maps the failover section.
func (c *FleetConfig) FailoverSettings() failover.Config {
	return failover.Config{
		Interval:        c.Failover.CheckInterval,
		CriticalBattery: c.Failover.CriticalBattery,
		DelayThreshold:  c.Failover.DelayThreshold,
		CommLossTimeout: c.Failover.CommLossTimeout,
		AlertTTL:        c.Telemetry.AlertTTL,
	}
}

// BufferSettings maps the telemetry section.
func (c *FleetConfig) BufferSettings() telemetry.BufferConfig {
	return telemetry.BufferConfig{
		FlushInterval: c.Telemetry.FlushInterval,
		MaxBatchSize:  c.Telemetry.MaxBatchSize,
		Concurrency:   c.Telemetry.Concurrency,
		MaxPending:    c.Telemetry.MaxPending,
	}
}

// ReportSettings maps the report options of the logging section.
func (c *FleetConfig) ReportSettings() reporting.ReportConfig {
	return reporting.ReportConfig{
		OutputDir:   c.Logging.ReportOutputPath,
		Format:      c.Logging.ReportFormat,
		DetailLevel: c.Logging.ReportDetail,
	}
}

// SeedDrones returns fresh copies of the configured drones.
func (c *FleetConfig) SeedDrones() []*models.DroneRecord {
	out := make([]*models.DroneRecord, 0, len(c.Fleet.Drones))
	for i := range c.Fleet.Drones {
		d := c.Fleet.Drones[i]
		out = append(out, &d)
	}
	return out
}

// SeedOrders returns the configured orders with their estimates anchored at now.
func (c *FleetConfig) SeedOrders(now time.Time) []*models.OrderRecord {
	out := make([]*models.OrderRecord, 0, len(c.Fleet.Orders))
	for _, seed := range c.Fleet.Orders {
		o := seed.OrderRecord
		o.CreatedAt = now
		if seed.EstimatedInMinutes != 0 {
			o.EstimatedDelivery = now.Add(time.Duration(seed.EstimatedInMinutes * float64(time.Minute)))
		}
		out = append(out, &o)
	}
	return out
}

// String returns a human-readable representation of the configuration
func (c *FleetConfig) String() string {
	return fmt.Sprintf(`Fleet Configuration:
  Name: %s
  Description: %s
  Tick Interval: %v
  Duration: %v

Home Base: %.5f, %.5f
  Geofence Radius: %.0f m

Battery:
  Drain Rate: %.2f %%/min (emergency %.2f)
  Low / Critical: %.0f%% / %.0f%%

Flight:
  Max Speed: %.1f m/s (emergency %.1f)
  Cruise Altitude: %.0f m

Dispatch:
  Cruise Speed: %.1f m/s
  No-Fly Zones: %d
  Ground Staff: %d

Failover:
  Check Interval: %v
  Critical Battery: %.0f%%
  Delay Threshold: %v

Broadcast:
  NATS: %t (%s)
  WebSocket: %t

Fleet:
  Drones: %d
  Orders: %d

Logging:
  Console Level: %s
  Report: %t (%s)`,
		c.Simulation.Name,
		c.Simulation.Description,
		c.Simulation.TickInterval,
		c.Simulation.Duration,
		c.HomeBase.Latitude,
		c.HomeBase.Longitude,
		c.Geofence.RadiusMeters,
		c.Battery.NormalDrainRate,
		c.Battery.EmergencyDrainRate,
		c.Battery.LowThreshold,
		c.Battery.CriticalThreshold,
		c.Flight.MaxSpeed,
		c.Flight.EmergencyMaxSpeed,
		c.Flight.CruiseAltitude,
		c.Dispatch.CruiseSpeed,
		len(c.Dispatch.NoFlyZones),
		len(c.Dispatch.GroundStaff),
		c.Failover.CheckInterval,
		c.Failover.CriticalBattery,
		c.Failover.DelayThreshold,
		c.Broadcast.NATS.Enabled,
		c.Broadcast.NATS.URL,
		c.Broadcast.WebSocket,
		len(c.Fleet.Drones),
		len(c.Fleet.Orders),
		c.Logging.ConsoleLevel,
		c.Logging.EnableReport,
		c.Logging.ReportFormat,
	)
}

// GetDefaultConfig returns a small fleet around a downtown depot
func GetDefaultConfig() *FleetConfig {
	home := models.Coordinates{Latitude: 40.7128, Longitude: -74.0060}
	bat := battery.DefaultParams()
	flight := kinematics.DefaultParams()
	planner := dispatch.DefaultPlannerConfig()
	fo := failover.DefaultConfig()
	buf := telemetry.DefaultBufferConfig()
	sim := simulation.DefaultConfig()

	return &FleetConfig{
		Simulation: SimulationSettings{
			Name:          "fleet-sim",
			Description:   "Drone delivery fleet with emergency dispatch and failover",
			TickInterval:  sim.TickInterval,
			DeliveryDwell: sim.DeliveryDwell,
			StopTimeout:   sim.StopTimeout,
			Workers:       sim.Workers,
		},

		HomeBase: home,

		Geofence: GeofenceConfig{
			RadiusMeters: 10000,
			WarningRatio: geofence.DefaultWarningRatio,
		},

		Battery: BatteryConfig{
			NormalDrainRate:    bat.NormalDrainRate,
			EmergencyDrainRate: bat.EmergencyDrainRate,
			LowThreshold:       bat.LowThreshold,
			CriticalThreshold:  bat.CriticalThreshold,
		},

		Flight: FlightConfig{
			CruiseAltitude:        flight.CruiseAltitude,
			ClimbRate:             flight.ClimbRate,
			LandingRate:           flight.LandingRate,
			EmergencyDescentRate:  flight.EmergencyDescentRate,
			MaxSpeed:              flight.MaxSpeed,
			EmergencyMaxSpeed:     flight.EmergencyMaxSpeed,
			PatrolSpeed:           flight.PatrolSpeed,
			PatrolTurnProbability: flight.PatrolTurnProbability,
			ArrivalThreshold:      flight.ArrivalThreshold,
		},

		Dispatch: DispatchConfig{
			CruiseSpeed:        planner.CruiseSpeed,
			PickupDwellMinutes: planner.PickupDwellMinutes,
			Clearance:          planner.Clearance,
			ProximityMeters:    planner.ProximityMeters,
			NoFlyZones: []dispatch.NoFlyZone{
				{Name: "heliport", Center: models.Coordinates{Latitude: 40.7010, Longitude: -74.0090}, RadiusMeters: 400},
			},
			GroundStaff: []string{"ops@fleet.local"},
		},

		Failover: FailoverConfig{
			CheckInterval:   fo.Interval,
			CriticalBattery: fo.CriticalBattery,
			DelayThreshold:  fo.DelayThreshold,
			CommLossTimeout: fo.CommLossTimeout,
		},

		Telemetry: TelemetryConfig{
			FlushInterval:   buf.FlushInterval,
			MaxBatchSize:    buf.MaxBatchSize,
			Concurrency:     buf.Concurrency,
			MaxPending:      buf.MaxPending,
			AlertTTL:        models.DefaultAlertTTL,
			SamplesPerDrone: 500,
		},

		Broadcast: BroadcastConfig{
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				Stream:        "FLEET",
				SubjectPrefix: "fleet",
			},
			WebSocket: true,
		},

		Server: ServerConfig{
			Enabled: true,
			Address: ":8080",
		},

		Logging: LoggingConfig{
			ConsoleLevel:     "info",
			EchoJournal:      true,
			EnableReport:     true,
			ReportFormat:     "markdown",
			ReportDetail:     "summary",
			ReportOutputPath: "reports",
		},

		Tracing: tracing.Config{
			ServiceName: "fleet-sim",
			Exporter:    "stdout",
			SampleRatio: 1,
		},

		Fleet: defaultFleet(home),
	}
}

func defaultFleet(home models.Coordinates) FleetSeed {
	at := func(dLat, dLon float64) models.Position {
		return models.Position{Latitude: home.Latitude + dLat, Longitude: home.Longitude + dLon}
	}
	place := func(dLat, dLon float64, addr string) models.Location {
		return models.Location{
			Coordinates: models.Coordinates{Latitude: home.Latitude + dLat, Longitude: home.Longitude + dLon},
			Address:     addr,
		}
	}

	return FleetSeed{
		Drones: []models.DroneRecord{
			{ID: "drone-001", Model: "Courier X4", Status: models.DroneAvailable, BatteryLevel: 92, Location: at(0.002, 0.001), MaxPayload: 5, MaxRange: 30, Reliability: 95, EmergencyCapable: true},
			{ID: "drone-002", Model: "Courier X4", Status: models.DroneEmergencyStandby, BatteryLevel: 100, Location: at(0, 0), MaxPayload: 5, MaxRange: 30, Reliability: 90, EmergencyCapable: true},
			{ID: "drone-003", Model: "Courier X2", Status: models.DroneInFlight, BatteryLevel: 64, Location: at(0.01, 0.008), MaxPayload: 3, MaxRange: 20, Reliability: 85, EmergencyCapable: true, CurrentOrderID: "order-101"},
			{ID: "drone-004", Model: "Courier X2", Status: models.DroneAvailable, BatteryLevel: 41, Location: at(-0.004, 0.003), MaxPayload: 3, MaxRange: 20, Reliability: 70},
			{ID: "drone-005", Model: "Lifter H8", Status: models.DroneCharging, BatteryLevel: 35, Location: at(0, 0), MaxPayload: 12, MaxRange: 15, Reliability: 88, EmergencyCapable: true},
		},
		Orders: []OrderSeed{
			{
				OrderRecord: models.OrderRecord{
					ID: "order-101", Status: models.OrderInTransit, Priority: models.PriorityNormal,
					Pickup: place(0.005, 0.004, "12 Water St"), Delivery: place(0.02, 0.015, "410 Grand St"),
					PackageWeight: 1.5, AssignedDrone: "drone-003",
				},
				EstimatedInMinutes: 12,
			},
			{
				OrderRecord: models.OrderRecord{
					ID: "order-900", Status: models.OrderPending, Priority: models.PriorityEmergency, IsEmergency: true,
					Pickup: place(0.003, -0.002, "Downtown Hospital"), Delivery: place(0.03, -0.01, "88 Hudson St"),
					PackageWeight: 2,
				},
				EstimatedInMinutes: 15,
			},
		},
	}
}

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}
