package models

import "time"

// Velocity of a simulated drone.
type Velocity struct {
	// Speed over ground in m/s
	Speed float64 `json:"speed"`
	// Heading in degrees [0, 360)
	Heading float64 `json:"heading"`
	// VerticalSpeed in m/s, negative when descending
	VerticalSpeed float64 `json:"verticalSpeed"`
}

// Battery of a simulated drone.
type Battery struct {
	// Level is the charge percentage in [0, 100]
	Level        float64 `json:"level"`
	Voltage      float64 `json:"voltage"`
	TemperatureC float64 `json:"temperatureC"`
}

// DroneSimState is the live simulation state of one active drone.
type DroneSimState struct {
	DroneID string `json:"droneId"`

	Position    Position     `json:"position"`
	Destination *Coordinates `json:"destination,omitempty"`
	HomeBase    Coordinates  `json:"homeBase"`
	Velocity    Velocity     `json:"velocity"`
	Battery     Battery      `json:"battery"`

	Mode Mode `json:"mode"`
	// EmergencyMode raises drain rate and max speed independently of Mode
	EmergencyMode bool `json:"emergencyMode"`
	// CriticalLatched is set once the battery crossed the critical threshold
	// and stays set until the drone is idle again.
	CriticalLatched bool `json:"criticalLatched"`

	OrderID        string         `json:"orderId,omitempty"`
	GeofenceStatus GeofenceStatus `json:"geofenceStatus"`
	Alerts         Alerts         `json:"alerts"`

	LastTickAt time.Time  `json:"lastTickAt"`
	FlightPath FlightPath `json:"-"`
}

// Clone returns a deep copy of the state.
func (s *DroneSimState) Clone() *DroneSimState {
	out := *s
	if s.Destination != nil {
		dest := *s.Destination
		out.Destination = &dest
	}
	out.Alerts = s.Alerts.Clone()
	return &out
}

// EmergencyAssignment binds an order to a drone during an emergency.
type EmergencyAssignment struct {
	OrderID    string    `json:"orderId"`
	DroneID    string    `json:"droneId"`
	AssignedAt time.Time `json:"assignedAt"`
	Priority   Priority  `json:"priority"`
}

// DroneRecord is the persisted view of a drone.
type DroneRecord struct {
	ID           string      `json:"id" yaml:"id"`
	Model        string      `json:"model" yaml:"model"`
	Status       DroneStatus `json:"status" yaml:"status"`
	BatteryLevel float64     `json:"batteryLevel" yaml:"battery_level"`
	Location     Position    `json:"location" yaml:"location"`

	// MaxPayload in kg
	MaxPayload float64 `json:"maxPayload" yaml:"max_payload"`
	// MaxRange in km
	MaxRange float64 `json:"maxRange" yaml:"max_range"`
	// Reliability score 0-100
	Reliability      float64 `json:"reliability" yaml:"reliability"`
	EmergencyCapable bool    `json:"emergencyCapable" yaml:"emergency_capable"`
	// CriticalBatteryThreshold overrides the fleet default when non-zero
	CriticalBatteryThreshold float64 `json:"criticalBatteryThreshold,omitempty" yaml:"critical_battery_threshold,omitempty"`

	CurrentOrderID  string               `json:"currentOrderId,omitempty" yaml:"current_order_id,omitempty"`
	Assignment      *EmergencyAssignment `json:"assignment,omitempty" yaml:"-"`
	LastTelemetryAt time.Time            `json:"lastTelemetryAt,omitempty" yaml:"-"`
	UpdatedAt       time.Time            `json:"updatedAt" yaml:"-"`
}

// Clone returns a deep copy of the record.
func (d *DroneRecord) Clone() *DroneRecord {
	out := *d
	if d.Assignment != nil {
		a := *d.Assignment
		out.Assignment = &a
	}
	return &out
}
