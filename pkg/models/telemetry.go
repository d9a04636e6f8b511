package models

import (
	"time"

	"github.com/google/uuid"
)

// TelemetrySample is an immutable snapshot of a drone taken at the end of a tick.
type TelemetrySample struct {
	ID             uuid.UUID      `json:"id"`
	DroneID        string         `json:"droneId"`
	OrderID        string         `json:"orderId,omitempty"`
	RecordedAt     time.Time      `json:"recordedAt"`
	Position       Position       `json:"position"`
	ECEF           [3]float64     `json:"ecef"`
	Velocity       Velocity       `json:"velocity"`
	Battery        Battery        `json:"battery"`
	Mode           Mode           `json:"mode"`
	EmergencyMode  bool           `json:"emergencyMode"`
	GeofenceStatus GeofenceStatus `json:"geofenceStatus"`
	Alerts         []Alert        `json:"alerts"`
}

// NewTelemetrySample snapshots the state. The sample shares nothing with it.
func NewTelemetrySample(s *DroneSimState, at time.Time) TelemetrySample {
	return TelemetrySample{
		ID:             uuid.New(),
		DroneID:        s.DroneID,
		OrderID:        s.OrderID,
		RecordedAt:     at,
		Position:       s.Position,
		ECEF:           s.Position.ECEF(),
		Velocity:       s.Velocity,
		Battery:        s.Battery,
		Mode:           s.Mode,
		EmergencyMode:  s.EmergencyMode,
		GeofenceStatus: s.GeofenceStatus,
		Alerts:         s.Alerts.List(),
	}
}
