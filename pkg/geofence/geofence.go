// Package geofence classifies drone positions against a circular flight boundary.
package geofence

import (
	"fmt"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// DefaultWarningRatio is the fraction of the radius past which a drone is in the warning band.
const DefaultWarningRatio = 0.9

// Boundary is a circular authorized flight area.
type Boundary struct {
	Center       models.Coordinates
	RadiusMeters float64
	// WarningRatio of the radius where the warning band starts; 0 means DefaultWarningRatio
	WarningRatio float64
}

// Monitor classifies positions against one boundary.
type Monitor struct {
	boundary Boundary
	warnAt   float64
}

// NewMonitor validates the boundary and returns a monitor for it.
func NewMonitor(b Boundary) (*Monitor, error) {
	if b.RadiusMeters <= 0 {
		return nil, fmt.Errorf("geofence radius must be positive, got %v", b.RadiusMeters)
	}
	if b.WarningRatio == 0 {
		b.WarningRatio = DefaultWarningRatio
	}
	if b.WarningRatio < 0 || b.WarningRatio > 1 {
		return nil, fmt.Errorf("geofence warning ratio must be in (0, 1], got %v", b.WarningRatio)
	}
	return &Monitor{boundary: b, warnAt: b.RadiusMeters * b.WarningRatio}, nil
}

// Boundary returns the monitored boundary.
func (m *Monitor) Boundary() Boundary {
	return m.boundary
}

// Classify maps a distance from the center in meters to exactly one status.
func (m *Monitor) Classify(distanceMeters float64) models.GeofenceStatus {
	switch {
	case distanceMeters <= m.warnAt:
		return models.GeofenceInside
	case distanceMeters <= m.boundary.RadiusMeters:
		return models.GeofenceWarning
	default:
		return models.GeofenceViolation
	}
}

// Check updates the state's geofence status and raises a geofence_violation
// alert if the drone is outside and no such alert is active. It returns the
// newly raised alert, if any.
func (m *Monitor) Check(s *models.DroneSimState, now time.Time) *models.Alert {
	d := s.Position.Coordinates().DistanceMeters(m.boundary.Center)
	s.GeofenceStatus = m.Classify(d)
	if s.GeofenceStatus != models.GeofenceViolation {
		return nil
	}

	if s.Alerts == nil {
		s.Alerts = models.Alerts{}
	}
	a := models.Alert{
		Type:     models.AlertGeofenceViolation,
		Message:  fmt.Sprintf("Drone %.0fm from geofence center, limit %.0fm", d, m.boundary.RadiusMeters),
		Severity: models.SeverityCritical,
		RaisedAt: now,
	}
	if !s.Alerts.Raise(a) {
		return nil
	}
	return &a
}
