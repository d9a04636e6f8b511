// Package store defines the contracts between the fleet core and the systems
// that persist and fan out its data, plus in-memory implementations.
package store

import (
	"context"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// DroneFilter selects drone records. Zero-valued fields match everything.
type DroneFilter struct {
	Statuses  []models.DroneStatus
	ExcludeID []string
	// EmergencyCapable, when set, matches only drones with that flag value
	EmergencyCapable *bool
}

// Match reports whether the record satisfies the filter.
func (f DroneFilter) Match(d *models.DroneRecord) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, d.Status) {
		return false
	}
	for _, id := range f.ExcludeID {
		if id == d.ID {
			return false
		}
	}
	if f.EmergencyCapable != nil && d.EmergencyCapable != *f.EmergencyCapable {
		return false
	}
	return true
}

func containsStatus(list []models.DroneStatus, s models.DroneStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// OrderFilter selects order records. Zero-valued fields match everything.
type OrderFilter struct {
	Statuses      []models.OrderStatus
	Priorities    []models.Priority
	AssignedDrone string
}

// Match reports whether the record satisfies the filter.
func (f OrderFilter) Match(o *models.OrderRecord) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if s == o.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Priorities) > 0 {
		ok := false
		for _, p := range f.Priorities {
			if p == o.Priority {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.AssignedDrone != "" && f.AssignedDrone != o.AssignedDrone {
		return false
	}
	return true
}

// DroneRepository reads and writes drone records. Get returns
// models.ErrDroneNotFound for unknown IDs.
type DroneRepository interface {
	Get(ctx context.Context, id string) (*models.DroneRecord, error)
	Find(ctx context.Context, filter DroneFilter) ([]*models.DroneRecord, error)
	Save(ctx context.Context, drone *models.DroneRecord) error
}

// OrderRepository reads and writes order records. Get returns
// models.ErrOrderNotFound for unknown IDs.
type OrderRepository interface {
	Get(ctx context.Context, id string) (*models.OrderRecord, error)
	Find(ctx context.Context, filter OrderFilter) ([]*models.OrderRecord, error)
	Save(ctx context.Context, order *models.OrderRecord) error
}

// TelemetrySink persists telemetry samples.
type TelemetrySink interface {
	Record(ctx context.Context, sample models.TelemetrySample) error
}

// RealtimeBroadcaster fans payloads out to live subscribers. Failures are
// reported but never fatal to the caller.
type RealtimeBroadcaster interface {
	Publish(ctx context.Context, channel string, payload any) error
}

// NotificationGateway delivers best-effort notices to people.
type NotificationGateway interface {
	Notify(ctx context.Context, recipients []string, message string, severity models.Severity) error
}

// Channel names used for real-time fan-out.
const (
	FleetEventsChannel = "fleet/events"
)

// DroneTelemetryChannel is the channel carrying a drone's samples.
func DroneTelemetryChannel(droneID string) string {
	return "drones/" + droneID + "/telemetry"
}

// DroneAlertsChannel is the channel carrying a drone's new alerts.
func DroneAlertsChannel(droneID string) string {
	return "drones/" + droneID + "/alerts"
}

// OrderTrackingChannel is the channel carrying an order's progress updates.
func OrderTrackingChannel(orderID string) string {
	return "orders/" + orderID + "/tracking"
}

// Discard implements TelemetrySink, RealtimeBroadcaster and NotificationGateway
// by dropping everything.
type Discard struct{}

func (Discard) Record(context.Context, models.TelemetrySample) error { return nil }

func (Discard) Publish(context.Context, string, any) error { return nil }

func (Discard) Notify(context.Context, []string, string, models.Severity) error { return nil }
