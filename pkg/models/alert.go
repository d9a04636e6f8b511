package models

import (
	"sort"
	"time"
)

// DefaultAlertTTL is how long an alert stays active after being raised.
const DefaultAlertTTL = 5 * time.Minute

// Severity of an alert or notification.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertType identifies an alert condition. Alerts are deduplicated by type.
type AlertType string

const (
	AlertBatteryLow        AlertType = "battery_low"
	AlertEmergencyLanding  AlertType = "emergency_landing"
	AlertGeofenceViolation AlertType = "geofence_violation"
	AlertDeliveryDelay     AlertType = "delivery_delay"
	AlertCommunicationLost AlertType = "communication_lost"
)

// Alert is one active condition on a drone.
type Alert struct {
	Type     AlertType `json:"type"`
	Message  string    `json:"message"`
	Severity Severity  `json:"severity"`
	RaisedAt time.Time `json:"raisedAt"`
}

// Alerts is a set of active alerts keyed by type.
type Alerts map[AlertType]Alert

// Has reports whether an alert of the given type is active.
func (a Alerts) Has(t AlertType) bool {
	_, ok := a[t]
	return ok
}

// Raise adds the alert unless one of the same type is already active.
// It returns true if the alert was added.
func (a Alerts) Raise(alert Alert) bool {
	if a.Has(alert.Type) {
		return false
	}
	a[alert.Type] = alert
	return true
}

// Expire drops every alert raised more than ttl before now and returns how many were removed.
func (a Alerts) Expire(now time.Time, ttl time.Duration) int {
	removed := 0
	for t, alert := range a {
		if now.Sub(alert.RaisedAt) > ttl {
			delete(a, t)
			removed++
		}
	}
	return removed
}

// List returns the alerts ordered by raise time, then type.
func (a Alerts) List() []Alert {
	out := make([]Alert, 0, len(a))
	for _, alert := range a {
		out = append(out, alert)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RaisedAt.Equal(out[j].RaisedAt) {
			return out[i].RaisedAt.Before(out[j].RaisedAt)
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Clone returns an independent copy of the set.
func (a Alerts) Clone() Alerts {
	out := make(Alerts, len(a))
	for t, alert := range a {
		out[t] = alert
	}
	return out
}
