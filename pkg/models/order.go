package models

import "time"

// WaypointKind marks the purpose of a route waypoint.
type WaypointKind string

const (
	WaypointStart    WaypointKind = "start"
	WaypointPickup   WaypointKind = "pickup"
	WaypointDetour   WaypointKind = "detour"
	WaypointDelivery WaypointKind = "delivery"
)

// Waypoint is one point on a planned route.
type Waypoint struct {
	Coordinates `yaml:",inline"`
	Kind        WaypointKind `json:"kind" yaml:"kind"`
}

// Route is a planned flight from the drone's position through pickup to delivery.
type Route struct {
	Waypoints            []Waypoint `json:"waypoints"`
	DistanceKm           float64    `json:"distanceKm"`
	EstimatedTimeMinutes float64    `json:"estimatedTimeMinutes"`
	// SafetyScore 0-100, higher is safer
	SafetyScore float64 `json:"safetyScore"`
}

// Clone returns a deep copy of the route.
func (r *Route) Clone() *Route {
	out := *r
	out.Waypoints = append([]Waypoint(nil), r.Waypoints...)
	return &out
}

// TrackingEntry is one line of an order's append-only history.
type TrackingEntry struct {
	Status    OrderStatus  `json:"status"`
	Notes     string       `json:"notes"`
	Location  *Coordinates `json:"location,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// FailoverEvent records one reassignment of an emergency order.
type FailoverEvent struct {
	FromDroneID string         `json:"fromDroneId"`
	ToDroneID   string         `json:"toDroneId,omitempty"`
	Reason      FailoverReason `json:"reason"`
	At          time.Time      `json:"at"`
}

// Progress is the last computed progress of a tracked delivery.
type Progress struct {
	// Percent along the route, 0-100
	Percent         float64   `json:"percent"`
	CurrentWaypoint int       `json:"currentWaypoint"`
	NextWaypoint    int       `json:"nextWaypoint"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// EmergencyTracking is the emergency sub-state of an order.
type EmergencyTracking struct {
	State                      EmergencyState  `json:"state"`
	LiveTracking               bool            `json:"liveTracking"`
	ApprovedBy                 string          `json:"approvedBy,omitempty"`
	ApprovedAt                 time.Time       `json:"approvedAt,omitempty"`
	FailoverCount              int             `json:"failoverCount"`
	Failovers                  []FailoverEvent `json:"failovers,omitempty"`
	RequiresManualIntervention bool            `json:"requiresManualIntervention"`
	LastProgress               *Progress       `json:"lastProgress,omitempty"`
}

// OrderRecord is the persisted view of a delivery order.
type OrderRecord struct {
	ID          string      `json:"id" yaml:"id"`
	Status      OrderStatus `json:"status" yaml:"status"`
	Priority    Priority    `json:"priority" yaml:"priority"`
	IsEmergency bool        `json:"isEmergency" yaml:"is_emergency"`

	Pickup   Location `json:"pickup" yaml:"pickup"`
	Delivery Location `json:"delivery" yaml:"delivery"`
	// PackageWeight in kg
	PackageWeight float64 `json:"packageWeight" yaml:"package_weight"`

	EstimatedDelivery time.Time `json:"estimatedDelivery,omitempty" yaml:"-"`
	ActualDelivery    time.Time `json:"actualDelivery,omitempty" yaml:"-"`
	AssignedDrone     string    `json:"assignedDrone,omitempty" yaml:"assigned_drone,omitempty"`
	Route             *Route    `json:"route,omitempty" yaml:"-"`

	TrackingHistory   []TrackingEntry    `json:"trackingHistory" yaml:"-"`
	EmergencyTracking *EmergencyTracking `json:"emergencyTracking,omitempty" yaml:"-"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// DeliveryDistanceKm is the pickup to delivery distance.
func (o *OrderRecord) DeliveryDistanceKm() float64 {
	return o.Pickup.Coordinates.DistanceKm(o.Delivery.Coordinates)
}

// AppendHistory adds an entry to the tracking history.
func (o *OrderRecord) AppendHistory(status OrderStatus, notes string, loc *Coordinates, at time.Time) {
	entry := TrackingEntry{Status: status, Notes: notes, Timestamp: at}
	if loc != nil {
		c := *loc
		entry.Location = &c
	}
	o.TrackingHistory = append(o.TrackingHistory, entry)
}

// Clone returns a deep copy of the order.
func (o *OrderRecord) Clone() *OrderRecord {
	out := *o
	if o.Route != nil {
		out.Route = o.Route.Clone()
	}
	out.TrackingHistory = make([]TrackingEntry, len(o.TrackingHistory))
	for i, e := range o.TrackingHistory {
		if e.Location != nil {
			c := *e.Location
			e.Location = &c
		}
		out.TrackingHistory[i] = e
	}
	if o.EmergencyTracking != nil {
		et := *o.EmergencyTracking
		et.Failovers = append([]FailoverEvent(nil), o.EmergencyTracking.Failovers...)
		if o.EmergencyTracking.LastProgress != nil {
			p := *o.EmergencyTracking.LastProgress
			et.LastProgress = &p
		}
		out.EmergencyTracking = &et
	}
	return &out
}
