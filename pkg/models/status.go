package models

// DroneStatus is the externally visible status of a drone record.
type DroneStatus string

const (
	DroneAvailable         DroneStatus = "available"
	DroneInFlight          DroneStatus = "in_flight"
	DroneReturning         DroneStatus = "returning"
	DroneEmergencyStandby  DroneStatus = "emergency_standby"
	DroneEmergencyAssigned DroneStatus = "emergency_assigned"
	DroneCriticalBattery   DroneStatus = "critical_battery"
	DroneMaintenance       DroneStatus = "maintenance"
	DroneCharging          DroneStatus = "charging"
	DroneOffline           DroneStatus = "offline"
)

func (s DroneStatus) String() string {
	return string(s)
}

// Valid reports whether s is a known drone status.
func (s DroneStatus) Valid() bool {
	switch s {
	case DroneAvailable, DroneInFlight, DroneReturning, DroneEmergencyStandby,
		DroneEmergencyAssigned, DroneCriticalBattery, DroneMaintenance,
		DroneCharging, DroneOffline:
		return true
	}
	return false
}

// Dispatchable reports whether a drone in this status may be picked for an order.
func (s DroneStatus) Dispatchable() bool {
	return s == DroneAvailable || s == DroneEmergencyStandby
}

// Simulatable reports whether a drone in this status is loaded into the simulation.
func (s DroneStatus) Simulatable() bool {
	return s != DroneMaintenance && s != DroneOffline
}

// OrderStatus is the lifecycle status of a delivery order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderInTransit  OrderStatus = "in_transit"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderFailed     OrderStatus = "failed"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderInTransit, OrderDelivered, OrderCancelled, OrderFailed:
		return true
	}
	return false
}

// Active reports whether the order is being worked on by a drone.
func (s OrderStatus) Active() bool {
	return s == OrderProcessing || s == OrderInTransit
}

// Terminal reports whether the order can no longer change.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled || s == OrderFailed
}

// Priority ranks orders against each other.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityNormal    Priority = "normal"
	PriorityHigh      Priority = "high"
	PriorityEmergency Priority = "emergency"
)

func (p Priority) String() string {
	return string(p)
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityEmergency:
		return true
	}
	return false
}

// Preemptible reports whether an order at this priority yields its drone to an emergency.
func (p Priority) Preemptible() bool {
	return p == PriorityNormal || p == PriorityHigh
}

// EmergencyState tracks an order through emergency dispatch.
type EmergencyState string

const (
	EmergencyNormal    EmergencyState = "normal"
	EmergencyPending   EmergencyState = "emergency_pending"
	EmergencyAssigned  EmergencyState = "emergency_assigned"
	EmergencyFailover  EmergencyState = "emergency_failover"
	EmergencyDelivered EmergencyState = "delivered"
	EmergencyFailed    EmergencyState = "failed"
)

func (s EmergencyState) String() string {
	return string(s)
}

// Valid reports whether s is a known emergency state.
func (s EmergencyState) Valid() bool {
	switch s {
	case EmergencyNormal, EmergencyPending, EmergencyAssigned, EmergencyFailover, EmergencyDelivered, EmergencyFailed:
		return true
	}
	return false
}

// GeofenceStatus classifies a position against the flight boundary.
type GeofenceStatus string

const (
	GeofenceInside    GeofenceStatus = "inside"
	GeofenceWarning   GeofenceStatus = "warning"
	GeofenceViolation GeofenceStatus = "violation"
)

func (s GeofenceStatus) String() string {
	return string(s)
}

// Severity returns an ordering where a larger value is more severe.
func (s GeofenceStatus) Severity() int {
	switch s {
	case GeofenceWarning:
		return 1
	case GeofenceViolation:
		return 2
	}
	return 0
}

// FailoverReason says why an emergency delivery was moved to another drone.
type FailoverReason string

const (
	ReasonCriticalBattery FailoverReason = "critical_battery"
	ReasonDelayedDelivery FailoverReason = "delayed_delivery"
	ReasonManual          FailoverReason = "manual"
)

func (r FailoverReason) String() string {
	return string(r)
}

// RetiredStatus is the status the replaced drone is moved to.
func (r FailoverReason) RetiredStatus() DroneStatus {
	if r == ReasonCriticalBattery {
		return DroneCriticalBattery
	}
	return DroneMaintenance
}
