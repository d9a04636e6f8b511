package failover

import (
	"math"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// ProgressUpdate is published on an order's tracking channel after every check.
type ProgressUpdate struct {
	OrderID           string          `json:"orderId"`
	DroneID           string          `json:"droneId"`
	Progress          models.Progress `json:"progress"`
	Position          models.Position `json:"position"`
	BatteryLevel      float64         `json:"batteryLevel"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
}

// RouteProgress places pos on the route by its nearest waypoint. Percent is
// the share of route distance up to that waypoint. Routes are short, so a
// linear scan is enough.
func RouteProgress(route *models.Route, pos models.Coordinates, now time.Time) *models.Progress {
	if route == nil || len(route.Waypoints) == 0 {
		return nil
	}
	wps := route.Waypoints

	nearest, best := 0, math.Inf(1)
	for i, wp := range wps {
		if d := wp.DistanceMeters(pos); d < best {
			nearest, best = i, d
		}
	}

	var total, done float64
	for i := 1; i < len(wps); i++ {
		leg := wps[i-1].DistanceKm(wps[i].Coordinates)
		total += leg
		if i <= nearest {
			done += leg
		}
	}

	percent := 100.0
	if total > 0 {
		percent = done / total * 100
	}
	next := nearest + 1
	if next >= len(wps) {
		next = len(wps) - 1
	}
	return &models.Progress{
		Percent:         percent,
		CurrentWaypoint: nearest,
		NextWaypoint:    next,
		UpdatedAt:       now,
	}
}
