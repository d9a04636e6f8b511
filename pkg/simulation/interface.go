package simulation

import (
	"context"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Service defines a long-running component owned by the fleet process
type Service interface {
	// Name returns the name used in logs
	Name() string

	// Start begins background work. Calling Start on a running service is a no-op.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service. It is safe to call more than once.
	Stop(ctx context.Context) error
}

// Mission tells a live drone where to fly. The last waypoint is the drop-off;
// earlier waypoints are passed through without stopping.
type Mission struct {
	OrderID   string
	Waypoints []models.Coordinates
	Emergency bool
}

// Fleet is the live view of simulated drones used by the dispatcher
type Fleet interface {
	// Query returns a copy of a drone's simulated state
	Query(droneID string) (models.DroneSimState, error)

	// AddDrone loads a drone that is not simulated yet
	AddDrone(ctx context.Context, droneID string) error

	// Dispatch sends a drone on a mission, replacing whatever it was doing
	Dispatch(droneID string, m Mission) error

	// Recall abandons the current mission and flies the drone home
	Recall(droneID string) error

	// Ground lands the drone where it is
	Ground(droneID string) error
}
