// Package dispatch selects drones for emergency orders, plans their routes
// and commits assignments and failovers against the drone and order stores.
package dispatch

import (
	"fmt"
	"math"
	"sort"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Scoring weights. They sum to 100.
const (
	BatteryWeight     = 40.0
	DistanceWeight    = 30.0
	ReliabilityWeight = 20.0
	PayloadWeight     = 10.0

	// DistanceHorizonKm is where the distance score reaches zero
	DistanceHorizonKm = 50.0
)

// Eligibility floors applied before scoring.
const (
	MinBatteryLevel = 30.0
	// RangeSafetyFactor is the multiple of the delivery distance a drone must be able to fly
	RangeSafetyFactor = 1.5
)

// Candidate is a drone considered for one order.
type Candidate struct {
	Drone                *models.DroneRecord
	Score                float64
	DistanceToPickupKm   float64
	EstimatedTimeMinutes float64
}

// Score rates a drone for an order, higher is better, at most 100. It is a
// pure function of its inputs.
func Score(d *models.DroneRecord, distanceToPickupKm, orderWeight float64) float64 {
	battery := (clamp(d.BatteryLevel, 0, 100) / 100) * BatteryWeight
	distance := math.Max(0, (DistanceHorizonKm-distanceToPickupKm)/DistanceHorizonKm) * DistanceWeight
	reliability := (clamp(d.Reliability, 0, 100) / 100) * ReliabilityWeight

	payload := PayloadWeight
	if orderWeight > 0 {
		payload = math.Min(1, d.MaxPayload/orderWeight) * PayloadWeight
	}
	return battery + distance + reliability + payload
}

// Eligible returns nil when the drone may take the order, or the reason it may not.
func Eligible(d *models.DroneRecord, order *models.OrderRecord) error {
	switch {
	case !d.Status.Dispatchable():
		return fmt.Errorf("status %s is not dispatchable", d.Status)
	case d.MaxPayload < order.PackageWeight:
		return fmt.Errorf("payload %.1fkg below order weight %.1fkg", d.MaxPayload, order.PackageWeight)
	case d.BatteryLevel < MinBatteryLevel:
		return fmt.Errorf("battery %.1f%% below %.0f%%", d.BatteryLevel, MinBatteryLevel)
	case d.MaxRange < order.DeliveryDistanceKm()*RangeSafetyFactor:
		return fmt.Errorf("range %.1fkm below %.1fkm", d.MaxRange, order.DeliveryDistanceKm()*RangeSafetyFactor)
	}
	return nil
}

// Scorer ranks drones for an order.
type Scorer struct {
	// CruiseSpeed in m/s, used for time-to-pickup estimates
	CruiseSpeed float64
}

// Rank returns every eligible drone ordered best first: score descending,
// then battery descending, then distance to pickup ascending, then ID.
func (s Scorer) Rank(drones []*models.DroneRecord, order *models.OrderRecord) []Candidate {
	pickup := order.Pickup.Coordinates
	candidates := make([]Candidate, 0, len(drones))
	for _, d := range drones {
		if Eligible(d, order) != nil {
			continue
		}
		dist := d.Location.Coordinates().DistanceKm(pickup)
		candidates = append(candidates, Candidate{
			Drone:                d,
			Score:                Score(d, dist, order.PackageWeight),
			DistanceToPickupKm:   dist,
			EstimatedTimeMinutes: travelMinutes(dist, s.CruiseSpeed),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Drone.BatteryLevel != b.Drone.BatteryLevel {
			return a.Drone.BatteryLevel > b.Drone.BatteryLevel
		}
		if a.DistanceToPickupKm != b.DistanceToPickupKm {
			return a.DistanceToPickupKm < b.DistanceToPickupKm
		}
		return a.Drone.ID < b.Drone.ID
	})
	return candidates
}

// Select returns the best candidate or ErrNoCandidateDrone.
func (s Scorer) Select(drones []*models.DroneRecord, order *models.OrderRecord) (Candidate, error) {
	ranked := s.Rank(drones, order)
	if len(ranked) == 0 {
		return Candidate{}, fmt.Errorf("order %s: %w", order.ID, models.ErrNoCandidateDrone)
	}
	return ranked[0], nil
}

func travelMinutes(distanceKm, speedMS float64) float64 {
	if speedMS <= 0 {
		return 0
	}
	return distanceKm * 1000 / speedMS / 60
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
