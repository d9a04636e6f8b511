package dispatch

import (
	"math"

	"github.com/picogrid/fleet-dispatch-sim/pkg/geo"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// NoFlyZone is a circular area routes must go around.
type NoFlyZone struct {
	Name         string             `yaml:"name"`
	Center       models.Coordinates `yaml:"center"`
	RadiusMeters float64            `yaml:"radius_meters"`
}

// PlannerConfig tunes route planning.
type PlannerConfig struct {
	// CruiseSpeed in m/s
	CruiseSpeed float64
	// PickupDwellMinutes is added to every ETA for loading
	PickupDwellMinutes float64
	// Clearance is how far outside a zone detours are placed, as a multiple of its radius
	Clearance float64
	// ProximityMeters is the margin under which a close pass lowers the safety score
	ProximityMeters float64
	Zones           []NoFlyZone
}

// DefaultPlannerConfig returns the stock emergency routing settings.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		CruiseSpeed:        25,
		PickupDwellMinutes: 2,
		Clearance:          1.2,
		ProximityMeters:    500,
	}
}

// Planner builds start → pickup → delivery routes with detours around no-fly zones.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner creates a planner. Zero fields take the defaults.
func NewPlanner(cfg PlannerConfig) *Planner {
	def := DefaultPlannerConfig()
	if cfg.CruiseSpeed <= 0 {
		cfg.CruiseSpeed = def.CruiseSpeed
	}
	if cfg.PickupDwellMinutes < 0 {
		cfg.PickupDwellMinutes = 0
	}
	if cfg.Clearance <= 1 {
		cfg.Clearance = def.Clearance
	}
	if cfg.ProximityMeters <= 0 {
		cfg.ProximityMeters = def.ProximityMeters
	}
	return &Planner{cfg: cfg}
}

// CruiseSpeed returns the planning speed in m/s.
func (p *Planner) CruiseSpeed() float64 { return p.cfg.CruiseSpeed }

// Plan returns the route from start through pickup to delivery.
func (p *Planner) Plan(start, pickup, delivery models.Coordinates) *models.Route {
	route := &models.Route{
		Waypoints: []models.Waypoint{{Coordinates: start, Kind: models.WaypointStart}},
	}

	detours := 0
	for _, leg := range []struct {
		to   models.Coordinates
		kind models.WaypointKind
	}{{pickup, models.WaypointPickup}, {delivery, models.WaypointDelivery}} {
		from := route.Waypoints[len(route.Waypoints)-1].Coordinates
		for _, d := range p.detours(from, leg.to) {
			route.Waypoints = append(route.Waypoints, models.Waypoint{Coordinates: d, Kind: models.WaypointDetour})
			detours++
		}
		route.Waypoints = append(route.Waypoints, models.Waypoint{Coordinates: leg.to, Kind: leg.kind})
	}

	for i := 1; i < len(route.Waypoints); i++ {
		route.DistanceKm += route.Waypoints[i-1].DistanceKm(route.Waypoints[i].Coordinates)
	}
	route.EstimatedTimeMinutes = travelMinutes(route.DistanceKm, p.cfg.CruiseSpeed) + p.cfg.PickupDwellMinutes
	route.SafetyScore = p.safetyScore(route, detours)
	return route
}

// detours returns the waypoints needed to keep from → to clear of every zone,
// in flight order.
func (p *Planner) detours(from, to models.Coordinates) []models.Coordinates {
	type hit struct {
		at    float64
		point models.Coordinates
	}
	var hits []hit
	for _, z := range p.cfg.Zones {
		closest, t, dist := closestOnSegment(from, to, z.Center)
		if dist >= z.RadiusMeters {
			continue
		}

		var bearing float64
		if dist < 1 {
			bearing = geo.NormalizeHeading(geo.BearingDegrees(from.Latitude, from.Longitude, to.Latitude, to.Longitude) + 90)
		} else {
			bearing = geo.BearingDegrees(z.Center.Latitude, z.Center.Longitude, closest.Latitude, closest.Longitude)
		}
		lat, lon := geo.DestinationPoint(z.Center.Latitude, z.Center.Longitude, bearing, z.RadiusMeters*p.cfg.Clearance)
		hits = append(hits, hit{at: t, point: models.Coordinates{Latitude: lat, Longitude: lon}})
	}

	// order by position along the leg
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].at < hits[j-1].at; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	out := make([]models.Coordinates, len(hits))
	for i, h := range hits {
		out[i] = h.point
	}
	return out
}

// safetyScore starts at 100 and loses 10 per detour plus up to 10 per zone
// the route passes within the proximity margin of.
func (p *Planner) safetyScore(route *models.Route, detours int) float64 {
	score := 100 - 10*float64(detours)
	for _, z := range p.cfg.Zones {
		nearest := math.Inf(1)
		for i := 1; i < len(route.Waypoints); i++ {
			_, _, d := closestOnSegment(route.Waypoints[i-1].Coordinates, route.Waypoints[i].Coordinates, z.Center)
			nearest = math.Min(nearest, d-z.RadiusMeters)
		}
		if nearest < p.cfg.ProximityMeters {
			score -= 10 * (p.cfg.ProximityMeters - math.Max(0, nearest)) / p.cfg.ProximityMeters
		}
	}
	return clamp(score, 0, 100)
}

// closestOnSegment projects c onto a → b in a local flat frame. It returns the
// closest point, its fraction along the segment and its distance to c in meters.
func closestOnSegment(a, b, c models.Coordinates) (models.Coordinates, float64, float64) {
	cosLat := math.Cos(a.Latitude * math.Pi / 180)
	toXY := func(p models.Coordinates) (float64, float64) {
		return (p.Longitude - a.Longitude) * cosLat, p.Latitude - a.Latitude
	}
	bx, by := toXY(b)
	cx, cy := toXY(c)

	t := 0.0
	if l2 := bx*bx + by*by; l2 > 0 {
		t = clamp((cx*bx+cy*by)/l2, 0, 1)
	}
	closest := models.Coordinates{
		Latitude:  a.Latitude + t*(b.Latitude-a.Latitude),
		Longitude: a.Longitude + t*(b.Longitude-a.Longitude),
	}
	return closest, t, closest.DistanceMeters(c)
}
