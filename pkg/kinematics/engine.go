// Package kinematics advances a drone's flight-phase state machine by one tick.
package kinematics

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/geo"
	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Params configures flight performance.
type Params struct {
	CruiseAltitude        float64 // meters
	ClimbRate             float64 // m/s
	LandingRate           float64 // m/s
	EmergencyDescentRate  float64 // m/s
	MaxSpeed              float64 // m/s
	EmergencyMaxSpeed     float64 // m/s
	PatrolSpeed           float64 // m/s
	PatrolTurnProbability float64 // chance per tick of a new random heading
	ArrivalThreshold      float64 // meters
}

// DefaultParams returns the stock flight performance.
func DefaultParams() Params {
	return Params{
		CruiseAltitude:        50,
		ClimbRate:             2,
		LandingRate:           1.5,
		EmergencyDescentRate:  3,
		MaxSpeed:              15,
		EmergencyMaxSpeed:     25,
		PatrolSpeed:           5,
		PatrolTurnProbability: 0.1,
		ArrivalThreshold:      10,
	}
}

// Transition describes what changed during one Advance call.
type Transition struct {
	From models.Mode
	To   models.Mode
	// Arrived is set when the drone reached its destination this tick
	Arrived bool
	// Landed is set when the drone touched down this tick
	Landed bool
}

// Changed reports whether the mode changed.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Engine advances drone states. It is safe for concurrent use as long as
// each state is only advanced by one goroutine at a time.
type Engine struct {
	params Params

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine creates an engine. A nil rng is seeded from the clock.
func NewEngine(params Params, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{params: params, rng: rng}
}

// Params returns the configured flight performance.
func (e *Engine) Params() Params {
	return e.params
}

// MaxSpeed returns the speed cap for the given emergency flag.
func (e *Engine) MaxSpeed(emergency bool) float64 {
	if emergency {
		return e.params.EmergencyMaxSpeed
	}
	return e.params.MaxSpeed
}

// Advance moves the state forward by dt. A non-positive dt leaves the state
// untouched. The state is left non-finite only on arithmetic failure, which
// is reported as an error so the caller can discard it.
func (e *Engine) Advance(s *models.DroneSimState, dt time.Duration, now time.Time) (Transition, error) {
	tr := Transition{From: s.Mode, To: s.Mode}
	if dt <= 0 {
		return tr, nil
	}
	secs := dt.Seconds()

	switch s.Mode {
	case models.ModeIdle:
		s.Velocity = models.Velocity{Heading: s.Velocity.Heading}
		if s.Destination != nil {
			s.Mode = models.ModeTakeoff
		}

	case models.ModeTakeoff:
		s.Velocity.Speed = 0
		s.Velocity.VerticalSpeed = e.params.ClimbRate
		s.Position.Altitude += e.params.ClimbRate * secs
		if s.Position.Altitude >= e.params.CruiseAltitude {
			s.Position.Altitude = e.params.CruiseAltitude
			s.Velocity.VerticalSpeed = 0
			s.Mode = models.ModeFlying
		}

	case models.ModeFlying:
		s.Velocity.VerticalSpeed = 0
		if s.Destination == nil {
			e.patrol(s, secs)
			break
		}
		if e.moveToward(s, *s.Destination, secs) {
			tr.Arrived = true
			s.Mode = models.ModeDelivering
		}

	case models.ModeDelivering:
		s.Velocity.Speed = 0
		s.Velocity.VerticalSpeed = 0

	case models.ModeReturning:
		s.Velocity.VerticalSpeed = 0
		target := s.HomeBase
		if s.Destination != nil {
			target = *s.Destination
		}
		if e.moveToward(s, target, secs) {
			tr.Arrived = true
			s.Destination = nil
			s.Mode = models.ModeLanding
		}

	case models.ModeLanding:
		tr.Landed = e.descend(s, e.params.LandingRate, secs)

	case models.ModeEmergency:
		tr.Landed = e.descend(s, e.params.EmergencyDescentRate, secs)

	default:
		return tr, fmt.Errorf("unknown flight mode %d", int(s.Mode))
	}

	if err := checkFinite(s); err != nil {
		return tr, err
	}

	s.FlightPath.Append(models.PathPoint{Position: s.Position, Timestamp: now})
	tr.To = s.Mode
	return tr, nil
}

// moveToward flies at most one tick toward target. It reports arrival once
// the remaining distance is under the arrival threshold.
func (e *Engine) moveToward(s *models.DroneSimState, target models.Coordinates, secs float64) bool {
	dist := geo.DistanceMeters(s.Position.Latitude, s.Position.Longitude, target.Latitude, target.Longitude)
	if dist < e.params.ArrivalThreshold {
		s.Velocity.Speed = 0
		return true
	}

	bearing := geo.BearingDegrees(s.Position.Latitude, s.Position.Longitude, target.Latitude, target.Longitude)
	speed := math.Min(e.MaxSpeed(s.EmergencyMode), dist/secs)

	s.Position.Latitude, s.Position.Longitude = geo.DestinationPoint(
		s.Position.Latitude, s.Position.Longitude, bearing, speed*secs)
	s.Velocity.Speed = speed
	s.Velocity.Heading = bearing

	remaining := geo.DistanceMeters(s.Position.Latitude, s.Position.Longitude, target.Latitude, target.Longitude)
	return remaining < e.params.ArrivalThreshold
}

func (e *Engine) patrol(s *models.DroneSimState, secs float64) {
	e.mu.Lock()
	if e.rng.Float64() < e.params.PatrolTurnProbability {
		s.Velocity.Heading = e.rng.Float64() * 360
	}
	e.mu.Unlock()

	s.Velocity.Speed = e.params.PatrolSpeed
	s.Position.Latitude, s.Position.Longitude = geo.DestinationPoint(
		s.Position.Latitude, s.Position.Longitude, s.Velocity.Heading, e.params.PatrolSpeed*secs)
}

// descend lowers the drone at rate m/s and reports touchdown.
func (e *Engine) descend(s *models.DroneSimState, rate, secs float64) bool {
	s.Velocity.Speed = 0
	s.Velocity.VerticalSpeed = -rate
	s.Position.Altitude -= rate * secs
	if s.Position.Altitude > 0 {
		return false
	}

	s.Position.Altitude = 0
	s.Velocity = models.Velocity{Heading: s.Velocity.Heading}
	s.Mode = models.ModeIdle
	return true
}

func checkFinite(s *models.DroneSimState) error {
	values := map[string]float64{
		"latitude":  s.Position.Latitude,
		"longitude": s.Position.Longitude,
		"altitude":  s.Position.Altitude,
		"speed":     s.Velocity.Speed,
		"heading":   s.Velocity.Heading,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite %s after advance", name)
		}
	}
	return nil
}
