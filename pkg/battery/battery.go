// Package battery models in-flight battery drain and the alerts it raises.
package battery

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Params configures the battery model.
type Params struct {
	// Drain rates in percent per minute
	NormalDrainRate    float64
	EmergencyDrainRate float64
	// LowThreshold raises battery_low when the level drops below it
	LowThreshold float64
	// CriticalThreshold forces an emergency landing when the level drops below it
	CriticalThreshold float64
}

// DefaultParams returns the stock drain rates and thresholds.
func DefaultParams() Params {
	return Params{
		NormalDrainRate:    0.5,
		EmergencyDrainRate: 0.8,
		LowThreshold:       20,
		CriticalThreshold:  10,
	}
}

// Model drains batteries and derives alerts from the level.
type Model struct {
	params Params

	mu  sync.Mutex
	rng *rand.Rand
}

// NewModel creates a battery model. A nil rng is seeded from the clock.
func NewModel(params Params, rng *rand.Rand) *Model {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Model{params: params, rng: rng}
}

// Params returns the configured parameters.
func (m *Model) Params() Params {
	return m.params
}

// Drain returns the battery after deltaMinutes of flight. Level never goes
// below zero and never increases.
func (m *Model) Drain(b models.Battery, deltaMinutes float64, emergency bool) models.Battery {
	if deltaMinutes <= 0 || math.IsNaN(deltaMinutes) {
		return b
	}

	rate := m.params.NormalDrainRate
	if emergency {
		rate = m.params.EmergencyDrainRate
	}

	level := b.Level - rate*deltaMinutes
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}

	return models.Battery{
		Level:        level,
		Voltage:      12.0 + (level/100)*2,
		TemperatureC: m.sampleTemperature(emergency),
	}
}

// sampleTemperature returns 20-30C in normal flight and 25-35C in emergency flight.
func (m *Model) sampleTemperature(emergency bool) float64 {
	m.mu.Lock()
	r := m.rng.Float64()
	m.mu.Unlock()

	if emergency {
		return 25 + r*10
	}
	return 20 + r*10
}

// Apply drains the state's battery for deltaMinutes and raises the alerts
// implied by the new level. Idle drones do not drain. It returns the alerts
// that were newly raised.
func (m *Model) Apply(s *models.DroneSimState, deltaMinutes float64, now time.Time) []models.Alert {
	if s.Mode == models.ModeIdle {
		return nil
	}

	if s.Alerts == nil {
		s.Alerts = models.Alerts{}
	}
	s.Battery = m.Drain(s.Battery, deltaMinutes, s.EmergencyMode)

	var raised []models.Alert
	if s.Battery.Level < m.params.LowThreshold {
		a := models.Alert{
			Type:     models.AlertBatteryLow,
			Message:  fmt.Sprintf("Battery low: %.1f%%", s.Battery.Level),
			Severity: models.SeverityCritical,
			RaisedAt: now,
		}
		if s.Alerts.Raise(a) {
			raised = append(raised, a)
		}
	}

	if s.Battery.Level < m.params.CriticalThreshold {
		s.Mode = models.ModeEmergency
		s.EmergencyMode = true
		s.CriticalLatched = true

		a := models.Alert{
			Type:     models.AlertEmergencyLanding,
			Message:  fmt.Sprintf("Critical battery %.1f%%: emergency landing", s.Battery.Level),
			Severity: models.SeverityCritical,
			RaisedAt: now,
		}
		if s.Alerts.Raise(a) {
			raised = append(raised, a)
		}
	}

	return raised
}
