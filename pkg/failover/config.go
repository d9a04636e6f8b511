package failover

import (
	"fmt"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Config tunes the monitor.
type Config struct {
	// Interval between checks of one tracked order
	Interval time.Duration
	// CriticalBattery is the failover level for drones without their own threshold
	CriticalBattery float64
	// DelayThreshold is how far past its estimated delivery an order may run
	DelayThreshold time.Duration
	// CommLossTimeout is how long a drone may go without telemetry
	CommLossTimeout time.Duration
	// AlertTTL is how long a raised alert suppresses repeats
	AlertTTL time.Duration
}

// DefaultConfig returns the stock monitor settings.
func DefaultConfig() Config {
	return Config{
		Interval:        10 * time.Second,
		CriticalBattery: 10,
		DelayThreshold:  15 * time.Minute,
		CommLossTimeout: 60 * time.Second,
		AlertTTL:        models.DefaultAlertTTL,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Interval == 0 {
		c.Interval = def.Interval
	}
	if c.CriticalBattery == 0 {
		c.CriticalBattery = def.CriticalBattery
	}
	if c.DelayThreshold == 0 {
		c.DelayThreshold = def.DelayThreshold
	}
	if c.CommLossTimeout == 0 {
		c.CommLossTimeout = def.CommLossTimeout
	}
	if c.AlertTTL == 0 {
		c.AlertTTL = def.AlertTTL
	}
	return c
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if c.CriticalBattery < 0 || c.CriticalBattery > 100 {
		return fmt.Errorf("critical battery must be between 0 and 100")
	}
	if c.DelayThreshold < 0 || c.CommLossTimeout < 0 {
		return fmt.Errorf("thresholds must not be negative")
	}
	return nil
}
