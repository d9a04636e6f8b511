package simulation

import (
	"fmt"
	"time"

	"github.com/picogrid/fleet-dispatch-sim/pkg/models"
)

// Config tunes the scheduler.
type Config struct {
	// TickInterval is the fixed period between ticks
	TickInterval time.Duration
	// DeliveryDwell is how long a drone hovers at the drop-off before the
	// delivery is completed and it heads home
	DeliveryDwell time.Duration
	// StopTimeout bounds how long Stop waits for airborne drones to land
	StopTimeout time.Duration
	// Workers caps how many drones are advanced in parallel
	Workers int
	// AlertTTL is how long a raised alert stays active
	AlertTTL time.Duration
	// HomeBase is where drones return; zero means each drone's starting location
	HomeBase models.Coordinates
	// Exclude lists drone IDs that Start never loads
	Exclude []string
	// TaskTimeout bounds the repository calls made by deferred tasks
	TaskTimeout time.Duration
}

// DefaultConfig returns the stock scheduler settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:  2 * time.Second,
		DeliveryDwell: 30 * time.Second,
		StopTimeout:   2 * time.Minute,
		Workers:       16,
		AlertTTL:      models.DefaultAlertTTL,
		TaskTimeout:   10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.DeliveryDwell <= 0 {
		c.DeliveryDwell = def.DeliveryDwell
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.AlertTTL <= 0 {
		c.AlertTTL = def.AlertTTL
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = def.TaskTimeout
	}
	return c
}

// Validate rejects settings the scheduler cannot run with.
func (c Config) Validate() error {
	if c.TickInterval < 0 {
		return fmt.Errorf("tick interval must not be negative, got %s", c.TickInterval)
	}
	if c.DeliveryDwell < 0 {
		return fmt.Errorf("delivery dwell must not be negative, got %s", c.DeliveryDwell)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}
