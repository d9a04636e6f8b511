package config

// Parameter is a run setting that can be asked for interactively
type Parameter struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"` // integer, float, string, duration, boolean
	Description string      `yaml:"description"`
	Default     interface{} `yaml:"default"`
	Required    bool        `yaml:"required"`
	Min         interface{} `yaml:"min,omitempty"`
	Max         interface{} `yaml:"max,omitempty"`
	Options     []string    `yaml:"options,omitempty"` // For string enums
}

// RunParameters lists the settings offered before a run, with the current
// configuration as defaults. Names match the MergeWithCLIOverrides keys.
func (c *FleetConfig) RunParameters() []Parameter {
	return []Parameter{
		{
			Name:        "duration",
			Type:        "duration",
			Description: "How long to run (0s runs until interrupted)",
			Default:     c.Simulation.Duration,
		},
		{
			Name:        "tick_interval",
			Type:        "duration",
			Description: "Simulation tick interval",
			Default:     c.Simulation.TickInterval,
			Required:    true,
		},
		{
			Name:        "workers",
			Type:        "integer",
			Description: "Drones advanced in parallel per tick",
			Default:     c.Simulation.Workers,
			Min:         1,
			Max:         256,
		},
		{
			Name:        "critical_battery",
			Type:        "float",
			Description: "Battery level (%) that triggers a failover",
			Default:     c.Failover.CriticalBattery,
			Min:         0.0,
			Max:         100.0,
		},
		{
			Name:        "delay_threshold",
			Type:        "duration",
			Description: "Delivery delay that triggers a failover",
			Default:     c.Failover.DelayThreshold,
		},
		{
			Name:        "nats_enabled",
			Type:        "boolean",
			Description: "Publish live telemetry to NATS JetStream?",
			Default:     c.Broadcast.NATS.Enabled,
		},
		{
			Name:        "report_format",
			Type:        "string",
			Description: "Report format",
			Default:     c.Logging.ReportFormat,
			Options:     validReportFormats,
		},
		{
			Name:        "log_level",
			Type:        "string",
			Description: "Console log level",
			Default:     c.Logging.ConsoleLevel,
			Options:     validLevels,
		},
	}
}

