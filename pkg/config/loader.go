package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
)

// DefaultPaths are searched in order when no config path is given
var DefaultPaths = []string{
	"fleet.yaml",
	"config.yaml",
	filepath.Join("configs", "fleet.yaml"),
}

// LoadConfig loads configuration from a YAML file. Fields the file leaves
// out keep their default values.
func LoadConfig(path string) (*FleetConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := GetDefaultConfig()
	// A file that lists its own fleet replaces the sample one
	config.Fleet = FleetSeed{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigOrDefault loads config from file or returns default, with environment overrides
func LoadConfigOrDefault(path string) (*FleetConfig, error) {
	log := logger.WithPrefix("config")

	var config *FleetConfig
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			// An explicit path that fails is an error, not a silent fallback
			return nil, err
		}
		config = loaded
	}

	if config == nil {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err != nil {
				continue
			}
			loaded, err := LoadConfig(p)
			if err != nil {
				log.Warnf("Could not load config from %s: %v", p, err)
				continue
			}
			log.Debugf("Loaded config from: %s", p)
			config = loaded
			break
		}
	}

	if config == nil {
		log.Debug("Using default configuration")
		config = GetDefaultConfig()
	}

	// Always apply environment variable overrides
	MergeWithEnvironment(config)

	return config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *FleetConfig, path string) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// MergeWithCLIOverrides applies CLI parameter overrides to the configuration.
// Values of the wrong type or out of range are ignored.
func MergeWithCLIOverrides(config *FleetConfig, overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "tick_interval":
			if d, ok := value.(time.Duration); ok && d > 0 {
				config.Simulation.TickInterval = d
			}
		case "duration":
			if d, ok := value.(time.Duration); ok && d >= 0 {
				config.Simulation.Duration = d
			}
		case "random_seed":
			if seed, ok := value.(int); ok {
				config.Simulation.RandomSeed = int64(seed)
			}
		case "workers":
			if n, ok := value.(int); ok && n > 0 {
				config.Simulation.Workers = n
			}
		case "home_latitude":
			if lat, ok := value.(float64); ok {
				config.HomeBase.Latitude = lat
			}
		case "home_longitude":
			if lon, ok := value.(float64); ok {
				config.HomeBase.Longitude = lon
			}
		case "geofence_radius":
			if r, ok := value.(float64); ok && r > 0 {
				config.Geofence.RadiusMeters = r
			}
		case "critical_battery":
			if level, ok := value.(float64); ok && level >= 0 && level <= 100 {
				config.Failover.CriticalBattery = level
			}
		case "delay_threshold":
			if d, ok := value.(time.Duration); ok && d > 0 {
				config.Failover.DelayThreshold = d
			}
		case "check_interval":
			if d, ok := value.(time.Duration); ok && d > 0 {
				config.Failover.CheckInterval = d
			}
		case "nats_enabled":
			if enable, ok := value.(bool); ok {
				config.Broadcast.NATS.Enabled = enable
			}
		case "nats_url":
			if url, ok := value.(string); ok && url != "" {
				config.Broadcast.NATS.URL = url
			}
		case "server_address":
			if addr, ok := value.(string); ok && addr != "" {
				config.Server.Address = addr
			}
		case "enable_report":
			if enable, ok := value.(bool); ok {
				config.Logging.EnableReport = enable
			}
		case "report_format":
			if format, ok := value.(string); ok && oneOf(format, validReportFormats) {
				config.Logging.ReportFormat = format
			}
		case "enable_tracing":
			if enable, ok := value.(bool); ok {
				config.Tracing.Enabled = enable
			}
		case "log_level":
			if level, ok := value.(string); ok && oneOf(level, validLevels) {
				config.Logging.ConsoleLevel = level
			}
		}
	}
}

// LoadConfigWithOverrides loads config and applies both environment and CLI overrides
func LoadConfigWithOverrides(path string, cliOverrides map[string]interface{}) (*FleetConfig, error) {
	config, err := LoadConfigOrDefault(path)
	if err != nil {
		return nil, err
	}

	// Apply CLI overrides after environment variables
	if cliOverrides != nil {
		MergeWithCLIOverrides(config, cliOverrides)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed after overrides: %w", err)
	}

	return config, nil
}

// MergeWithEnvironment merges config with FLEET_* environment variables
func MergeWithEnvironment(config *FleetConfig) {
	if v := os.Getenv("FLEET_TICK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.Simulation.TickInterval = d
		}
	}

	if v := os.Getenv("FLEET_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			config.Simulation.Duration = d
		}
	}

	if v := os.Getenv("FLEET_RANDOM_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Simulation.RandomSeed = seed
		}
	}

	// Home base
	if v := os.Getenv("FLEET_HOME_LATITUDE"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			config.HomeBase.Latitude = lat
		}
	}

	if v := os.Getenv("FLEET_HOME_LONGITUDE"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			config.HomeBase.Longitude = lon
		}
	}

	// Failover thresholds
	if v := os.Getenv("FLEET_CRITICAL_BATTERY"); v != "" {
		if level, err := strconv.ParseFloat(v, 64); err == nil && level >= 0 && level <= 100 {
			config.Failover.CriticalBattery = level
		}
	}

	if v := os.Getenv("FLEET_DELAY_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			config.Failover.DelayThreshold = d
		}
	}

	if v := os.Getenv("FLEET_GROUND_STAFF"); v != "" {
		var staff []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				staff = append(staff, s)
			}
		}
		config.Dispatch.GroundStaff = staff
	}

	// Broadcast
	if v := os.Getenv("FLEET_NATS_URL"); v != "" {
		config.Broadcast.NATS.URL = v
		config.Broadcast.NATS.Enabled = true
	}

	if v := os.Getenv("FLEET_NATS_ENABLED"); v != "" {
		if enable, err := strconv.ParseBool(v); err == nil {
			config.Broadcast.NATS.Enabled = enable
		}
	}

	if v := os.Getenv("FLEET_SERVER_ADDRESS"); v != "" {
		config.Server.Address = v
	}

	// Logging
	if v := os.Getenv("FLEET_LOG_LEVEL"); v != "" {
		if level := strings.ToLower(v); oneOf(level, validLevels) {
			config.Logging.ConsoleLevel = level
		}
	}

	if v := os.Getenv("FLEET_ENABLE_REPORT"); v != "" {
		if enable, err := strconv.ParseBool(v); err == nil {
			config.Logging.EnableReport = enable
		}
	}

	if v := os.Getenv("FLEET_REPORT_FORMAT"); v != "" {
		if format := strings.ToLower(v); oneOf(format, validReportFormats) {
			config.Logging.ReportFormat = format
		}
	}

	if v := os.Getenv("FLEET_REPORT_PATH"); v != "" {
		config.Logging.ReportOutputPath = v
	}

	if v := os.Getenv("FLEET_TRACING_ENABLED"); v != "" {
		if enable, err := strconv.ParseBool(v); err == nil {
			config.Tracing.Enabled = enable
		}
	}
}
