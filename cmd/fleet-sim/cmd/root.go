package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picogrid/fleet-dispatch-sim/pkg/config"
	"github.com/picogrid/fleet-dispatch-sim/pkg/logger"
)

var (
	cfgFile  string
	logLevel string
	noColor  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fleet-sim",
	Short: "Drone delivery fleet simulator",
	Long: `fleet-sim simulates a drone delivery fleet, dispatches emergency
orders to the best available drone and fails deliveries over to a backup
drone when the assigned one runs low on battery or falls behind schedule.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "fleet config file (default searches fleet.yaml, config.yaml, configs/fleet.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("no_color", rootCmd.PersistentFlags().Lookup("no-color"))

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(emergencyCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// initConfig binds FLEET_* variables to the global flags and configures the logger
func initConfig() {
	viper.SetEnvPrefix("fleet")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	logger.SetNoColor(viper.GetBool("no_color"))
	if level := viper.GetString("log_level"); level != "" {
		logger.SetLevel(logger.ParseLevel(level))
	}
}

// loadConfig resolves the fleet configuration for a command. The --log-level
// flag wins over the file's console level.
func loadConfig(overrides map[string]interface{}) (*config.FleetConfig, error) {
	if overrides == nil {
		overrides = make(map[string]interface{})
	}
	if level := viper.GetString("log_level"); level != "" {
		overrides["log_level"] = level
	}

	cfg, err := config.LoadConfigWithOverrides(viper.GetString("config"), overrides)
	if err != nil {
		return nil, err
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.ConsoleLevel))
	if cfg.Logging.NoColor {
		logger.SetNoColor(true)
	}
	return cfg, nil
}
