package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picogrid/fleet-dispatch-sim/pkg/config"
)

func TestPromptsResolveFromEnvironmentWhenSkipped(t *testing.T) {
	t.Setenv("FLEET_SKIP_PROMPTS", "true")
	t.Setenv("FLEET_DURATION", "45s")
	t.Setenv("FLEET_WORKERS", "4")
	t.Setenv("FLEET_NATS_ENABLED", "true")

	cfg := config.GetDefaultConfig()
	values, err := PromptForParameters(cfg.RunParameters())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, values["duration"])
	assert.Equal(t, 4, values["workers"])
	assert.Equal(t, true, values["nats_enabled"])
	assert.Equal(t, cfg.Logging.ReportFormat, values["report_format"])

	config.MergeWithCLIOverrides(cfg, values)
	assert.Equal(t, 45*time.Second, cfg.Simulation.Duration)
	assert.Equal(t, 4, cfg.Simulation.Workers)
	assert.True(t, cfg.Broadcast.NATS.Enabled)
}

func TestSkippedPromptsValidateEnvironment(t *testing.T) {
	t.Setenv("FLEET_SKIP_PROMPTS", "true")

	tests := []struct {
		name  string
		param config.Parameter
		env   string
	}{
		{"below min", config.Parameter{Name: "workers", Type: "integer", Min: 1}, "0"},
		{"above max", config.Parameter{Name: "critical_battery", Type: "float", Max: 100.0}, "101"},
		{"not an option", config.Parameter{Name: "log_level", Type: "string", Options: []string{"info", "debug"}}, "loud"},
		{"bad duration", config.Parameter{Name: "duration", Type: "duration"}, "later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLEET_"+strings.ToUpper(tt.param.Name), tt.env)
			_, err := PromptForParameters([]config.Parameter{tt.param})
			assert.Error(t, err)
		})
	}
}

func TestSkippedPromptsRequireAValue(t *testing.T) {
	t.Setenv("FLEET_SKIP_PROMPTS", "true")

	_, err := PromptForParameters([]config.Parameter{{Name: "station", Type: "string", Required: true}})
	assert.ErrorContains(t, err, "required parameter station")

	values, err := PromptForParameters([]config.Parameter{{Name: "note", Type: "string"}})
	require.NoError(t, err)
	assert.NotContains(t, values, "note")
}

func TestInteractiveHonorsSkipFlag(t *testing.T) {
	t.Setenv("FLEET_SKIP_PROMPTS", "true")
	assert.False(t, Interactive())
}
