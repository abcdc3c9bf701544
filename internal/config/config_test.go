package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// Missing file is fine: defaults apply.
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 200, cfg.Scheduler.BatchSize)
	assert.NotEmpty(t, cfg.Database.Path)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/test-journey.db
logging:
  level: debug
  format: console
scheduler:
  enabled: true
  interval: 1h
  batch_size: 50
stage:
  stability_required_days: 30
  min_days:
    observation: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-journey.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Hour, cfg.Scheduler.Interval)
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)

	rules, err := cfg.Stage.StageRules()
	require.NoError(t, err)
	assert.Equal(t, 3, rules.Rules[journey.StageObservation].MinDays)
	assert.Equal(t, 30, rules.Rules[journey.StageStability].StabilityRequiredDays)
	// Untouched stages keep their defaults.
	assert.Equal(t, 14, rules.Rules[journey.StageActivation].MinDays)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
`)
	t.Setenv("JOURNEYD_LOGGING_LEVEL", "warn")
	t.Setenv("JOURNEYD_DATABASE_PATH", "/tmp/env-journey.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/env-journey.db", cfg.Database.Path)
}

func TestLoad_InvalidLevelRejected(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: loud
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestStageRules_UnknownStageRejected(t *testing.T) {
	cfg := StageConfig{MinDays: map[string]int{"enlightenment": 7}}
	_, err := cfg.StageRules()
	require.Error(t, err)
}
