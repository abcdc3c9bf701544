// Package config provides configuration loading for journeyd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/stage"
)

// Config is the top-level journeyd configuration.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Logging   LoggingConfig   `koanf:"logging"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Stage     StageConfig     `koanf:"stage"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	// Path is the SQLite database file location.
	Path string `koanf:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// SchedulerConfig configures the batch job loop.
type SchedulerConfig struct {
	// Enabled starts the background scheduler with the daemon.
	Enabled bool `koanf:"enabled"`

	// Interval between scheduled runs.
	Interval time.Duration `koanf:"interval"`

	// BatchSize is the user page size for batch jobs.
	BatchSize int `koanf:"batch_size"`
}

// StageConfig overrides the default stage gating table. Stages absent
// from MinDays keep their defaults.
type StageConfig struct {
	// MinDays maps stage labels to minimum dwell days.
	MinDays map[string]int `koanf:"min_days"`

	// StabilityRequiredDays is the graduation stability window.
	StabilityRequiredDays int `koanf:"stability_required_days"`
}

// StageRules translates the overrides onto the default gating table.
func (c StageConfig) StageRules() (*stage.Config, error) {
	cfg := stage.DefaultConfig()

	for label, days := range c.MinDays {
		s, err := journey.ParseStage(label)
		if err != nil {
			return nil, fmt.Errorf("stage.min_days: %w", err)
		}
		rule := cfg.Rules[s]
		rule.MinDays = days
		cfg.Rules[s] = rule
	}
	if c.StabilityRequiredDays > 0 {
		rule := cfg.Rules[journey.StageStability]
		rule.StabilityRequiredDays = c.StabilityRequiredDays
		cfg.Rules[journey.StageStability] = rule
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Scheduler.Interval < 0 {
		return fmt.Errorf("scheduler.interval must not be negative")
	}
	if c.Scheduler.BatchSize < 0 {
		return fmt.Errorf("scheduler.batch_size must not be negative")
	}

	if _, err := c.Stage.StageRules(); err != nil {
		return err
	}
	return nil
}
