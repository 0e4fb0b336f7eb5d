// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load and Watch accept context.Context as the first parameter.
// - External errors are wrapped with ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"fmt"
	"time"

	"github.com/okian/hatch/internal/domain/streak"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Store selects the persistence backend: memory or sqlite.
	Store string `koanf:"store"`

	// SQLitePath is the database file used when Store is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// QueueSize bounds the change queue feeding the evaluation worker.
	QueueSize int `koanf:"queue_size"`

	// PollInterval is the incubation poll period.
	PollInterval time.Duration `koanf:"poll_interval"`

	// EvaluateInterval is the periodic re-evaluation period.
	EvaluateInterval time.Duration `koanf:"evaluate_interval"`

	// WakingDayHour is the hour of day at which the waking day starts.
	WakingDayHour int `koanf:"waking_day_hour"`

	// HitThreshold is the minimum session duration counted as a hit.
	HitThreshold time.Duration `koanf:"hit_threshold"`

	// ExpiryWindow is how long after its latest session a talent is expiring.
	ExpiryWindow time.Duration `koanf:"expiry_window"`

	// Timezone names the IANA zone of the waking-day boundary.
	Timezone string `koanf:"timezone"`

	// DefaultProgressTarget is the progressTarget (hours) of new talents.
	DefaultProgressTarget float64 `koanf:"default_progress_target"`

	// UserID is stamped on new talents and sessions.
	UserID int64 `koanf:"user_id"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		Addr:                  ":9080",
		Store:                 StoreMemory,
		SQLitePath:            "hatch.db",
		QueueSize:             1024,
		PollInterval:          200 * time.Millisecond,
		EvaluateInterval:      time.Minute,
		WakingDayHour:         streak.DefaultWakingDayHour,
		HitThreshold:          streak.DefaultHitThreshold,
		ExpiryWindow:          streak.DefaultExpiryWindow,
		Timezone:              "Local",
		DefaultProgressTarget: 40,
		UserID:                0,
	}
}

// Location resolves Timezone. "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StoreSQLite:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	case c.Store == StoreSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalidConfig)
	case c.EvaluateInterval <= 0:
		return fmt.Errorf("%w: evaluate_interval must be positive", ErrInvalidConfig)
	case c.DefaultProgressTarget <= 0:
		return fmt.Errorf("%w: default_progress_target must be positive", ErrInvalidConfig)
	}
	if err := streak.Validate(c.WakingDayHour, c.HitThreshold, c.ExpiryWindow); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
