package retry

import (
	"encoding/json"
	"errors"
	"time"
)

// Config defines the configuration for the retry mechanism.
type Config struct {
	Enable          bool          `mapstructure:"enable"`           // Enable retry
	MaxAttempts     int           `mapstructure:"max_attempts"`     // Total attempts including the first one
	InitialInterval time.Duration `mapstructure:"initial_interval"` // Wait before the second attempt
	MaxInterval     time.Duration `mapstructure:"max_interval"`     // Upper bound for a single wait
	Multiplier      float64       `mapstructure:"multiplier"`       // Growth factor between waits
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() *Config {
	return &Config{
		Enable:          true,
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
	}
}

// Validate validates the retry configuration.
func (cfg *Config) Validate() error {
	if cfg == nil || !cfg.Enable {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		return errors.New("MaxAttempts must be greater than zero")
	}
	if cfg.InitialInterval < 0 || cfg.MaxInterval < 0 {
		return errors.New("intervals cannot be negative")
	}
	if cfg.MaxInterval > 0 && cfg.InitialInterval > cfg.MaxInterval {
		return errors.New("MaxInterval must be greater than InitialInterval")
	}
	if cfg.Multiplier != 0 && cfg.Multiplier < 1 {
		return errors.New("Multiplier must be at least 1")
	}
	return nil
}

// String returns a JSON string representation of the Config.
func (cfg *Config) String() string {
	data, _ := json.Marshal(cfg)
	return string(data)
}
