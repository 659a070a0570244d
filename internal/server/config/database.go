package config

import (
	"fmt"
	"time"
)

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	SlowQueryTime   time.Duration `mapstructure:"slow_query_time"`

	// Migration settings
	AutoMigrate   bool `mapstructure:"auto_migrate"`
	RollbackSteps int  `mapstructure:"rollback_steps,omitempty"`
	TargetVersion int  `mapstructure:"target_version,omitempty"`
}

// Validate validates database configuration
func (c *DatabaseConfig) Validate() error {
	if c.Driver == "" {
		return fmt.Errorf("database driver is required")
	}
	if c.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	// Set default values
	if c.MaxConnections == 0 {
		c.MaxConnections = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}
	if c.SlowQueryTime == 0 {
		c.SlowQueryTime = time.Second
	}

	// Validate driver
	switch c.Driver {
	case "sqlite", "mysql", "postgres":
		// Valid drivers
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}

	return nil
}
