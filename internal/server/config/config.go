package config

import (
	"fmt"
	"strings"
	"time"

	"confhub/internal/logger"
	"confhub/internal/notify"
	"confhub/internal/ratelimit"
	"confhub/internal/retry"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CONFHUB_DATABASE_DSN
const EnvPrefix = "CONFHUB"

// Config represents the complete server configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	API         APIConfig         `mapstructure:"api"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Events      EventsConfig      `mapstructure:"events"`
	Notify      notify.Config     `mapstructure:"notify"`
	Retry       retry.Config      `mapstructure:"retry"`
	Log         logger.Config     `mapstructure:"log"`
}

// ServerConfig represents the server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

// TLSConfig represents the TLS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// APIConfig represents the API configuration
type APIConfig struct {
	// CORS settings
	CORS CORSConfig `mapstructure:"cors"`

	// Rate limiting
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Metrics
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CORSConfig represents the CORS configuration
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	MaxAge           int      `mapstructure:"max_age"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// RateLimitConfig represents the rate limiting configuration
type RateLimitConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	ratelimit.Config `mapstructure:",squash"`
}

// MetricsConfig represents the metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ReplicationConfig represents the SDK replication stream configuration
type ReplicationConfig struct {
	SessionQueueSize int              `mapstructure:"session_queue_size"`
	WriteTimeout     time.Duration    `mapstructure:"write_timeout"`
	PingInterval     time.Duration    `mapstructure:"ping_interval"`
	PongTimeout      time.Duration    `mapstructure:"pong_timeout"`
	HandshakeTimeout time.Duration    `mapstructure:"handshake_timeout"`
	MaxMessageSize   int64            `mapstructure:"max_message_size"`
	HandshakeLimit   ratelimit.Config `mapstructure:"handshake_limit"`
}

// EventsConfig represents the change event fan-out configuration
type EventsConfig struct {
	SubscriberBuffer int         `mapstructure:"subscriber_buffer"`
	Redis            RedisConfig `mapstructure:"redis"`
	Kafka            KafkaConfig `mapstructure:"kafka"`
}

// RedisConfig represents the cross-instance redis bridge configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// KafkaConfig represents the change log kafka configuration
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// LoadConfig loads server configuration from file and CONFHUB_* environment
// variables. An empty path loads defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/confhub.db")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.query_timeout", 30*time.Second)
	v.SetDefault("database.slow_query_time", time.Second)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.rollback_steps", 0)
	v.SetDefault("database.target_version", 0)

	v.SetDefault("api.cors.enabled", false)
	v.SetDefault("api.cors.allowed_origins", []string{"*"})
	v.SetDefault("api.cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"})
	v.SetDefault("api.cors.allowed_headers", []string{
		"Content-Type", "Authorization", "X-Request-ID", "X-Identity-Email", "X-Identity-Role", "X-Project-ID",
	})
	v.SetDefault("api.cors.max_age", 86400)
	v.SetDefault("api.cors.allow_credentials", false)
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.window", time.Minute)
	v.SetDefault("api.rate_limit.max_requests", 600)
	v.SetDefault("api.rate_limit.max_keys", 10000)
	v.SetDefault("api.metrics.enabled", true)
	v.SetDefault("api.metrics.path", "/metrics")

	v.SetDefault("replication.session_queue_size", 64)
	v.SetDefault("replication.write_timeout", 10*time.Second)
	v.SetDefault("replication.ping_interval", 30*time.Second)
	v.SetDefault("replication.pong_timeout", 60*time.Second)
	v.SetDefault("replication.handshake_timeout", 10*time.Second)
	v.SetDefault("replication.max_message_size", 1<<20)
	v.SetDefault("replication.handshake_limit.window", time.Minute)
	v.SetDefault("replication.handshake_limit.max_requests", 30)
	v.SetDefault("replication.handshake_limit.max_keys", 10000)

	v.SetDefault("events.subscriber_buffer", 256)
	v.SetDefault("events.redis.enabled", false)
	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)
	v.SetDefault("events.redis.channel", "confhub:config-changes")
	v.SetDefault("events.kafka.enabled", false)
	v.SetDefault("events.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("events.kafka.topic", "confhub.config-changes")
	v.SetDefault("events.kafka.batch_timeout", 50*time.Millisecond)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.operations", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)
	v.SetDefault("notify.webhook.enabled", false)
	v.SetDefault("notify.webhook.method", "POST")
	v.SetDefault("notify.webhook.include_value", false)
	v.SetDefault("notify.slack.enabled", false)
	v.SetDefault("notify.slack.username", "confhub")
	v.SetDefault("notify.rate_limit.enabled", true)
	v.SetDefault("notify.rate_limit.window", time.Minute)
	v.SetDefault("notify.rate_limit.max_requests", 30)
	v.SetDefault("notify.rate_limit.max_keys", 1000)

	def := retry.DefaultRetryConfig()
	v.SetDefault("retry.enable", def.Enable)
	v.SetDefault("retry.max_attempts", def.MaxAttempts)
	v.SetDefault("retry.initial_interval", def.InitialInterval)
	v.SetDefault("retry.max_interval", def.MaxInterval)
	v.SetDefault("retry.multiplier", def.Multiplier)

	logDef := logger.DefaultConfig()
	v.SetDefault("log.level", logDef.Level)
	v.SetDefault("log.format", logDef.Format)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", logDef.MaxSize)
	v.SetDefault("log.max_backups", logDef.MaxBackups)
	v.SetDefault("log.max_age", logDef.MaxAge)
	v.SetDefault("log.compress", false)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if err := config.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}

	if config.Server.TLS.Enabled {
		if err := validateTLSConfig(&config.Server.TLS); err != nil {
			return fmt.Errorf("invalid TLS config: %w", err)
		}
	}

	if config.API.RateLimit.Enabled {
		if err := config.API.RateLimit.Config.Validate(); err != nil {
			return fmt.Errorf("invalid rate limit config: %w", err)
		}
	}

	if err := validateReplicationConfig(&config.Replication); err != nil {
		return fmt.Errorf("invalid replication config: %w", err)
	}

	if err := validateEventsConfig(&config.Events); err != nil {
		return fmt.Errorf("invalid events config: %w", err)
	}

	if err := config.Notify.Validate(); err != nil {
		return fmt.Errorf("invalid notify config: %w", err)
	}

	if err := config.Retry.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}

	if err := config.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}

	return nil
}

// Validate TLS configuration
func validateTLSConfig(config *TLSConfig) error {
	if config.CertFile == "" || config.KeyFile == "" {
		return fmt.Errorf("TLS cert and key files are required")
	}
	return nil
}

// Validate replication configuration
func validateReplicationConfig(config *ReplicationConfig) error {
	if config.SessionQueueSize <= 0 {
		return fmt.Errorf("session queue size must be positive")
	}
	if config.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if config.PingInterval <= 0 || config.PongTimeout <= config.PingInterval {
		return fmt.Errorf("pong timeout must be greater than ping interval")
	}
	if err := config.HandshakeLimit.Validate(); err != nil {
		return fmt.Errorf("invalid handshake limit: %w", err)
	}
	return nil
}

// Validate events configuration
func validateEventsConfig(config *EventsConfig) error {
	if config.SubscriberBuffer <= 0 {
		return fmt.Errorf("subscriber buffer must be positive")
	}
	if config.Redis.Enabled && (config.Redis.Addr == "" || config.Redis.Channel == "") {
		return fmt.Errorf("redis address and channel are required")
	}
	if config.Kafka.Enabled && (len(config.Kafka.Brokers) == 0 || config.Kafka.Topic == "") {
		return fmt.Errorf("kafka brokers and topic are required")
	}
	return nil
}
