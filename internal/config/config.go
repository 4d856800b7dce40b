// Package config loads process-wide correlator configuration with viper:
// SetDefault for every known key, an optional config file, environment
// override via SetEnvPrefix.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the §6 "Configuration (process-wide)" options plus the
// ambient stack's connection settings for the sinks and stores the domain
// stack wires in.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Correlator CorrelatorConfig `mapstructure:"correlator"`
	Redis      RedisConfig      `mapstructure:"redis"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
}

// LogConfig controls the internal/logging handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig is the read-only query API (§6 "External read API").
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// CorrelatorConfig is §6's "Configuration (process-wide)" table plus the
// engine's shutdown deadline, input queue size and per-sink timeout.
type CorrelatorConfig struct {
	RetentionWindow   time.Duration `mapstructure:"retention_window"`
	MaxDecisionGraphs int           `mapstructure:"max_decision_graphs"`
	MaxAlertsInMemory int           `mapstructure:"max_alerts_in_memory"`
	DefaultCount      string        `mapstructure:"default_count"`
	DefaultWindow     time.Duration `mapstructure:"default_window"`
	DefaultConfidence float64       `mapstructure:"default_confidence"`
	ShutdownDeadline  time.Duration `mapstructure:"shutdown_deadline"`
	QueueSize         int           `mapstructure:"queue_size"`
	SinkTimeout       time.Duration `mapstructure:"sink_timeout"`
}

// RedisConfig backs the sink package's degraded-sink health bookkeeping
// (§4.5 sinks, optional).
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

// NATSConfig backs the NATS alert sink.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Enabled bool   `mapstructure:"enabled"`
}

// PostgresConfig backs the durable alert audit store (internal/alertstore).
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	Enabled  bool   `mapstructure:"enabled"`
}

// ConnString renders a postgres:// connection string for pgx/lib-pq.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// Load reads configuration from configPath (if non-empty) and the
// CORRELATOR_-prefixed environment, falling back to spec.md §6's stated
// defaults for every correlator option.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("correlator.retention_window", "3600s")
	v.SetDefault("correlator.max_decision_graphs", 512)
	v.SetDefault("correlator.max_alerts_in_memory", 500)
	v.SetDefault("correlator.default_count", ">= 1")
	v.SetDefault("correlator.default_window", "60s")
	v.SetDefault("correlator.default_confidence", 0.75)
	v.SetDefault("correlator.shutdown_deadline", "5s")
	v.SetDefault("correlator.queue_size", 4096)
	v.SetDefault("correlator.sink_timeout", "2s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "correlator.alerts")
	v.SetDefault("nats.enabled", false)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "telhawk")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "logiccorrelator")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.enabled", false)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CORRELATOR")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
