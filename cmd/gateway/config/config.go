// Package config provides configuration structures for the query gateway.
package config

import (
	"fmt"
	"time"
)

// Config represents the gateway configuration.
type Config struct {
	Address         string        `yaml:"address" json:"address" mapstructure:"address"`
	LogLevel        string        `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	Database   DatabaseConfig   `yaml:"database" json:"database" mapstructure:"database"`
	Gateway    GatewayConfig    `yaml:"gateway" json:"gateway" mapstructure:"gateway"`
	Auth       AuthConfig       `yaml:"auth" json:"auth" mapstructure:"auth"`
	Translator TranslatorConfig `yaml:"translator" json:"translator" mapstructure:"translator"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// DatabaseConfig represents the data source configuration.
type DatabaseConfig struct {
	Driver             string        `yaml:"driver" json:"driver" mapstructure:"driver"` // duckdb, sqlite, pgx
	DSN                string        `yaml:"dsn" json:"dsn" mapstructure:"dsn"`
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections" mapstructure:"max_open_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections" json:"max_idle_connections" mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout" json:"connection_timeout" mapstructure:"connection_timeout"`
}

// GatewayConfig represents the validation pipeline configuration.
type GatewayConfig struct {
	DefaultRowCap int           `yaml:"default_row_cap" json:"default_row_cap" mapstructure:"default_row_cap"`
	AllowBatch    bool          `yaml:"allow_batch" json:"allow_batch" mapstructure:"allow_batch"`
	AllowWrites   bool          `yaml:"allow_writes" json:"allow_writes" mapstructure:"allow_writes"`
	QueryTimeout  time.Duration `yaml:"query_timeout" json:"query_timeout" mapstructure:"query_timeout"`
}

// AuthConfig represents the authentication collaborator configuration.
type AuthConfig struct {
	Enabled   bool              `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Users     map[string]string `yaml:"users" json:"users" mapstructure:"users"`
	JWTSecret string            `yaml:"jwt_secret" json:"jwt_secret" mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `yaml:"token_ttl" json:"token_ttl" mapstructure:"token_ttl"`
}

// TranslatorConfig represents the natural-language translation collaborator.
type TranslatorConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	BaseURL string        `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	APIKey  string        `yaml:"api_key" json:"api_key" mapstructure:"api_key"`
	Model   string        `yaml:"model" json:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Address string `yaml:"address" json:"address" mapstructure:"address"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
}

// Validate validates the configuration and applies documented defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		c.Address = "0.0.0.0:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	switch c.Database.Driver {
	case "duckdb", "sqlite", "pgx":
	case "":
		return fmt.Errorf("database driver is required")
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.DSN == "" && c.Database.Driver == "pgx" {
		return fmt.Errorf("database dsn is required for pgx")
	}
	if c.Database.MaxOpenConnections <= 0 {
		c.Database.MaxOpenConnections = 25
	}
	if c.Database.MaxIdleConnections <= 0 {
		c.Database.MaxIdleConnections = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.Database.ConnectionTimeout <= 0 {
		c.Database.ConnectionTimeout = 10 * time.Second
	}

	if c.Gateway.DefaultRowCap <= 0 {
		c.Gateway.DefaultRowCap = 100
	}
	if c.Gateway.QueryTimeout < 0 {
		return fmt.Errorf("query timeout cannot be negative")
	}

	if c.Gateway.AllowWrites {
		if !c.Auth.Enabled {
			return fmt.Errorf("allow_writes requires auth to be enabled")
		}
	}
	if c.Auth.Enabled {
		if len(c.Auth.Users) == 0 {
			return fmt.Errorf("auth requires at least one configured user")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth requires jwt_secret")
		}
		if c.Auth.TokenTTL <= 0 {
			c.Auth.TokenTTL = 30 * time.Minute
		}
	}

	if c.Translator.Enabled {
		if c.Translator.BaseURL == "" {
			return fmt.Errorf("translator requires base_url")
		}
		if c.Translator.Model == "" {
			return fmt.Errorf("translator requires model")
		}
		if c.Translator.Timeout <= 0 {
			c.Translator.Timeout = 30 * time.Second
		}
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	return nil
}

// DefaultConfig returns a default configuration: a read-only gateway over an
// in-memory DuckDB database.
func DefaultConfig() *Config {
	return &Config{
		Address:         "0.0.0.0:8080",
		LogLevel:        "info",
		ShutdownTimeout: 30 * time.Second,
		Database: DatabaseConfig{
			Driver:             "duckdb",
			DSN:                "",
			MaxOpenConnections: 25,
			MaxIdleConnections: 5,
			ConnMaxLifetime:    30 * time.Minute,
			ConnMaxIdleTime:    10 * time.Minute,
			ConnectionTimeout:  10 * time.Second,
		},
		Gateway: GatewayConfig{
			DefaultRowCap: 100,
			AllowBatch:    false,
			AllowWrites:   false,
			QueryTimeout:  30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}
