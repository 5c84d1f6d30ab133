// Package pool provides database connection pooling for the gateway.
package pool

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/sqlgate/sqlgate/pkg/errors"
)

// Config represents pool configuration.
type Config struct {
	Driver             string        `json:"driver"`
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	ConnectionTimeout  time.Duration `json:"connection_timeout"`
}

// ConnectionPool manages database connections.
type ConnectionPool interface {
	// DB returns the pooled database handle.
	DB() *sql.DB
	// HealthCheck pings the data source.
	HealthCheck(ctx context.Context) error
	// Stats returns pool statistics.
	Stats() Stats
	// Close closes the connection pool.
	Close() error
}

// Stats represents connection pool statistics.
type Stats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration"`
}

type connectionPool struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens a connection pool for the configured driver and DSN. The driver
// must be registered by the caller (blank import in cmd).
func New(cfg Config, logger zerolog.Logger) (ConnectionPool, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.CodeConnectionFailed, "failed to open %s database", cfg.Driver)
	}

	if cfg.MaxOpenConnections > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConnections)
	}
	if cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConnections)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "database ping failed")
	}

	logger.Info().
		Str("driver", cfg.Driver).
		Int("max_open", cfg.MaxOpenConnections).
		Msg("Connection pool ready")

	return &connectionPool{db: db, logger: logger}, nil
}

// NewWithDB wraps an existing database handle. Used by tests and embedders
// that manage their own handle lifecycle.
func NewWithDB(db *sql.DB, logger zerolog.Logger) ConnectionPool {
	return &connectionPool{db: db, logger: logger}
}

func (p *connectionPool) DB() *sql.DB {
	return p.db
}

func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "health check failed")
	}
	return nil
}

func (p *connectionPool) Stats() Stats {
	s := p.db.Stats()
	return Stats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		WaitCount:       s.WaitCount,
		WaitDuration:    s.WaitDuration,
	}
}

func (p *connectionPool) Close() error {
	p.logger.Debug().Msg("Closing connection pool")
	return p.db.Close()
}
