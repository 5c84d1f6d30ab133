// Package main provides the entry point for the SQL query gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sqlgate/sqlgate/cmd/gateway/config"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/metrics"
	"github.com/sqlgate/sqlgate/pkg/infrastructure/pool"
	"github.com/sqlgate/sqlgate/pkg/repositories/sqldb"
	"github.com/sqlgate/sqlgate/pkg/server"
	"github.com/sqlgate/sqlgate/pkg/services"
	"github.com/sqlgate/sqlgate/pkg/translate"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sqlgate",
	Short: "SQL query gateway",
	Long: `A validation and execution gateway for model-generated SQL.

sqlgate accepts candidate SQL statements, classifies and gates them, caps
unbounded reads, and executes the survivors against a relational database.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query gateway",
	Long: `Start the query gateway with the specified configuration.

Example:
  sqlgate serve --config ./config.yaml
  sqlgate serve --driver sqlite --dsn school.db --allow-writes=false`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "config file path")
	serveCmd.Flags().String("address", "0.0.0.0:8080", "server listen address")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().String("driver", "duckdb", "database driver (duckdb, sqlite, pgx)")
	serveCmd.Flags().String("dsn", "", "database DSN")
	serveCmd.Flags().Int("default-row-cap", 100, "row cap appended to uncapped reads")
	serveCmd.Flags().Bool("allow-batch", false, "permit multi-statement input")
	serveCmd.Flags().Bool("allow-writes", false, "enable the authenticated write path")
	serveCmd.Flags().Duration("query-timeout", 30*time.Second, "per-statement execution timeout (0 disables)")
	serveCmd.Flags().Bool("metrics", true, "enable Prometheus metrics")
	serveCmd.Flags().String("metrics-address", ":9090", "metrics server address")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")

	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("SQLGATE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sqlgate\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogging(cfg.LogLevel)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("driver", cfg.Database.Driver).
		Bool("allow_writes", cfg.Gateway.AllowWrites).
		Msg("Starting query gateway")

	var collector metrics.Collector
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusCollector()
		collector = prom

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: cfg.Metrics.Address, Handler: mux}
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	} else {
		collector = metrics.NewNoOpCollector()
	}

	dbPool, err := pool.New(pool.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConnections: cfg.Database.MaxOpenConnections,
		MaxIdleConnections: cfg.Database.MaxIdleConnections,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.Database.ConnMaxIdleTime,
		ConnectionTimeout:  cfg.Database.ConnectionTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbPool.Close()

	executor := sqldb.NewQueryExecutor(dbPool, logger)
	gateway := services.NewGateway(executor, services.GatewayConfig{
		DefaultRowCap: cfg.Gateway.DefaultRowCap,
		AllowBatch:    cfg.Gateway.AllowBatch,
		AllowWrites:   cfg.Gateway.AllowWrites,
		QueryTimeout:  cfg.Gateway.QueryTimeout,
	}, logger, collector)

	var sessions *server.SessionManager
	if cfg.Auth.Enabled {
		sessions = server.NewSessionManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	}

	var translator services.Translator
	var schemaRepo = sqldb.NewSchemaRepository(dbPool, cfg.Database.Driver, logger)
	if cfg.Translator.Enabled {
		translator = translate.NewClient(translate.Config{
			BaseURL: cfg.Translator.BaseURL,
			APIKey:  cfg.Translator.APIKey,
			Model:   cfg.Translator.Model,
			Timeout: cfg.Translator.Timeout,
		}, logger)
	}

	srv := server.New(gateway, translator, schemaRepo, sessions, dbPool, server.Options{
		Users: cfg.Auth.Users,
	}, logger, collector)

	httpServer := &http.Server{
		Addr:    cfg.Address,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", cfg.Address).Msg("Gateway listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-shutdownCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(ctx)
	}
	return nil
}

// loadConfig merges the config file, environment, and flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Explicit flags win over file values; untouched flags leave them alone.
	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Address = viper.GetString("address")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = viper.GetString("log-level")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	}
	if flags.Changed("driver") {
		cfg.Database.Driver = viper.GetString("driver")
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = viper.GetString("dsn")
	}
	if flags.Changed("default-row-cap") {
		cfg.Gateway.DefaultRowCap = viper.GetInt("default-row-cap")
	}
	if flags.Changed("allow-batch") {
		cfg.Gateway.AllowBatch = viper.GetBool("allow-batch")
	}
	if flags.Changed("allow-writes") {
		cfg.Gateway.AllowWrites = viper.GetBool("allow-writes")
	}
	if flags.Changed("query-timeout") {
		cfg.Gateway.QueryTimeout = viper.GetDuration("query-timeout")
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled = viper.GetBool("metrics")
	}
	if flags.Changed("metrics-address") {
		cfg.Metrics.Address = viper.GetString("metrics-address")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging configures zerolog with the given level.
func setupLogging(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
