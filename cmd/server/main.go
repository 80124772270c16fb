/*
main.go - Application entry point

PURPOSE:
  Starts the canteen dues server: loads configuration, opens the store,
  wires the engine, HTTP API and daily sweep scheduler, and shuts them all
  down in order on a signal.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, .env, YAML, environment)
  3. Configure logging
  4. Open the SQLite or PostgreSQL store
  5. Build the engine, handler, router and sweep scheduler
  6. Start the scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -config  YAML configuration file (optional)
  -port    HTTP server port, overrides config
  -db      SQLite database path, overrides config
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler (waits for a running sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/canteen-engine/api"
	"github.com/warp/canteen-engine/config"
	"github.com/warp/canteen-engine/dues"
	"github.com/warp/canteen-engine/logging"
	"github.com/warp/canteen-engine/store/postgres"
	"github.com/warp/canteen-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML configuration file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = *dbPath
	}

	logger := logging.Configure(logging.Config{Level: cfg.Logging.Level, Pretty: cfg.Logging.Pretty})

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	runAtHour, runAtMinute, err := cfg.RunAt()
	if err != nil {
		return err
	}

	backend, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine := dues.NewEngine(backend, backend, backend,
		dues.WithLocation(loc),
		dues.WithConcurrency(cfg.Dues.Concurrency),
		dues.WithMaxPrepaidDays(int64(cfg.Dues.MaxPrepaidDays)),
		dues.WithLogger(logging.Component(logger, "dues")),
	)

	sweeps := api.NewDailySweepScheduler(engine, backend, logger)
	sweeps.Enabled = cfg.Sweep.Enabled
	sweeps.CheckInterval = cfg.Sweep.CheckInterval
	sweeps.RunAtHour = runAtHour
	sweeps.RunAtMinute = runAtMinute

	handler := api.NewHandler(engine, backend, sweeps, cfg.Cron.Secret, logger)
	if cfg.Cron.Secret == "" {
		logger.Warn().Msg("CRON_SECRET not set; manual sweep endpoint is disabled")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweeps.Start()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Str("timezone", loc.String()).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		sweeps.Stop()
		return err
	}

	sweeps.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info().Msg("server stopped")
	return nil
}

// openStore returns the configured backend and its close function.
func openStore(cfg *config.Config, logger zerolog.Logger) (api.Backend, func(), error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := postgres.New(context.Background(), postgres.Config{
			URL:      cfg.Database.URL,
			MaxConns: int32(cfg.Database.MaxConns),
		}, logging.Component(logger, "postgres"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return store, store.Close, nil

	default:
		store, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close database")
			}
		}
		return store, closeFn, nil
	}
}
