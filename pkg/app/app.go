// Package app wires storage, the machine, the reserve monitor and the HTTP API into one process.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"vending/pkg/catalog"
	"vending/pkg/httpapi"
	"vending/pkg/inventory"
	"vending/pkg/logger"
	"vending/pkg/machine"
	"vending/pkg/metrics"
	"vending/pkg/monitor"
	"vending/pkg/storage"
	"vending/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// Run parses args and serves until ctx is cancelled.
func Run(ctx context.Context, args []string) error {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	log := logger.New(logger.Config{Level: cfg.logLevel, Pretty: cfg.devMode})
	logger.SetGlobalLogger(log)

	if cfg.showVersion {
		log.Info().Str("version", version.Version()).Msg("vending machine")
		return nil
	}
	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg Config, log zerolog.Logger) error {
	seed, err := catalog.Load(cfg.catalogPath)
	if err != nil {
		return err
	}

	db, cleanup, err := storage.Open(ctx, storage.Config{Type: cfg.dbType, Path: cfg.dbPath})
	if err != nil {
		return err
	}
	defer cleanup()

	repo := inventory.NewRepository(db, log)
	seeded, err := repo.Seed(ctx, seed.Items, seed.Denominations)
	if err != nil {
		return fmt.Errorf("unable to seed catalog: %w", err)
	}
	if !seeded {
		log.Info().Msg("existing machine state found, catalog not applied")
	}

	m := metrics.New()
	svc := machine.NewService(repo, log, m)
	defer svc.Close()

	if cfg.monitorEnabled() {
		scheduler := monitor.NewScheduler(log)
		job := monitor.NewReserveJob(svc, m, log)
		if err := scheduler.RunNow(job); err != nil {
			log.Warn().Err(err).Msg("initial reserve check failed")
		}
		if err := scheduler.AddJob(cfg.monitorSchedule, job); err != nil {
			return fmt.Errorf("invalid monitor schedule %q: %w", cfg.monitorSchedule, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	api := httpapi.New(httpapi.Config{
		Machine:     svc,
		Metrics:     m,
		Log:         log,
		CORSOrigins: cfg.origins(),
		DevMode:     cfg.devMode,
	})

	if cfg.domain != "" {
		log.Info().Str("domain", cfg.domain).Msg("starting HTTPS servers")
		return runDomainServers(ctx, cfg.domain, api.Handler(), log)
	}

	ln, err := net.Listen("tcp", cfg.address())
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", cfg.address(), err)
	}
	server := &http.Server{
		Handler:      api.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("db_type", cfg.dbType).
		Str("version", version.Version()).
		Msg("vending machine is running")
	return serve(ctx, server, func() error { return server.Serve(ln) }, log)
}

// serve runs start until it fails or ctx is cancelled, then shuts server down gracefully.
func serve(ctx context.Context, server *http.Server, start func() error, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
