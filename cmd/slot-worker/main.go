package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/db"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
	"github.com/careops/clinic-scheduling/internal/slot"
)

// slot-worker periodically deletes stale auto-generated slots so the
// bookable inventory never shows windows already in the past.
func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "slot-worker").Logger()
	logger.Info().Msg("slot-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	catalogRepo := catalog.NewPgRepository(pgPool)
	procedureRepo := procedure.NewPgRepository(pgPool)
	procedureSvc := procedure.NewService(procedureRepo, catalogRepo, logger)
	expander := procedure.NewExpander(procedureRepo, catalogRepo)
	ledgerRepo := ledger.NewPgRepository(pgPool)
	availabilityRepo := availability.NewPgRepository(pgPool)
	engine := availability.NewEngine(availabilityRepo, catalogRepo, ledgerRepo, logger)
	slotRepo := slot.NewPgRepository(pgPool)
	generator := slot.NewGenerator(
		slotRepo, expander, procedureSvc, engine, ledgerRepo,
		cfg.SlotIntervalMinutes, cfg.MaxGeneratedSlots, logger,
	)

	runOnce(rootCtx, generator, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping slot worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, generator, logger)
		}
	}
}

func runOnce(ctx context.Context, generator *slot.Generator, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	n, err := generator.CleanupExpired(runCtx, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Msg("cleanup run error")
		return
	}
	logger.Info().Int("deleted", n).Dur("took", time.Since(start)).Msg("cleanup run complete")
}
