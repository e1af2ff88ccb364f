package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careops/clinic-scheduling/internal/api"
	"github.com/careops/clinic-scheduling/internal/availability"
	"github.com/careops/clinic-scheduling/internal/booking"
	"github.com/careops/clinic-scheduling/internal/catalog"
	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/db"
	"github.com/careops/clinic-scheduling/internal/ledger"
	"github.com/careops/clinic-scheduling/internal/procedure"
	redisclient "github.com/careops/clinic-scheduling/internal/redis"
	"github.com/careops/clinic-scheduling/internal/slot"
)

const version = "0.3.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisTimeout)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	catalogRepo := catalog.NewPgRepository(pgPool)
	catalogSvc := catalog.NewService(catalogRepo, cfg.LowStockThreshold, logger)

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

	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	bookingRepo := booking.NewPgRepository(pgPool)
	bookingSvc := booking.NewService(
		bookingRepo, slotRepo, expander, procedureSvc, engine,
		generator, catalogRepo, catalogRepo, ledgerRepo, locker, logger,
	)

	router := api.NewRouter(api.RouterConfig{
		Catalog:      catalogSvc,
		Procedures:   procedureSvc,
		Expander:     expander,
		Availability: engine,
		Generator:    generator,
		Slots:        slotRepo,
		Bookings:     bookingSvc,
		Ledger:       ledgerRepo,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       logger,
		Env:          cfg.Env,
		Version:      version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
