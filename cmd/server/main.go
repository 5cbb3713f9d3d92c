// Package main is the entry point for the Frontier portfolio optimization service.
//
// The service exposes optimization, tuning and backtest endpoints over HTTP and
// periodically re-tunes the evolution hyperparameters on a cron schedule.
//
// Data lives in three SQLite databases under FRONTIER_DATA_DIR:
// - universe.db: assets and monthly returns
// - tuning.db: hyperparameter configurations found by grid search
// - portfolio.db: saved optimization results
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	backtesthandlers "github.com/aristath/frontier/internal/modules/backtest/handlers"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	tuninghandlers "github.com/aristath/frontier/internal/modules/tuning/handlers"
	"github.com/aristath/frontier/internal/scheduler"
	"github.com/aristath/frontier/internal/server"
	"github.com/aristath/frontier/pkg/logger"
)

func main() {
	// Configuration comes from the environment (.env is loaded if present)
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Frontier")

	sched := scheduler.New(log)

	container, _, err := di.Wire(cfg, log, sched)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	backtestHandler := backtesthandlers.NewHandler(container.UniverseRepo, container.OptimizationService, log)
	backtestHandler.SetEventEmitter(container.EventBus)

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Databases: container.Databases(),
		EventBus:  container.EventBus,
		Modules: []server.RouteRegistrar{
			optimizationhandlers.NewHandler(container.OptimizationService, container.PortfolioRepo, log),
			tuninghandlers.NewHandler(container.TuningService, log),
			backtestHandler,
		},
		Jobs: sched,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sched.Start()

	log.Info().Int("port", cfg.Port).Msg("Frontier is running")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop accepting requests first, then let a running retune finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	sched.Stop()

	log.Info().Msg("Server stopped")
}
