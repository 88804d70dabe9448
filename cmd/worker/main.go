// Command worker runs the stale task watchdog on its own, for deployments
// where API replicas share Postgres or Redis state.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"bananabot/internal/app"
	"bananabot/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)
	if cfg.StoreBackend == infra.BackendMemory {
		logger.Warn().Msg("worker: memory store is private to this process, nothing to sweep")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: build failed")
	}
	defer application.Close()

	scheduler := application.Scheduler()
	logger.Info().Str("schedule", scheduler.Expression()).Msg("worker: started")
	if err := scheduler.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("worker: scheduler failed")
	}
	logger.Info().Msg("worker: stopped")
}
