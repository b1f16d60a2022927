package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"dedupgate/internal/application/factories/infrastructure"
	"dedupgate/internal/config"
	"dedupgate/internal/dedup"
	"dedupgate/internal/infrastructure/postgres"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Standalone retention sweeper for deployments that keep the sweep out of
// the api process. Runs the same Sweeper the api embeds.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.New()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("sweeper metrics listening", "port", cfg.HTTP.MetricsPort)
		http.ListenAndServe(":"+cfg.HTTP.MetricsPort, mux)
	}()

	infraFactory := infrastructure.NewFactory(cfg, logger)
	defer infraFactory.Close()

	pgPool, err := infraFactory.Postgres(ctx)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	ledgerRepo := postgres.NewLedgerRepository(pgPool)
	if err := ledgerRepo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure ledger schema", "error", err)
		os.Exit(1)
	}

	sweeper := dedup.NewSweeper(ledgerRepo, cfg.Dedup.RetentionDays, cfg.Dedup.SweepInterval, logger)
	if err := sweeper.Run(ctx); err != nil {
		logger.Error("sweeper stopped", "error", err)
		os.Exit(1)
	}

	logger.Info("sweeper stopped")
}
