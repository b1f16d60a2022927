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
	"dedupgate/internal/consumer"
	"dedupgate/internal/dedup"
	"dedupgate/internal/infrastructure/kafka"
	"dedupgate/internal/infrastructure/postgres"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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
		logger.Info("consumer metrics listening", "port", cfg.HTTP.MetricsPort)
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

	engine := dedup.NewEngine(ledgerRepo, logger)

	transport := kafka.NewTransport(kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		GroupPrefix: cfg.Kafka.GroupPrefix,
	}, logger)

	if err := consumer.RegisterAll(ctx, transport, engine, logger); err != nil {
		logger.Error("failed to register consumers", "error", err)
		os.Exit(1)
	}

	logger.Info("consumers started", "group_prefix", cfg.Kafka.GroupPrefix)

	<-ctx.Done()
	transport.Close()
	logger.Info("consumers stopped")
}
