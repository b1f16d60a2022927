package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dedupgate/internal/api"
	"dedupgate/internal/application/factories/infrastructure"
	"dedupgate/internal/broker"
	"dedupgate/internal/config"
	"dedupgate/internal/consumer"
	"dedupgate/internal/dedup"
	"dedupgate/internal/infrastructure/kafka"
	"dedupgate/internal/infrastructure/postgres"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

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
	sweeper := dedup.NewSweeper(ledgerRepo, cfg.Dedup.RetentionDays, cfg.Dedup.SweepInterval, logger)
	go func() {
		if err := sweeper.Run(ctx); err != nil {
			logger.Error("sweeper stopped", "error", err)
		}
	}()

	topology, err := consumer.DefaultTopology()
	if err != nil {
		logger.Error("failed to build topology", "error", err)
		os.Exit(1)
	}

	transport := kafka.NewTransport(kafka.Config{
		Brokers:     cfg.Kafka.Brokers,
		GroupPrefix: cfg.Kafka.GroupPrefix,
	}, logger)
	defer transport.Close()

	publisher := broker.NewExchangePublisher(topology, transport, logger)

	// Redis only backs the publish idempotency middleware; the service
	// still runs without it.
	redisClient, err := infraFactory.Redis(ctx)
	if err != nil {
		logger.Warn("redis unavailable, publish idempotency disabled", "error", err)
		redisClient = nil
	}

	handlers := api.NewHandlers(publisher, topology, engine, sweeper, cfg.App.Name, logger)
	router := api.NewRouter(handlers, redisClient)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		logger.Info("api listening", "port", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	logger.Info("api stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
