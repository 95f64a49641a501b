package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"skarbnik/internal/amqp"
	"skarbnik/internal/config"
	"skarbnik/internal/services"
	"skarbnik/internal/storage"
	"skarbnik/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting skarbnik")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ledger, err := storage.NewLedger(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open ledger", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer ledger.Close()

	// The broker is optional: without it the daemon still books nothing new
	// but keeps the ledger available for reporting.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.IngestQueue, cfg.NotifyQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	var (
		transferPub services.TransferNoticePublisher
		overduePub  services.OverdueNoticePublisher
	)
	if amqpClient != nil {
		transferPub = amqpClient
		overduePub = amqpClient
	}

	ingestSvc := services.NewIngestService(ledger, transferPub)
	overdueSvc := services.NewOverdueService(ledger, overduePub,
		cfg.OverdueMinAge, cfg.OverdueMaxAge, cfg.PostponeInterval)
	reconciler := services.NewReconciler(ledger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if amqpClient != nil {
		ingestWorker := worker.NewIngestWorker(amqpClient, ingestSvc)
		g.Go(func() error {
			return ingestWorker.Run(ctx)
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.OverdueScanInterval)
		defer ticker.Stop()

		// One pass right away so a restart does not delay notifications.
		runMaintenance(ctx, overdueSvc, reconciler)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				runMaintenance(ctx, overdueSvc, reconciler)
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("skarbnik stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("skarbnik stopped gracefully")
}

func runMaintenance(ctx context.Context, overdue *services.OverdueService, reconciler *services.Reconciler) {
	now := time.Now()
	if err := overdue.Scan(ctx, now); err != nil {
		slog.ErrorContext(ctx, "Overdue scan failed", "error", err)
	}
	if err := reconciler.Reconcile(ctx, now); err != nil {
		slog.ErrorContext(ctx, "Reconciliation failed", "error", err)
	}
}
