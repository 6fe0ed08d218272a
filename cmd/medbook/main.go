package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medbook/medbook/internal/audit"
	"github.com/medbook/medbook/internal/platform/config"
	"github.com/medbook/medbook/internal/platform/database"
	"github.com/medbook/medbook/internal/platform/server"
	"github.com/medbook/medbook/internal/platform/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("medbook starting",
		"version", "0.1.0",
		"port", cfg.Server.Port,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Database is optional: webhooks still verify without it, but are not deduplicated.
	var pool *database.Pool
	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		timeout := time.Duration(cfg.Database.ConnectTimeoutSeconds) * time.Second
		p, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns, timeout)
		if err != nil {
			slog.Warn("database connection failed, starting without DB", "error", err)
		} else {
			pool = p
			defer pool.Close()

			if err := database.RunMigrations(ctx, pool); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrations complete")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var auditLogger audit.Logger = audit.NopLogger{}
	if pool != nil && cfg.Audit.Enabled {
		auditLogger = audit.NewAsyncLogger(pool, audit.NewStore(), audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushIntervalMillis) * time.Millisecond,
			Logger:        logger,
			Metrics:       audit.NewMetrics(registry),
		})
		defer auditLogger.Close()
		slog.Info("audit logger started")
	}

	paymentsHandler, err := buildPaymentsHandler(pool, cfg.Payments, auditLogger, registry, logger)
	if err != nil {
		return fmt.Errorf("building payments handler: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:               pool,
		PaymentsHandler:    paymentsHandler,
		Metrics:            registry,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	if worker := buildDeliveryRetentionWorker(pool, cfg.Payments); worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
		slog.Info("payment delivery retention worker started", "interval", worker.interval.String())
	}
	g.Go(func() error { return srv.Start(gctx) })

	slog.Info("server ready", "addr", addr, "payments_webhook", paymentsHandler != nil)
	return g.Wait()
}
