package main

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/medbook/medbook/internal/audit"
	"github.com/medbook/medbook/internal/payments"
	"github.com/medbook/medbook/internal/platform/config"
	"github.com/medbook/medbook/internal/platform/database"
	"github.com/prometheus/client_golang/prometheus"
)

// buildPaymentsHandler returns nil when the Mercado Pago integration is disabled.
func buildPaymentsHandler(
	pool *database.Pool,
	cfg config.PaymentsConfig,
	auditLogger audit.Logger,
	reg prometheus.Registerer,
	logger *slog.Logger,
) (*payments.Handler, error) {
	if !cfg.MercadoPago.Enabled {
		return nil, nil
	}
	secret := strings.TrimSpace(cfg.MercadoPago.WebhookSecret)
	if secret == "" {
		return nil, errors.New("mercadopago webhook secret is required when payments are enabled")
	}

	verifier := payments.NewMercadoPagoVerifier(secret, time.Duration(cfg.MercadoPago.MaxSkewSeconds)*time.Second)
	replayWindow := time.Duration(cfg.Webhook.ReplayWindowSeconds) * time.Second
	store := payments.NewStore()

	var guard *payments.IngressGuard
	if pool != nil {
		guard = payments.NewStoreBackedGuard(verifier, replayWindow, pool, store)
	} else {
		slog.Warn("payments webhook running without database, deduplicating in memory only",
			"cache_size", cfg.Webhook.MemoryDedupSize,
		)
		var err error
		guard, err = payments.NewMemoryBackedGuard(verifier, replayWindow, cfg.Webhook.MemoryDedupSize)
		if err != nil {
			return nil, err
		}
	}

	var metrics *payments.Metrics
	if reg != nil {
		metrics = payments.NewMetrics(reg)
	}

	handler := payments.NewHandler(payments.HandlerConfig{
		Guard:        guard,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		DeliveryTTL:  time.Duration(cfg.Webhook.DeliveryTTLHours) * time.Hour,
		Audit:        auditLogger,
		Metrics:      metrics,
		Sink:         payments.LogSink{Logger: logger},
		Logger:       logger,
	})
	return handler.WithDeliveryStore(pool, store), nil
}
