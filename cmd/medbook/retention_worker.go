package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/medbook/medbook/internal/payments"
	"github.com/medbook/medbook/internal/platform/config"
	"github.com/medbook/medbook/internal/platform/database"
)

const (
	defaultRetentionCleanupInterval  = time.Hour
	defaultRetentionCleanupBatchSize = 500
)

type expiredDeliveryDeleter func(ctx context.Context, now time.Time, limit int) (int, error)

// deliveryRetentionWorker removes expired rows from the webhook delivery ledger.
type deliveryRetentionWorker struct {
	deleteExpired expiredDeliveryDeleter
	interval      time.Duration
	batchSize     int
	now           func() time.Time
}

func buildDeliveryRetentionWorker(pool *database.Pool, cfg config.PaymentsConfig) *deliveryRetentionWorker {
	if pool == nil || !cfg.MercadoPago.Enabled || !cfg.Webhook.Retention.Enabled {
		return nil
	}

	interval := time.Duration(cfg.Webhook.Retention.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultRetentionCleanupInterval
	}

	batchSize := cfg.Webhook.Retention.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRetentionCleanupBatchSize
	}

	store := payments.NewStore()
	return &deliveryRetentionWorker{
		deleteExpired: func(ctx context.Context, now time.Time, limit int) (int, error) {
			return store.DeleteExpiredDeliveries(ctx, pool, now, limit)
		},
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (w *deliveryRetentionWorker) Run(ctx context.Context) error {
	if w == nil || w.deleteExpired == nil {
		return nil
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep deletes in batches until a short batch signals nothing is left.
func (w *deliveryRetentionWorker) sweep(ctx context.Context) int {
	now := time.Now().UTC()
	if w.now != nil {
		now = w.now().UTC()
	}

	totalDeleted := 0
	for ctx.Err() == nil {
		deleted, err := w.deleteExpired(ctx, now, w.batchSize)
		if err != nil {
			slog.Error("payment delivery retention cleanup failed", "error", err)
			break
		}
		totalDeleted += deleted
		if deleted < w.batchSize {
			break
		}
	}

	if totalDeleted > 0 {
		slog.Info("payment delivery retention cleanup completed", "deleted_rows", totalDeleted)
	}
	return totalDeleted
}
