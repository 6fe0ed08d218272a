package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/medbook/medbook/internal/platform/database"
)

// Store handles webhook delivery persistence.
// Methods accept database.Querier so they can run on a pool or inside a transaction.
type Store struct{}

// NewStore creates a new payments store.
func NewStore() *Store {
	return &Store{}
}

// InsertDeliveryParams holds the fields recorded for a verified delivery.
type InsertDeliveryParams struct {
	IdempotencyKey     string
	NotificationID     string
	Topic              string
	Action             string
	ResourceID         string
	LiveMode           bool
	PayloadFingerprint string
	CorrelationID      string
	ExpiresAt          time.Time
}

// InsertDelivery records a delivery idempotency key.
// It returns true when this is the first-seen key and false on duplicate.
func (s *Store) InsertDelivery(ctx context.Context, q database.Querier, params InsertDeliveryParams) (bool, error) {
	if params.IdempotencyKey == "" {
		return false, ErrIdempotencyKey
	}
	if params.PayloadFingerprint == "" {
		return false, ErrFingerprint
	}
	if params.CorrelationID == "" {
		return false, ErrCorrelationID
	}
	if params.ExpiresAt.IsZero() {
		return false, ErrExpiryRequired
	}

	var insertedID uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO payment_webhook_deliveries (
			idempotency_key,
			notification_id,
			topic,
			action,
			resource_id,
			live_mode,
			payload_fingerprint,
			correlation_id,
			status,
			expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		params.IdempotencyKey,
		params.NotificationID,
		params.Topic,
		params.Action,
		params.ResourceID,
		params.LiveMode,
		params.PayloadFingerprint,
		params.CorrelationID,
		DeliveryStatusAccepted,
		params.ExpiresAt,
	).Scan(&insertedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("inserting webhook delivery: %w", err)
	}
	return true, nil
}

// GetDelivery returns the delivery recorded under idempotencyKey.
func (s *Store) GetDelivery(ctx context.Context, q database.Querier, idempotencyKey string) (*Delivery, error) {
	if idempotencyKey == "" {
		return nil, ErrIdempotencyKey
	}

	var d Delivery
	err := q.QueryRow(ctx,
		`SELECT id, idempotency_key, notification_id, topic, action, resource_id, live_mode,
		        payload_fingerprint, correlation_id, status, received_at, expires_at
		 FROM payment_webhook_deliveries
		 WHERE idempotency_key = $1`,
		idempotencyKey,
	).Scan(
		&d.ID,
		&d.IdempotencyKey,
		&d.NotificationID,
		&d.Topic,
		&d.Action,
		&d.ResourceID,
		&d.LiveMode,
		&d.PayloadFingerprint,
		&d.CorrelationID,
		&d.Status,
		&d.ReceivedAt,
		&d.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("getting webhook delivery: %w", err)
	}
	return &d, nil
}

// UpdateDeliveryStatus moves a recorded delivery to status.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, q database.Querier, idempotencyKey, status string) error {
	if idempotencyKey == "" {
		return ErrIdempotencyKey
	}
	if status == "" {
		return ErrStatusRequired
	}

	tag, err := q.Exec(ctx,
		`UPDATE payment_webhook_deliveries
		 SET status = $2
		 WHERE idempotency_key = $1`,
		idempotencyKey, status,
	)
	if err != nil {
		return fmt.Errorf("updating webhook delivery status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

// DeleteExpiredDeliveries removes up to limit deliveries whose expiry is
// before now and returns the number removed.
func (s *Store) DeleteExpiredDeliveries(ctx context.Context, q database.Querier, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	tag, err := q.Exec(ctx,
		`DELETE FROM payment_webhook_deliveries
		 WHERE id IN (
			SELECT id FROM payment_webhook_deliveries
			WHERE expires_at < $1
			ORDER BY expires_at
			LIMIT $2
		 )`,
		now, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired webhook deliveries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
