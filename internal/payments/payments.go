package payments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// DeliveryStatusAccepted marks the first verified delivery of a notification.
	DeliveryStatusAccepted = "accepted"
	// DeliveryStatusProcessed marks a delivery whose notification was handed off.
	DeliveryStatusProcessed = "processed"
	// DeliveryStatusFailed marks a delivery that could not be handed off.
	DeliveryStatusFailed = "failed"
)

// Delivery is one verified webhook delivery recorded in the idempotency ledger.
type Delivery struct {
	ID                 uuid.UUID `json:"id"`
	IdempotencyKey     string    `json:"idempotency_key"`
	NotificationID     string    `json:"notification_id,omitempty"`
	Topic              string    `json:"topic"`
	Action             string    `json:"action,omitempty"`
	ResourceID         string    `json:"resource_id,omitempty"`
	LiveMode           bool      `json:"live_mode"`
	PayloadFingerprint string    `json:"payload_fingerprint"`
	CorrelationID      string    `json:"correlation_id"`
	Status             string    `json:"status"`
	ReceivedAt         time.Time `json:"received_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

var (
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
	ErrIdempotencyKey   = errors.New("idempotency key is required")
	ErrFingerprint      = errors.New("payload fingerprint is required")
	ErrCorrelationID    = errors.New("correlation id is required")
	ErrExpiryRequired   = errors.New("expiry timestamp is required")
	ErrStatusRequired   = errors.New("delivery status is required")
)
