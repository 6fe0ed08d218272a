package audit

import (
	"context"
)

// Event represents a single auditable action in the system.
type Event struct {
	Action       string // e.g. "payment.webhook.accepted"
	ResourceType string // e.g. "payment", "merchant_order"
	ResourceID   string // provider resource id, empty when unknown
	Metadata     map[string]any
	Source       string // "mercadopago", "system"
}

const (
	ActionPaymentWebhookAccepted          = "payment.webhook.accepted"
	ActionPaymentWebhookDuplicate         = "payment.webhook.duplicate"
	ActionPaymentWebhookReplayBlocked     = "payment.webhook.replay_blocked"
	ActionPaymentWebhookRejectedSignature = "payment.webhook.rejected_signature"
	ActionPaymentWebhookInvalidPayload    = "payment.webhook.invalid_payload"
)

const (
	MetadataCorrelationID  = "correlation_id"
	MetadataDecision       = "decision"
	MetadataIdempotencyKey = "idempotency_key"
	MetadataNotificationID = "notification_id"
	MetadataLiveMode       = "live_mode"
	MetadataReason         = "reason"
)

// Logger is the audit logging interface. Log is fire-and-forget.
type Logger interface {
	Log(ctx context.Context, event Event)
	Close() error
}

// NopLogger is a no-op audit logger for testing and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}
func (NopLogger) Close() error               { return nil }
