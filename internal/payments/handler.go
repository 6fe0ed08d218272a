package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/medbook/medbook/internal/audit"
	"github.com/medbook/medbook/internal/platform/database"
	"github.com/medbook/medbook/internal/platform/middleware"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultDeliveryTTL  = 72 * time.Hour
	auditSource         = "mercadopago"
)

type updateDeliveryStatusFunc func(ctx context.Context, idempotencyKey, status string) error

type getDeliveryFunc func(ctx context.Context, idempotencyKey string) (*Delivery, error)

// NotificationSink receives notifications that passed every ingress check.
type NotificationSink interface {
	HandleNotification(ctx context.Context, n Notification) error
}

// HandlerConfig configures the webhook handler.
type HandlerConfig struct {
	Guard        *IngressGuard
	MaxBodyBytes int64
	DeliveryTTL  time.Duration
	Audit        audit.Logger
	Metrics      *Metrics
	Sink         NotificationSink
	Logger       *slog.Logger
}

// Handler serves the payment provider webhook endpoint.
type Handler struct {
	guard                *IngressGuard
	maxBodyBytes         int64
	deliveryTTL          time.Duration
	audit                audit.Logger
	metrics              *Metrics
	sink                 NotificationSink
	logger               *slog.Logger
	updateDeliveryStatus updateDeliveryStatusFunc
	getDelivery          getDeliveryFunc
	now                  func() time.Time
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.DeliveryTTL <= 0 {
		cfg.DeliveryTTL = defaultDeliveryTTL
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NopLogger{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		guard:        cfg.Guard,
		maxBodyBytes: cfg.MaxBodyBytes,
		deliveryTTL:  cfg.DeliveryTTL,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// NewStoreBackedGuard builds an ingress guard whose idempotency check is
// backed by the delivery ledger. A nil pool disables deduplication.
func NewStoreBackedGuard(verifier Verifier, replayWindow time.Duration, pool *database.Pool, store *Store) *IngressGuard {
	if pool == nil || store == nil {
		return NewIngressGuard(verifier, replayWindow, nil)
	}
	return NewIngressGuard(verifier, replayWindow, func(ctx context.Context, msg IngressMessage) (bool, error) {
		return store.InsertDelivery(ctx, pool, InsertDeliveryParams{
			IdempotencyKey:     msg.IdempotencyKey,
			NotificationID:     msg.Notification.ID,
			Topic:              msg.Notification.Type,
			Action:             msg.Notification.Action,
			ResourceID:         msg.Notification.ResourceID,
			LiveMode:           msg.Notification.LiveMode,
			PayloadFingerprint: msg.PayloadFingerprint,
			CorrelationID:      msg.CorrelationID,
			ExpiresAt:          msg.ExpiresAt,
		})
	})
}

// WithDeliveryStore wires delivery status updates backed by the payments store.
func (h *Handler) WithDeliveryStore(pool *database.Pool, store *Store) *Handler {
	if pool == nil || store == nil {
		h.updateDeliveryStatus = nil
		h.getDelivery = nil
		return h
	}
	h.updateDeliveryStatus = func(ctx context.Context, idempotencyKey, status string) error {
		return store.UpdateDeliveryStatus(ctx, pool, idempotencyKey, status)
	}
	h.getDelivery = func(ctx context.Context, idempotencyKey string) (*Delivery, error) {
		return store.GetDelivery(ctx, pool, idempotencyKey)
	}
	return h
}

// HandleWebhook processes inbound Mercado Pago notifications.
// POST /api/v1/payments/webhook
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.guard == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "payment webhooks are not enabled"})
		return
	}

	now := h.now()
	correlationID := middleware.GetRequestID(r.Context())
	if correlationID == "" {
		correlationID = "payment-" + strconv.FormatInt(now.UnixNano(), 10)
	}

	// The body must be captured byte-for-byte before anything decodes it.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error":          "request body too large",
				"correlation_id": correlationID,
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          "invalid request body",
			"correlation_id": correlationID,
		})
		return
	}

	// Reject unauthenticated traffic before parsing it.
	if err := h.guard.Verify(r.Header, body); err != nil {
		h.recordDecision(r.Context(), IngressRejectedSignature, Notification{}, "", correlationID, err)
		writeIngressError(w, err, correlationID)
		return
	}

	notification, err := ParseNotification(body)
	if err != nil {
		h.recordDecision(r.Context(), IngressInvalidPayload, Notification{}, "", correlationID, err)
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":          "invalid webhook payload",
			"correlation_id": correlationID,
		})
		return
	}

	digest := sha256.Sum256(body)
	fingerprint := hex.EncodeToString(digest[:])
	idempotencyKey := notification.IdempotencyKey(fingerprint)

	result, err := h.guard.Admit(r.Context(), IngressMessage{
		Notification:       notification,
		IdempotencyKey:     idempotencyKey,
		PayloadFingerprint: fingerprint,
		CorrelationID:      correlationID,
		Headers:            r.Header,
		Body:               body,
		ExpiresAt:          now.Add(h.deliveryTTL),
	})
	if err != nil {
		h.logger.Error("payment webhook ingress failed",
			"correlation_id", correlationID,
			"idempotency_key", idempotencyKey,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":          "processing webhook failed",
			"correlation_id": correlationID,
		})
		return
	}

	h.recordDecision(r.Context(), result.Decision, notification, idempotencyKey, correlationID, nil)

	switch result.Decision {
	case IngressAccepted:
		h.dispatch(r.Context(), notification, idempotencyKey, correlationID)
	case IngressDuplicate:
		h.logDuplicate(r.Context(), idempotencyKey, correlationID)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"decision":       string(result.Decision),
		"correlation_id": correlationID,
	})
}

// dispatch hands an accepted notification to the sink and records the outcome.
// Sink failures are not surfaced to the provider; the ledger row keeps them.
func (h *Handler) dispatch(ctx context.Context, n Notification, idempotencyKey, correlationID string) {
	if h.sink == nil {
		return
	}
	status := DeliveryStatusProcessed
	if err := h.sink.HandleNotification(ctx, n); err != nil {
		status = DeliveryStatusFailed
		h.logger.Error("payment notification dispatch failed",
			"correlation_id", correlationID,
			"idempotency_key", idempotencyKey,
			"error", err,
		)
	}
	if h.updateDeliveryStatus == nil {
		return
	}
	if err := h.updateDeliveryStatus(ctx, idempotencyKey, status); err != nil {
		h.logger.Error("updating payment delivery status failed",
			"correlation_id", correlationID,
			"idempotency_key", idempotencyKey,
			"error", err,
		)
	}
}

// logDuplicate reports how the first delivery under the same key ended, so a
// retried delivery whose original failed downstream is visible in the log.
func (h *Handler) logDuplicate(ctx context.Context, idempotencyKey, correlationID string) {
	if h.getDelivery == nil {
		return
	}
	existing, err := h.getDelivery(ctx, idempotencyKey)
	if err != nil {
		h.logger.Warn("looking up duplicate payment delivery failed",
			"correlation_id", correlationID,
			"idempotency_key", idempotencyKey,
			"error", err,
		)
		return
	}
	h.logger.Info("payment webhook duplicate",
		"correlation_id", correlationID,
		"idempotency_key", idempotencyKey,
		"existing_status", existing.Status,
		"first_correlation_id", existing.CorrelationID,
	)
}

func (h *Handler) recordDecision(ctx context.Context, decision IngressDecision, n Notification, idempotencyKey, correlationID string, cause error) {
	h.metrics.observe(decision)

	action, ok := auditActionForDecision(decision)
	if !ok {
		return
	}
	metadata := map[string]any{
		audit.MetadataCorrelationID: correlationID,
		audit.MetadataDecision:      string(decision),
	}
	if idempotencyKey != "" {
		metadata[audit.MetadataIdempotencyKey] = idempotencyKey
	}
	if n.ID != "" {
		metadata[audit.MetadataNotificationID] = n.ID
		metadata[audit.MetadataLiveMode] = n.LiveMode
	}
	if cause != nil {
		metadata[audit.MetadataReason] = cause.Error()
	}
	resourceType := n.Type
	if resourceType == "" {
		resourceType = "payment_notification"
	}
	h.audit.Log(ctx, audit.Event{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   n.ResourceID,
		Metadata:     metadata,
		Source:       auditSource,
	})

	if decision == IngressRejectedSignature {
		h.logger.Warn("payment webhook rejected",
			"correlation_id", correlationID,
			"reason", cause,
		)
	}
}

func auditActionForDecision(decision IngressDecision) (string, bool) {
	switch decision {
	case IngressAccepted:
		return audit.ActionPaymentWebhookAccepted, true
	case IngressDuplicate:
		return audit.ActionPaymentWebhookDuplicate, true
	case IngressReplayBlocked:
		return audit.ActionPaymentWebhookReplayBlocked, true
	case IngressRejectedSignature:
		return audit.ActionPaymentWebhookRejectedSignature, true
	case IngressInvalidPayload:
		return audit.ActionPaymentWebhookInvalidPayload, true
	default:
		return "", false
	}
}

func writeIngressError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, ErrInvalidSignature),
		errors.Is(err, ErrMissingSignature),
		errors.Is(err, ErrInvalidTimestamp),
		errors.Is(err, ErrTimestampExpired):
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":          err.Error(),
			"decision":       string(IngressRejectedSignature),
			"correlation_id": correlationID,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":          "verifying webhook failed",
			"correlation_id": correlationID,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
