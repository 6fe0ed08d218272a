package payments

import (
	"context"
	"net/http"
	"time"
)

// IngressDecision represents the disposition of an inbound webhook delivery.
type IngressDecision string

const (
	IngressAccepted          IngressDecision = "accepted"
	IngressDuplicate         IngressDecision = "duplicate"
	IngressReplayBlocked     IngressDecision = "replay_blocked"
	IngressRejectedSignature IngressDecision = "rejected_signature"
	// IngressInvalidPayload is recorded by the handler when a verified body
	// cannot be decoded. The guard itself never returns it.
	IngressInvalidPayload IngressDecision = "invalid_payload"
)

// IngressMessage is the normalized inbound webhook delivery.
type IngressMessage struct {
	Notification       Notification
	IdempotencyKey     string
	PayloadFingerprint string
	CorrelationID      string
	Headers            http.Header
	Body               []byte
	ExpiresAt          time.Time
}

// IngressResult captures the ingress decision for one delivery.
type IngressResult struct {
	Decision IngressDecision
}

type deliveryInserter func(ctx context.Context, msg IngressMessage) (bool, error)

// IngressGuard enforces the webhook security pipeline before a notification
// is acted on.
type IngressGuard struct {
	verifier       Verifier
	replayWindow   time.Duration
	insertDelivery deliveryInserter
	now            func() time.Time
}

// NewIngressGuard constructs an ingress guard. insertDelivery may be nil, in
// which case every verified delivery is treated as first seen.
func NewIngressGuard(verifier Verifier, replayWindow time.Duration, insertDelivery deliveryInserter) *IngressGuard {
	return &IngressGuard{
		verifier:       verifier,
		replayWindow:   replayWindow,
		insertDelivery: insertDelivery,
		now:            time.Now,
	}
}

// Verify runs only the signature check.
func (g *IngressGuard) Verify(headers http.Header, body []byte) error {
	return g.verifier.Verify(headers, body, g.now())
}

// Process executes the ingress checks in order:
// signature verification -> replay window -> idempotency.
func (g *IngressGuard) Process(ctx context.Context, msg IngressMessage) (IngressResult, error) {
	if err := g.Verify(msg.Headers, msg.Body); err != nil {
		return IngressResult{Decision: IngressRejectedSignature}, err
	}
	return g.Admit(ctx, msg)
}

// Admit runs the replay window and idempotency checks for a delivery whose
// signature has already been verified.
func (g *IngressGuard) Admit(ctx context.Context, msg IngressMessage) (IngressResult, error) {
	occurredAt := msg.Notification.DateCreated
	if g.replayWindow > 0 && !occurredAt.IsZero() {
		if g.now().Sub(occurredAt) > g.replayWindow {
			return IngressResult{Decision: IngressReplayBlocked}, nil
		}
	}

	if g.insertDelivery == nil {
		return IngressResult{Decision: IngressAccepted}, nil
	}
	firstSeen, err := g.insertDelivery(ctx, msg)
	if err != nil {
		return IngressResult{}, err
	}
	if !firstSeen {
		return IngressResult{Decision: IngressDuplicate}, nil
	}
	return IngressResult{Decision: IngressAccepted}, nil
}
