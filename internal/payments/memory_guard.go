package payments

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const defaultMemoryDedupSize = 10_000

// NewMemoryBackedGuard builds an ingress guard that deduplicates against an
// in-process LRU of the most recent idempotency keys. It is used when no
// database is configured; keys do not survive a restart and the oldest are
// evicted once size is reached.
func NewMemoryBackedGuard(verifier Verifier, replayWindow time.Duration, size int) (*IngressGuard, error) {
	if size <= 0 {
		size = defaultMemoryDedupSize
	}
	seen, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("creating delivery cache: %w", err)
	}
	return NewIngressGuard(verifier, replayWindow, func(_ context.Context, msg IngressMessage) (bool, error) {
		if msg.IdempotencyKey == "" {
			return false, ErrIdempotencyKey
		}
		found, _ := seen.ContainsOrAdd(msg.IdempotencyKey, struct{}{})
		return !found, nil
	}), nil
}
