package payments

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Verifier validates incoming webhook authenticity for a payment provider.
type Verifier interface {
	Verify(headers http.Header, body []byte, now time.Time) error
}

var (
	ErrMissingSignature = errors.New("signature header is required")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidTimestamp = errors.New("invalid signature timestamp")
	ErrTimestampExpired = errors.New("signature timestamp outside allowed skew")
)

const (
	mercadoPagoSignatureHeader = "X-Signature"

	// Timestamps above this are treated as unix milliseconds.
	millisecondTimestampFloor = 1_000_000_000_000
)

// MercadoPagoVerifier verifies Mercado Pago webhook signatures.
type MercadoPagoVerifier struct {
	secret  string
	maxSkew time.Duration
}

// NewMercadoPagoVerifier creates a Mercado Pago signature verifier.
// A zero maxSkew disables the timestamp freshness check.
func NewMercadoPagoVerifier(secret string, maxSkew time.Duration) *MercadoPagoVerifier {
	if maxSkew < 0 {
		maxSkew = 0
	}
	return &MercadoPagoVerifier{
		secret:  secret,
		maxSkew: maxSkew,
	}
}

// Verify validates the X-Signature header against the raw request body.
func (v *MercadoPagoVerifier) Verify(headers http.Header, body []byte, now time.Time) error {
	header := headers.Get(mercadoPagoSignatureHeader)
	if header == "" {
		return ErrMissingSignature
	}
	if !VerifySignature(header, body, v.secret) {
		return ErrInvalidSignature
	}
	if v.maxSkew == 0 {
		return nil
	}

	signedAt, err := parseSignatureTimestamp(ParseSignatureHeader(header).Timestamp.Value)
	if err != nil {
		return err
	}
	if now.Sub(signedAt) > v.maxSkew || signedAt.Sub(now) > v.maxSkew {
		return ErrTimestampExpired
	}
	return nil
}

func parseSignatureTimestamp(raw string) (time.Time, error) {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTimestamp, err)
	}
	if ts >= millisecondTimestampFloor {
		return time.UnixMilli(ts), nil
	}
	return time.Unix(ts, 0), nil
}
