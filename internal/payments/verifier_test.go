package payments_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/medbook/medbook/internal/payments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedHeaders(secret, ts string, body []byte) http.Header {
	headers := make(http.Header)
	headers.Set("X-Signature", "ts="+ts+",v1="+payments.ComputeSignature(secret, ts, body))
	return headers
}

func TestMercadoPagoVerifier_ValidSignature(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 0)

	err := verifier.Verify(signedHeaders(testSecret, testTimestamp, testBody), testBody, time.Now())
	require.NoError(t, err)
}

func TestMercadoPagoVerifier_MissingHeader(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 0)

	err := verifier.Verify(make(http.Header), testBody, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, payments.ErrMissingSignature)
}

func TestMercadoPagoVerifier_InvalidSignature(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 0)
	headers := make(http.Header)
	headers.Set("X-Signature", "ts="+testTimestamp+",v1=deadbeef")

	err := verifier.Verify(headers, testBody, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)
}

func TestMercadoPagoVerifier_IncompleteHeaderIsInvalid(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 0)
	headers := make(http.Header)
	headers.Set("X-Signature", "ts="+testTimestamp)

	err := verifier.Verify(headers, testBody, time.Now())
	assert.ErrorIs(t, err, payments.ErrInvalidSignature)
}

func TestMercadoPagoVerifier_SkewDisabledAcceptsOldTimestamp(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 0)
	now := time.Unix(1700000000, 0).Add(30 * 24 * time.Hour)

	err := verifier.Verify(signedHeaders(testSecret, testTimestamp, testBody), testBody, now)
	require.NoError(t, err)
}

func TestMercadoPagoVerifier_ExpiredTimestamp(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 5*time.Minute)
	now := time.Unix(1700000000, 0)
	oldTS := strconv.FormatInt(now.Add(-10*time.Minute).Unix(), 10)

	err := verifier.Verify(signedHeaders(testSecret, oldTS, testBody), testBody, now)
	require.Error(t, err)
	assert.ErrorIs(t, err, payments.ErrTimestampExpired)
}

func TestMercadoPagoVerifier_FutureTimestamp(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 5*time.Minute)
	now := time.Unix(1700000000, 0)
	futureTS := strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10)

	err := verifier.Verify(signedHeaders(testSecret, futureTS, testBody), testBody, now)
	assert.ErrorIs(t, err, payments.ErrTimestampExpired)
}

func TestMercadoPagoVerifier_MillisecondTimestamp(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 5*time.Minute)
	now := time.UnixMilli(1700000000123)
	ts := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)

	err := verifier.Verify(signedHeaders(testSecret, ts, testBody), testBody, now)
	require.NoError(t, err)
}

func TestMercadoPagoVerifier_NonNumericTimestampWithSkew(t *testing.T) {
	verifier := payments.NewMercadoPagoVerifier(testSecret, 5*time.Minute)

	err := verifier.Verify(signedHeaders(testSecret, "yesterday", testBody), testBody, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, payments.ErrInvalidTimestamp)
}
