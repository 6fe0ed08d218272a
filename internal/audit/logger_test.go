package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDB implements database.Querier for testing. When release is set, Exec
// signals entered and waits for release before recording the batch.
type mockDB struct {
	mu      sync.Mutex
	count   int
	rows    int
	err     error
	entered chan struct{}
	release chan struct{}
}

func (m *mockDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	if m.release != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return pgconn.CommandTag{}, m.err
	}
	m.count++
	m.rows += len(args) / 5
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDB) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	return nil
}

func (m *mockDB) snapshot() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, m.rows
}

func TestAsyncLogger_FlushesOnInterval(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    100,
		BatchSize:     10,
		FlushInterval: 20 * time.Millisecond,
	})

	logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})

	assert.Eventually(t, func() bool {
		inserts, _ := db.snapshot()
		return inserts >= 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, logger.Close())
}

func TestAsyncLogger_FlushesOnBatchSize(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    100,
		BatchSize:     3,
		FlushInterval: 10 * time.Second,
	})

	for i := 0; i < 3; i++ {
		logger.Log(context.Background(), Event{Action: ActionPaymentWebhookDuplicate, Source: "test"})
	}

	assert.Eventually(t, func() bool {
		_, rows := db.snapshot()
		return rows == 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, logger.Close())
}

func TestAsyncLogger_CloseFlushesPending(t *testing.T) {
	db := &mockDB{}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    100,
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
	})

	logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})
	logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})

	require.NoError(t, logger.Close())
	_, rows := db.snapshot()
	assert.Equal(t, 2, rows)
}

func TestAsyncLogger_DropsWhenBufferFull(t *testing.T) {
	db := &mockDB{entered: make(chan struct{}, 4), release: make(chan struct{})}
	metrics := NewMetrics(prometheus.NewRegistry())
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    1,
		BatchSize:     1,
		FlushInterval: 10 * time.Second,
		Metrics:       metrics,
		Logger:        slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	})

	logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})
	// The writer now holds the first event inside Exec.
	<-db.entered

	for i := 0; i < 4; i++ {
		logger.Log(context.Background(), Event{Action: ActionPaymentWebhookDuplicate, Source: "test"})
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.dropped))

	close(db.release)
	require.NoError(t, logger.Close())

	_, rows := db.snapshot()
	assert.Equal(t, 2, rows)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.written))
	assert.Zero(t, testutil.ToFloat64(metrics.flushFailures))
}

func TestAsyncLogger_CountsFailedWrites(t *testing.T) {
	db := &mockDB{err: errors.New("connection reset")}
	metrics := NewMetrics(prometheus.NewRegistry())
	var logs bytes.Buffer
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize:    10,
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
		Metrics:       metrics,
		Logger:        slog.New(slog.NewJSONHandler(&logs, nil)),
	})

	logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})
	logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})
	require.NoError(t, logger.Close())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.flushFailures))
	assert.Zero(t, testutil.ToFloat64(metrics.written))
	assert.Contains(t, logs.String(), "audit batch write failed")
	assert.Contains(t, logs.String(), `"component":"audit"`)
	assert.Contains(t, logs.String(), `"events":2`)
}

func TestAsyncLogger_CloseIsIdempotent(t *testing.T) {
	logger := NewAsyncLogger(&mockDB{}, NewStore(), LoggerConfig{})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
}

func TestAsyncLogger_NilMetricsIsSafe(t *testing.T) {
	db := &mockDB{err: errors.New("boom")}
	logger := NewAsyncLogger(db, NewStore(), LoggerConfig{
		BufferSize: 1,
		BatchSize:  1,
		Logger:     slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	})
	for i := 0; i < 5; i++ {
		logger.Log(context.Background(), Event{Action: ActionPaymentWebhookAccepted, Source: "test"})
	}
	require.NoError(t, logger.Close())
}
