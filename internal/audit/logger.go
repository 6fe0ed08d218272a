package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/medbook/medbook/internal/platform/database"
)

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 50
	defaultFlushInterval = time.Second
	flushTimeout         = 5 * time.Second
)

// LoggerConfig configures the async audit logger.
type LoggerConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
	Metrics       *Metrics
}

// AsyncLogger implements Logger. Events are queued on Log and written in
// batches by a single goroutine, either when a batch fills or when
// FlushInterval passes without one filling.
type AsyncLogger struct {
	queue   chan Event
	store   *Store
	db      database.Querier
	cfg     LoggerConfig
	logger  *slog.Logger
	metrics *Metrics

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewAsyncLogger creates and starts an async audit logger.
func NewAsyncLogger(db database.Querier, store *Store, cfg LoggerConfig) *AsyncLogger {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &AsyncLogger{
		queue:   make(chan Event, cfg.BufferSize),
		store:   store,
		db:      db,
		cfg:     cfg,
		logger:  logger.With("component", "audit"),
		metrics: cfg.Metrics,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

// Log queues an event. It never blocks the request path: when the queue is
// full the event is dropped and counted.
func (l *AsyncLogger) Log(_ context.Context, event Event) {
	select {
	case l.queue <- event:
	default:
		l.metrics.eventDropped()
		l.logger.Warn("audit queue full, event dropped", "action", event.Action)
	}
}

// Close stops the writer after it has persisted everything queued so far.
// It is safe to call more than once.
func (l *AsyncLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stop)
		<-l.done
	})
	return nil
}

func (l *AsyncLogger) run() {
	defer close(l.done)

	timer := time.NewTimer(l.cfg.FlushInterval)
	defer timer.Stop()

	pending := make([]Event, 0, l.cfg.BatchSize)
	write := func() {
		l.write(pending)
		pending = pending[:0]
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(l.cfg.FlushInterval)
	}

	for {
		select {
		case e := <-l.queue:
			pending = append(pending, e)
			if len(pending) >= l.cfg.BatchSize {
				write()
			}
		case <-timer.C:
			l.write(pending)
			pending = pending[:0]
			timer.Reset(l.cfg.FlushInterval)
		case <-l.stop:
			for {
				select {
				case e := <-l.queue:
					pending = append(pending, e)
					if len(pending) >= l.cfg.BatchSize {
						l.write(pending)
						pending = pending[:0]
					}
				default:
					l.write(pending)
					return
				}
			}
		}
	}
}

func (l *AsyncLogger) write(events []Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := l.store.InsertBatch(ctx, l.db, events); err != nil {
		l.metrics.flushFailed()
		l.logger.Error("audit batch write failed", "error", err, "events", len(events))
		return
	}
	l.metrics.eventsWritten(len(events))
}
