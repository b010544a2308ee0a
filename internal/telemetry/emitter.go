package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mofasaz/aegisai-web/internal/metrics"
)

const (
	// DefaultBuffer is the queue length used when none is given.
	DefaultBuffer = 256
	writeTimeout  = 5 * time.Second
)

// Emitter queues rows for a background worker that writes them to every
// sink. Emit never blocks: when the queue is full the row is dropped and
// counted.
type Emitter struct {
	sinks  []Sink
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan Row
	done   chan struct{}
}

// NewEmitter starts the worker. A zero or negative buffer uses DefaultBuffer.
func NewEmitter(logger *zap.Logger, buffer int, sinks ...Sink) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	e := &Emitter{
		sinks:  sinks,
		logger: logger,
		ch:     make(chan Row, buffer),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit enqueues row. Rows emitted after Close are dropped.
func (e *Emitter) Emit(row Row) {
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		metrics.TelemetryDropped.Inc()
		return
	}
	select {
	case e.ch <- row:
	default:
		metrics.TelemetryDropped.Inc()
		e.logger.Warn("telemetry queue full, row dropped",
			zap.String("kind", string(row.Kind)),
			zap.String("correlation_id", row.CorrelationID),
		)
	}
}

func (e *Emitter) run() {
	defer close(e.done)
	for row := range e.ch {
		for _, s := range e.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := s.Write(ctx, row)
			cancel()
			if err != nil {
				metrics.TelemetryFailures.WithLabelValues(s.Name()).Inc()
				e.logger.Warn("telemetry sink write failed",
					zap.String("sink", s.Name()),
					zap.String("kind", string(row.Kind)),
					zap.String("correlation_id", row.CorrelationID),
					zap.Error(err),
				)
			}
		}
	}
}

// Close stops accepting rows, drains the queue and closes the sinks.
// It returns early with ctx's error if draining takes too long.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	var firstErr error
	for _, s := range e.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LogSink writes rows to a zap logger.
type LogSink struct {
	Logger *zap.Logger
}

func (LogSink) Name() string { return "log" }

func (s LogSink) Write(_ context.Context, row Row) error {
	s.Logger.Info("telemetry",
		zap.String("kind", string(row.Kind)),
		zap.Time("ts", row.Timestamp),
		zap.String("correlation_id", row.CorrelationID),
		zap.String("user_id", row.UserID),
		zap.String("reasons", row.Reasons),
		zap.Int("risk_score", row.RiskScore),
		zap.String("event_id", row.EventID),
	)
	return nil
}

func (LogSink) Close() error { return nil }
