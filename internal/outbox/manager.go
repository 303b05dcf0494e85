package outbox

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"shutterbox/internal/config"
	"shutterbox/internal/delivery"
	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
	"shutterbox/internal/queue"
)

// ErrFlushInProgress is returned when Flush is called while another flush runs.
// Callers treat it as a no-op.
var ErrFlushInProgress = errors.New("flush already in progress")

// Manager coordinates submit and flush over a store and a sink.
type Manager struct {
	store   queue.Backend
	sink    delivery.Sink
	logger  *slog.Logger
	metrics *metrics.Recorder
	ackMode string

	flushing atomic.Bool

	mu       sync.Mutex
	counters Counters
}

// Option configures optional Manager behavior.
type Option func(*Manager)

// WithLogger sets the logger; the component attribute is added by New.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics records outcomes on rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(m *Manager) {
		m.metrics = rec
	}
}

// WithAckMode selects config.AckModeItem or config.AckModeBatch.
func WithAckMode(mode string) Option {
	return func(m *Manager) {
		m.ackMode = mode
	}
}

// New constructs a manager. The default acknowledgement mode is per item.
func New(store queue.Backend, sink delivery.Sink, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		sink:    sink,
		ackMode: config.AckModeItem,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.ackMode != config.AckModeBatch {
		m.ackMode = config.AckModeItem
	}
	m.logger = logging.NewComponentLogger(m.logger, "outbox")
	if m.metrics != nil {
		m.metrics.RegisterPending(m.pendingGauge)
	}
	return m
}

// AckMode reports the acknowledgement mode in effect.
func (m *Manager) AckMode() string { return m.ackMode }

// Flushing reports whether a flush is currently running.
func (m *Manager) Flushing() bool { return m.flushing.Load() }

func (m *Manager) pendingGauge() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return -1
	}
	return float64(stats.Pending)
}
