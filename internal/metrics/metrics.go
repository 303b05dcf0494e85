// Package metrics exposes shutterbox counters in the Prometheus text format.
//
// All collectors live on a private registry so tests can build as many
// recorders as they like. Every method is safe on a nil *Recorder, which
// is how callers disable metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shutterbox"

// Delivery paths label where an attempt came from.
const (
	PathSubmit = "submit"
	PathFlush  = "flush"
)

// Recorder owns the registry and every shutterbox collector.
type Recorder struct {
	registry         *prometheus.Registry
	captures         *prometheus.CounterVec
	deliveryAttempts *prometheus.CounterVec
	flushes          *prometheus.CounterVec
	storageErrors    *prometheus.CounterVec
	relayForwards    *prometheus.CounterVec

	pendingOnce sync.Once
}

// New builds a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Captures handled by the outbox, by outcome.",
		}, []string{"outcome"}),
		deliveryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_attempts_total",
			Help:      "Delivery attempts against the sink, by result and path.",
		}, []string{"result", "path"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Flush passes, by result.",
		}, []string{"result"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Durable store failures, by operation.",
		}, []string{"op"}),
		relayForwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_forwards_total",
			Help:      "Relay forwards to the messaging API, by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.captures,
		r.deliveryAttempts,
		r.flushes,
		r.storageErrors,
		r.relayForwards,
	)
	return r
}

// Registry exposes the underlying registry for tests and custom collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Capture counts one submit outcome (delivered, queued, lost).
func (r *Recorder) Capture(outcome string) {
	if r == nil {
		return
	}
	r.captures.WithLabelValues(outcome).Inc()
}

// DeliveryAttempt counts one sink attempt.
func (r *Recorder) DeliveryAttempt(path string, ok bool) {
	if r == nil {
		return
	}
	r.deliveryAttempts.WithLabelValues(resultLabel(ok), path).Inc()
}

// Flush counts one flush pass. result is one of drained, stopped, empty, skipped, error.
func (r *Recorder) Flush(result string) {
	if r == nil {
		return
	}
	r.flushes.WithLabelValues(result).Inc()
}

// StorageError counts one store failure for op.
func (r *Recorder) StorageError(op string) {
	if r == nil {
		return
	}
	r.storageErrors.WithLabelValues(op).Inc()
}

// RelayForward counts one relay request outcome.
func (r *Recorder) RelayForward(result string) {
	if r == nil {
		return
	}
	r.relayForwards.WithLabelValues(result).Inc()
}

// RegisterPending installs the pending_items gauge backed by fn. Only the
// first call has an effect.
func (r *Recorder) RegisterPending(fn func() float64) {
	if r == nil || fn == nil {
		return
	}
	r.pendingOnce.Do(func() {
		r.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_items",
			Help:      "Items waiting in the durable store.",
		}, fn))
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
