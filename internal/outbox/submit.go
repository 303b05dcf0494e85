package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
	"shutterbox/internal/queue"
)

// Outcome is the final state of one submitted capture.
type Outcome string

const (
	// OutcomeDelivered means the sink accepted the payload on the first attempt.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeQueued means delivery failed and the payload is in the store.
	OutcomeQueued Outcome = "queued"
	// OutcomeLost means delivery failed and so did the store write.
	OutcomeLost Outcome = "lost"
)

// Capture is one image handed to the manager.
type Capture struct {
	ID      string
	Payload []byte
}

// SubmitResult describes what happened to a capture.
type SubmitResult struct {
	CaptureID   string
	Outcome     Outcome
	ItemID      int64
	DeliveryErr error
}

// Submit delivers the capture or persists it for a later flush. The returned
// error is non-nil only for OutcomeLost and wraps the store's StorageError.
func (m *Manager) Submit(ctx context.Context, capture Capture) (SubmitResult, error) {
	if capture.ID == "" {
		capture.ID = uuid.NewString()
	}
	ctx = logging.WithCaptureID(ctx, capture.ID)
	logger := logging.WithContext(ctx, m.logger)
	result := SubmitResult{CaptureID: capture.ID}
	m.record(func(c *Counters) { c.Submitted++ })

	deliverErr := m.sink.Deliver(ctx, capture.Payload)
	m.metrics.DeliveryAttempt(metrics.PathSubmit, deliverErr == nil)
	if deliverErr == nil {
		result.Outcome = OutcomeDelivered
		m.record(func(c *Counters) { c.Delivered++ })
		m.metrics.Capture(string(OutcomeDelivered))
		logger.Info("capture delivered",
			logging.Bytes(len(capture.Payload)),
			logging.String(logging.FieldEventType, "capture_delivered"),
		)
		return result, nil
	}
	result.DeliveryErr = deliverErr

	id, putErr := m.store.Put(ctx, capture.ID, capture.Payload)
	if putErr != nil {
		result.Outcome = OutcomeLost
		m.record(func(c *Counters) { c.Lost++ })
		m.metrics.Capture(string(OutcomeLost))
		m.countStorageError(putErr)
		m.setLastError(putErr)
		logging.ErrorWithContext(logger, "capture lost; delivery and storage both failed", "capture_lost",
			logging.Bytes(len(capture.Payload)),
			logging.String("delivery_error", deliverErr.Error()),
			logging.Error(putErr),
			logging.String(logging.FieldErrorHint, "check free space and store limits in [store]"),
		)
		return result, fmt.Errorf("persist capture %s: %w", capture.ID, putErr)
	}

	result.Outcome = OutcomeQueued
	result.ItemID = id
	m.record(func(c *Counters) { c.Queued++ })
	m.metrics.Capture(string(OutcomeQueued))
	logger.Info("capture queued for later delivery",
		logging.Int64(logging.FieldItemID, id),
		logging.Bytes(len(capture.Payload)),
		logging.String("reason", deliverErr.Error()),
		logging.String(logging.FieldEventType, "capture_queued"),
	)
	return result, nil
}

func (m *Manager) countStorageError(err error) {
	var storageErr *queue.StorageError
	if errors.As(err, &storageErr) {
		m.metrics.StorageError(storageErr.Op)
		return
	}
	m.metrics.StorageError("unknown")
}
