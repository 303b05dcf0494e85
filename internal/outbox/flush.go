package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shutterbox/internal/config"
	"shutterbox/internal/delivery"
	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
)

// FlushStop records where a flush pass stopped. Transient is set when the sink
// failure looks like it will clear without operator action.
type FlushStop struct {
	ItemID    int64
	CaptureID string
	Err       error
	Transient bool
}

// FlushResult summarises one flush pass.
type FlushResult struct {
	Snapshot  int
	Attempted int
	Delivered int
	// Acked counts snapshot items removed from the store. In batch mode it
	// stays zero until the whole snapshot is delivered.
	Acked    int
	Cleared  int64
	Stopped  *FlushStop
	Duration time.Duration
}

// Remaining reports how many snapshot items are still pending after the pass.
func (r FlushResult) Remaining() int {
	return r.Snapshot - r.Acked
}

func transient(err error) bool {
	var failure *delivery.Failure
	if errors.As(err, &failure) {
		return failure.Transient()
	}
	return false
}

// Flush delivers pending items in order and stops at the first failure.
//
// A concurrent call returns ErrFlushInProgress without touching the store or
// the sink. A delivery failure is returned wrapped (matching
// delivery.ErrDeliveryFailed) together with a populated result; store failures
// wrap queue.ErrStorage.
func (m *Manager) Flush(ctx context.Context) (FlushResult, error) {
	if !m.flushing.CompareAndSwap(false, true) {
		m.metrics.Flush("skipped")
		m.logger.Debug("flush skipped; another flush is running",
			logging.String(logging.FieldEventType, "flush_skipped"),
		)
		return FlushResult{}, ErrFlushInProgress
	}
	defer m.flushing.Store(false)

	start := time.Now()
	result, err := m.flush(ctx)
	result.Duration = time.Since(start)

	m.record(func(c *Counters) {
		c.Flushes++
		c.FlushAttempts += int64(result.Attempted)
		c.Delivered += int64(result.Delivered)
		c.LastFlushAt = start
		if err != nil {
			c.FlushFailures++
		}
	})
	m.setLastError(err)
	return result, err
}

func (m *Manager) flush(ctx context.Context) (FlushResult, error) {
	var result FlushResult

	items, err := m.store.ListAll(ctx)
	if err != nil {
		m.countStorageError(err)
		m.metrics.Flush("error")
		logging.ErrorWithContext(m.logger, "flush could not read pending items", "flush_list_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run shutterbox queue health"),
		)
		return result, fmt.Errorf("list pending items: %w", err)
	}
	result.Snapshot = len(items)
	if len(items) == 0 {
		m.metrics.Flush("empty")
		m.logger.Debug("flush found nothing pending", logging.String(logging.FieldEventType, "flush_empty"))
		return result, nil
	}

	m.logger.Info("flush started",
		logging.Int("pending", len(items)),
		logging.String("ack_mode", m.ackMode),
		logging.String(logging.FieldEventType, "flush_started"),
	)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			result.Stopped = &FlushStop{ItemID: item.ID, CaptureID: item.CaptureID, Err: err}
			m.metrics.Flush("stopped")
			return result, fmt.Errorf("flush interrupted before item %d: %w", item.ID, err)
		}

		itemLogger := logging.WithContext(logging.WithCaptureID(ctx, item.CaptureID), m.logger).
			With(logging.Int64(logging.FieldItemID, item.ID))

		result.Attempted++
		deliverErr := m.sink.Deliver(ctx, item.Payload)
		m.metrics.DeliveryAttempt(metrics.PathFlush, deliverErr == nil)
		if deliverErr != nil {
			result.Stopped = &FlushStop{
				ItemID:    item.ID,
				CaptureID: item.CaptureID,
				Err:       deliverErr,
				Transient: transient(deliverErr),
			}
			m.metrics.Flush("stopped")
			logging.WarnWithContext(itemLogger, "flush stopped; sink rejected item", "flush_stopped",
				logging.Error(deliverErr),
				logging.Int("delivered", result.Delivered),
				logging.Int("remaining", result.Remaining()),
				logging.Bool("transient", result.Stopped.Transient),
				logging.String(logging.FieldErrorHint, "the next connectivity or scheduled trigger retries from this item"),
				logging.String(logging.FieldImpact, "remaining items stay queued"),
			)
			return result, fmt.Errorf("flush stopped at item %d: %w", item.ID, deliverErr)
		}
		result.Delivered++
		itemLogger.Debug("pending item delivered",
			logging.Bytes(len(item.Payload)),
			logging.String(logging.FieldEventType, "item_delivered"),
		)

		if m.ackMode == config.AckModeItem {
			if err := m.store.Remove(ctx, item.ID); err != nil {
				m.countStorageError(err)
				m.metrics.Flush("error")
				result.Stopped = &FlushStop{ItemID: item.ID, CaptureID: item.CaptureID, Err: err}
				logging.ErrorWithContext(itemLogger, "delivered item could not be removed; it will be sent again", "ack_failed",
					logging.Error(err),
				)
				return result, fmt.Errorf("acknowledge item %d: %w", item.ID, err)
			}
			result.Acked++
		}
	}

	lastID := items[len(items)-1].ID
	cleared, err := m.store.ClearThrough(ctx, lastID)
	if err != nil {
		m.countStorageError(err)
		m.metrics.Flush("error")
		logging.ErrorWithContext(m.logger, "delivered items could not be cleared; they will be sent again", "flush_clear_failed",
			logging.Int64("through_id", lastID),
			logging.Error(err),
		)
		return result, fmt.Errorf("clear through item %d: %w", lastID, err)
	}
	result.Cleared = cleared
	result.Acked = result.Snapshot

	m.metrics.Flush("drained")
	m.logger.Info("flush drained pending items",
		logging.Int("delivered", result.Delivered),
		logging.String(logging.FieldEventType, "flush_drained"),
	)
	return result, nil
}
