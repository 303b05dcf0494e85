package api

import (
	"time"

	"shutterbox/internal/outbox"
	"shutterbox/internal/queue"
)

// FromItem converts a stored item to its API representation.
func FromItem(item queue.Item) PendingItem {
	return PendingItem{
		ID:        item.ID,
		CaptureID: item.CaptureID,
		Bytes:     item.Size(),
		CreatedAt: formatTime(item.CreatedAt),
	}
}

// FromItems converts a list of stored items.
func FromItems(items []queue.Item) []PendingItem {
	out := make([]PendingItem, 0, len(items))
	for _, item := range items {
		out = append(out, FromItem(item))
	}
	return out
}

// FromStats converts store statistics.
func FromStats(stats queue.Stats) QueueStats {
	return QueueStats{
		Pending:      stats.Pending,
		PayloadBytes: stats.PayloadBytes,
		OldestAt:     formatTime(stats.OldestAt),
	}
}

// FromCounters converts outbox counters.
func FromCounters(c outbox.Counters) OutboxCounters {
	return OutboxCounters{
		Submitted:     c.Submitted,
		Delivered:     c.Delivered,
		Queued:        c.Queued,
		Lost:          c.Lost,
		Flushes:       c.Flushes,
		FlushFailures: c.FlushFailures,
		LastFlushAt:   formatTime(c.LastFlushAt),
		LastError:     c.LastError,
	}
}

// FromFlushResult converts a flush outcome and its error.
func FromFlushResult(res outbox.FlushResult, err error) FlushResponse {
	resp := FlushResponse{Delivered: res.Delivered, Remaining: res.Remaining()}
	switch {
	case err == nil:
	case err == outbox.ErrFlushInProgress:
		resp.Skipped = true
	default:
		resp.Error = err.Error()
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
