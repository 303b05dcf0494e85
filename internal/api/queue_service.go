package api

import (
	"context"

	"shutterbox/internal/queue"
)

// QueueReader abstracts the store reads needed for API queries.
type QueueReader interface {
	ListAll(ctx context.Context) ([]queue.Item, error)
	Stats(ctx context.Context) (queue.Stats, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns pending items oldest first.
func (s *QueueService) List(ctx context.Context) ([]PendingItem, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return FromItems(items), nil
}

// Stats returns the pending backlog summary.
func (s *QueueService) Stats(ctx context.Context) (QueueStats, error) {
	if s == nil || s.store == nil {
		return QueueStats{}, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	return FromStats(stats), nil
}
