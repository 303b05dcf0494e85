package queue

import (
	"context"
	"time"

	"shutterbox/internal/config"
)

// Item is one captured payload waiting for delivery.
type Item struct {
	ID        int64
	CaptureID string
	Payload   []byte
	CreatedAt time.Time
}

// Size reports the payload length in bytes.
func (i Item) Size() int { return len(i.Payload) }

// Stats summarises pending work.
type Stats struct {
	Pending      int
	PayloadBytes int64
	OldestAt     time.Time
}

// DatabaseHealth captures diagnostic information about the backing store.
type DatabaseHealth struct {
	Backend          string
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	IntegrityCheck   bool
	TotalItems       int
	FreeBytes        uint64
	Error            string
}

// Backend is the durable pending-item store contract.
type Backend interface {
	// Put appends a payload and returns its ID once the write is durable.
	Put(ctx context.Context, captureID string, payload []byte) (int64, error)
	// ListAll returns every pending item in insertion order.
	ListAll(ctx context.Context) ([]Item, error)
	// Remove deletes a single delivered item.
	Remove(ctx context.Context, id int64) error
	// ClearThrough deletes every item with ID <= id in one atomic write.
	ClearThrough(ctx context.Context, id int64) (int64, error)
	// Clear deletes every item in one atomic write.
	Clear(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	CheckHealth(ctx context.Context) (DatabaseHealth, error)
	Path() string
	Close() error
}

// Open opens the backend selected by store.backend inside the state directory.
func Open(cfg *config.Config) (Backend, error) {
	if cfg.Store.Backend == config.BackendPebble {
		store, err := OpenPebble(cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := OpenSQLite(cfg)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// limits are the capacity rules applied before each Put.
type limits struct {
	maxItems  int
	maxBytes  int64
	minFreeMB int64
}

func limitsFromConfig(cfg *config.Config) limits {
	return limits{
		maxItems:  cfg.Store.MaxItems,
		maxBytes:  cfg.Store.MaxBytes,
		minFreeMB: cfg.Store.MinFreeMB,
	}
}
