package queueaccess

import (
	"context"

	"github.com/google/uuid"

	"shutterbox/internal/api"
	"shutterbox/internal/ipc"
	"shutterbox/internal/queue"
)

// Access provides pending-item operations regardless of IPC or direct store backing.
type Access interface {
	// Live reports whether a running daemon is serving the calls.
	Live() bool
	Capture(ctx context.Context, name string, payload []byte) (CaptureResult, error)
	List(ctx context.Context) ([]api.PendingItem, error)
	Stats(ctx context.Context) (api.QueueStats, error)
	Clear(ctx context.Context) (int64, error)
	Health(ctx context.Context) (ipc.QueueHealthResponse, error)
}

// CaptureResult describes where an accepted capture went. Without a daemon
// the capture is written straight to the store and ItemID is set.
type CaptureResult struct {
	CaptureID string
	Bytes     int
	ItemID    int64
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct store access.
func NewStoreAccess(store queue.Backend) Access {
	return &storeAccess{store: store, service: api.NewQueueService(store)}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Live() bool { return true }

func (a *ipcAccess) Capture(_ context.Context, name string, payload []byte) (CaptureResult, error) {
	resp, err := a.client.Capture(name, payload)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{CaptureID: resp.CaptureID, Bytes: resp.Bytes}, nil
}

func (a *ipcAccess) List(_ context.Context) ([]api.PendingItem, error) {
	resp, err := a.client.QueueList()
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (a *ipcAccess) Stats(_ context.Context) (api.QueueStats, error) {
	resp, err := a.client.Status()
	if err != nil {
		return api.QueueStats{}, err
	}
	return resp.Queue, nil
}

func (a *ipcAccess) Clear(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear()
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Health(_ context.Context) (ipc.QueueHealthResponse, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return ipc.QueueHealthResponse{}, err
	}
	return *resp, nil
}

type storeAccess struct {
	store   queue.Backend
	service *api.QueueService
}

func (a *storeAccess) Live() bool { return false }

func (a *storeAccess) Capture(ctx context.Context, _ string, payload []byte) (CaptureResult, error) {
	captureID := uuid.NewString()
	id, err := a.store.Put(ctx, captureID, payload)
	if err != nil {
		return CaptureResult{}, err
	}
	return CaptureResult{CaptureID: captureID, Bytes: len(payload), ItemID: id}, nil
}

func (a *storeAccess) List(ctx context.Context) ([]api.PendingItem, error) {
	return a.service.List(ctx)
}

func (a *storeAccess) Stats(ctx context.Context) (api.QueueStats, error) {
	return a.service.Stats(ctx)
}

func (a *storeAccess) Clear(ctx context.Context) (int64, error) {
	return a.store.Clear(ctx)
}

func (a *storeAccess) Health(ctx context.Context) (ipc.QueueHealthResponse, error) {
	h, err := a.store.CheckHealth(ctx)
	health := ipc.QueueHealthResponse{
		Backend:          h.Backend,
		DBPath:           h.DBPath,
		DatabaseExists:   h.DatabaseExists,
		DatabaseReadable: h.DatabaseReadable,
		SchemaVersion:    h.SchemaVersion,
		IntegrityCheck:   h.IntegrityCheck,
		TotalItems:       h.TotalItems,
		FreeBytes:        h.FreeBytes,
		Error:            h.Error,
	}
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	if stats, statsErr := a.service.Stats(ctx); statsErr == nil {
		health.Queue = stats
	}
	return health, nil
}
