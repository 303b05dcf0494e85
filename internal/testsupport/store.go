package testsupport

import (
	"context"
	"testing"

	"shutterbox/internal/config"
	"shutterbox/internal/queue"
)

// MustOpenStore opens the configured queue backend for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) queue.Backend {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustPut stores payload and returns its ID.
func MustPut(t testing.TB, store queue.Backend, payload string) int64 {
	t.Helper()

	id, err := store.Put(context.Background(), "", []byte(payload))
	if err != nil {
		t.Fatalf("store.Put: %v", err)
	}
	return id
}

// Payloads lists the stored payloads in order as strings.
func Payloads(t testing.TB, store queue.Backend) []string {
	t.Helper()

	items, err := store.ListAll(context.Background())
	if err != nil {
		t.Fatalf("store.ListAll: %v", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, string(item.Payload))
	}
	return out
}
