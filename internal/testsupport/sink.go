package testsupport

import (
	"context"
	"errors"
	"sync"
)

// ErrSinkDown is returned by FakeSink when it rejects a payload.
var ErrSinkDown = errors.New("fake sink down")

// FakeSink records deliveries in memory. Fail decides per payload whether the
// delivery fails; a nil Fail accepts everything.
type FakeSink struct {
	mu        sync.Mutex
	Fail      func(payload []byte) bool
	attempts  [][]byte
	delivered [][]byte
	// Block, when set, is received from before each attempt completes.
	Block chan struct{}
}

// Deliver implements delivery.Sink.
func (f *FakeSink) Deliver(ctx context.Context, payload []byte) error {
	if f.Block != nil {
		select {
		case <-f.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := append([]byte(nil), payload...)
	f.attempts = append(f.attempts, copied)
	if f.Fail != nil && f.Fail(payload) {
		return ErrSinkDown
	}
	f.delivered = append(f.delivered, copied)
	return nil
}

// SetFail replaces the failure predicate.
func (f *FakeSink) SetFail(fn func(payload []byte) bool) {
	f.mu.Lock()
	f.Fail = fn
	f.mu.Unlock()
}

// Attempts returns every payload offered to the sink, in order.
func (f *FakeSink) Attempts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return toStrings(f.attempts)
}

// Delivered returns the payloads the sink accepted, in order.
func (f *FakeSink) Delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return toStrings(f.delivered)
}

// FailAll rejects every payload.
func FailAll([]byte) bool { return true }

// FailOn rejects exactly the given payload.
func FailOn(target string) func([]byte) bool {
	return func(payload []byte) bool { return string(payload) == target }
}

func toStrings(in [][]byte) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		out = append(out, string(b))
	}
	return out
}
