package daemon_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"shutterbox/internal/config"
	"shutterbox/internal/daemon"
	"shutterbox/internal/logging"
	"shutterbox/internal/outbox"
	"shutterbox/internal/queue"
	"shutterbox/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config, sink *testsupport.FakeSink) (*daemon.Daemon, queue.Backend) {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := outbox.New(store, sink, outbox.WithLogger(logger), outbox.WithAckMode(cfg.Store.AckMode))
	d, err := daemon.New(cfg, store, mgr, sink, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg, &testsupport.FakeSink{})

	if d.State() != daemon.StateInstalling {
		t.Fatalf("expected installing before start, got %s", d.State())
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if d.State() != daemon.StateReady {
		t.Fatalf("expected ready after start, got %s", d.State())
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected error on double start")
	}

	status := d.Status(ctx)
	if !status.Running || status.Backend != cfg.Store.Backend || status.APIAddress == "" {
		t.Fatalf("unexpected status %+v", status)
	}

	d.Stop()
	if d.State() != daemon.StateStopped {
		t.Fatalf("expected stopped, got %s", d.State())
	}
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to report not running after stop")
	}
	if _, err := d.Capture(ctx, []byte("late")); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning after stop, got %v", err)
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg, &testsupport.FakeSink{})
	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	second, err := daemon.New(cfg, testsupport.MustOpenStore(t, testsupport.NewConfig(t)),
		outbox.New(testsupport.MustOpenStore(t, testsupport.NewConfig(t)), &testsupport.FakeSink{}),
		&testsupport.FakeSink{}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = second.Start(ctx)
	if err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
	second.Stop()
}

func TestCaptureDeliveredImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := &testsupport.FakeSink{}
	d, store := newDaemon(t, cfg, sink)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	id, err := d.Capture(context.Background(), []byte("A"))
	if err != nil || id == "" {
		t.Fatalf("Capture = (%q, %v)", id, err)
	}
	waitFor(t, "delivery", func() bool { return len(sink.Delivered()) == 1 })
	if got := testsupport.Payloads(t, store); len(got) != 0 {
		t.Fatalf("expected empty store, got %v", got)
	}
}

func TestCaptureQueuedOfflineThenFlushed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := &testsupport.FakeSink{Fail: testsupport.FailAll}
	d, store := newDaemon(t, cfg, sink)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for _, payload := range []string{"A", "B"} {
		if _, err := d.Capture(ctx, []byte(payload)); err != nil {
			t.Fatalf("Capture(%s): %v", payload, err)
		}
		// Captures are processed concurrently; wait for each to land so order is fixed.
		want := payload
		waitFor(t, "queued "+payload, func() bool {
			got := testsupport.Payloads(t, store)
			return len(got) > 0 && got[len(got)-1] == want
		})
	}

	sink.SetFail(nil)
	if !d.RequestFlush(daemon.SourceManual) {
		t.Fatal("flush request rejected")
	}
	waitFor(t, "flush", func() bool { return len(testsupport.Payloads(t, store)) == 0 })
	delivered := sink.Delivered()
	if strings.Join(delivered, ",") != "A,B" {
		t.Fatalf("expected A,B delivered in order, got %v", delivered)
	}

	status := d.Status(ctx)
	if status.Counters.Queued != 2 || status.Counters.Flushes == 0 {
		t.Fatalf("unexpected counters %+v", status.Counters)
	}
}

func TestActivationFlushDrainsBacklog(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sync.FlushOnStart = true
	sink := &testsupport.FakeSink{}
	d, store := newDaemon(t, cfg, sink)
	testsupport.MustPut(t, store, "left-over")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "activation flush", func() bool { return len(testsupport.Payloads(t, store)) == 0 })
	if got := sink.Delivered(); len(got) != 1 || got[0] != "left-over" {
		t.Fatalf("unexpected deliveries %v", got)
	}
}

func TestStopFinishesAcceptedCaptures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := &testsupport.FakeSink{Fail: testsupport.FailAll}
	d, store := newDaemon(t, cfg, sink)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := d.Capture(ctx, []byte("X")); err != nil {
			t.Fatalf("Capture: %v", err)
		}
	}
	d.Stop()
	if got := testsupport.Payloads(t, store); len(got) != 5 {
		t.Fatalf("expected 5 captures persisted before stop returned, got %d", len(got))
	}
}

func TestStartWaitsForStopInProgress(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := &testsupport.FakeSink{Block: make(chan struct{})}
	d, _ := newDaemon(t, cfg, sink)
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := d.Capture(ctx, []byte("slow")); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	waitFor(t, "stopping state", func() bool { return d.State() == daemon.StateStopping })

	restarted := make(chan error, 1)
	go func() { restarted <- d.Start(ctx) }()
	select {
	case err := <-restarted:
		t.Fatalf("Start returned while Stop was still draining: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(sink.Block)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	select {
	case err := <-restarted:
		if err != nil {
			t.Fatalf("Start after Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
	if d.State() != daemon.StateReady || !d.Status(ctx).Running {
		t.Fatalf("expected restarted daemon to be ready, got %s", d.State())
	}

	other := flock.New(cfg.LockPath())
	ok, err := other.TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if ok {
		_ = other.Unlock()
		t.Fatal("daemon lock was released while the restarted daemon is running")
	}
}

func TestOperatorHelpers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := &testsupport.FakeSink{}
	d, store := newDaemon(t, cfg, sink)
	ctx := context.Background()
	testsupport.MustPut(t, store, "A")
	testsupport.MustPut(t, store, "B")

	items, err := d.ListPending(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("ListPending = (%d, %v)", len(items), err)
	}
	health, err := d.DatabaseHealth(ctx)
	if err != nil || !health.IntegrityCheck {
		t.Fatalf("DatabaseHealth = (%+v, %v)", health, err)
	}
	removed, err := d.ClearQueue(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("ClearQueue = (%d, %v)", removed, err)
	}

	ok, _, err := d.TestDelivery(ctx)
	if !ok || err != nil {
		t.Fatalf("TestDelivery = (%v, %v)", ok, err)
	}
	if got := sink.Delivered(); len(got) != 1 || got[0] != string(daemon.TestPayload) {
		t.Fatalf("expected test payload delivered, got %d deliveries", len(got))
	}
	if got := testsupport.Payloads(t, store); len(got) != 0 {
		t.Fatalf("test delivery must not touch the store, got %v", got)
	}

	testsupport.MustPut(t, store, "C")
	result, err := d.FlushNow(ctx)
	if err != nil || result.Delivered != 1 {
		t.Fatalf("FlushNow = (%+v, %v)", result, err)
	}
}
