package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shutterbox/internal/daemon"
	"shutterbox/internal/ipc"
	"shutterbox/internal/logging"
	"shutterbox/internal/outbox"
	"shutterbox/internal/testsupport"
)

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	sink := &testsupport.FakeSink{Fail: testsupport.FailAll}
	logger := logging.NewNop()
	logPath := filepath.Join(cfg.Paths.LogDir, "ipc-test.log")
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		t.Fatalf("mkdir logs: %v", err)
	}
	mgr := outbox.New(store, sink, outbox.WithLogger(logger))
	d, err := daemon.New(cfg, store, mgr, sink, logger, daemon.WithLogPath(logPath))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	shutdown := make(chan struct{})
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger, ipc.WithShutdown(func() { close(shutdown) }))
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.LogPath != logPath || status.State != string(daemon.StateReady) {
		t.Fatalf("unexpected status %+v", status)
	}

	// The sink is down, so both captures end up in the store.
	for _, payload := range []string{"A", "B"} {
		resp, err := client.Capture(payload+".jpg", []byte(payload))
		if err != nil {
			t.Fatalf("Capture RPC failed: %v", err)
		}
		if resp.CaptureID == "" || resp.Bytes != 1 {
			t.Fatalf("unexpected capture response %+v", resp)
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for len(testsupport.Payloads(t, store)) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("captures were not queued")
		}
		time.Sleep(10 * time.Millisecond)
	}

	listResp, err := client.QueueList()
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Items) != 2 {
		t.Fatalf("expected 2 queue items, got %d", len(listResp.Items))
	}

	healthResp, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if !strings.HasSuffix(healthResp.DBPath, "queue.db") || healthResp.Queue.Pending != 2 || !healthResp.IntegrityCheck {
		t.Fatalf("unexpected health response %+v", healthResp)
	}

	flushResp, err := client.Flush(false)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if flushResp.Error == "" || flushResp.Remaining != 2 {
		t.Fatalf("expected failed flush with 2 remaining, got %+v", flushResp)
	}

	sink.SetFail(nil)
	flushResp, err = client.Flush(false)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if flushResp.Delivered != 2 || flushResp.Remaining != 0 {
		t.Fatalf("expected 2 delivered, got %+v", flushResp)
	}

	testResp, err := client.TestDelivery()
	if err != nil {
		t.Fatalf("TestDelivery failed: %v", err)
	}
	if !testResp.Delivered || testResp.Message == "" {
		t.Fatalf("unexpected test delivery response %+v", testResp)
	}

	testsupport.MustPut(t, store, "C")
	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 1 {
		t.Fatalf("expected 1 item cleared, got %d", clearResp.Removed)
	}

	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}
	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail failed: %v", err)
	}
	if strings.Join(logResp.Lines, ",") != "second,third" {
		t.Fatalf("unexpected log tail response %#v", logResp.Lines)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}
	select {
	case <-shutdown:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown hook not invoked")
	}

	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if _, err := client.Capture("late.jpg", []byte("late")); err == nil {
		t.Fatal("expected capture to fail once stopped")
	}
}
