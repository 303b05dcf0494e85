package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shutterbox/internal/config"
	"shutterbox/internal/logging"
)

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type proberFunc func(ctx context.Context) error

func (f proberFunc) Probe(ctx context.Context) error { return f(ctx) }

func TestNewProbeLoopDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Connectivity.ProbeInterval = 0
	if p := newProbeLoop(&cfg, proberFunc(func(context.Context) error { return nil }), nil, nil); p != nil {
		t.Fatal("expected nil probe loop when interval is zero")
	}
	cfg.Connectivity.ProbeInterval = 5
	if p := newProbeLoop(&cfg, nil, nil, nil); p != nil {
		t.Fatal("expected nil probe loop without a prober")
	}
	var p *probeLoop
	if p.online() != nil {
		t.Fatal("nil probe loop should report unknown reachability")
	}
}

func TestObserveReportsOnlyOfflineToOnline(t *testing.T) {
	p := &probeLoop{}
	if p.online() != nil {
		t.Fatal("expected unknown state before first probe")
	}
	if p.observe(true) {
		t.Fatal("first successful probe must not count as a transition")
	}
	if p.observe(true) {
		t.Fatal("online to online is not a transition")
	}
	if p.observe(false) {
		t.Fatal("going offline is not a restore")
	}
	if online := p.online(); online == nil || *online {
		t.Fatalf("expected offline state, got %v", online)
	}
	if !p.observe(true) {
		t.Fatal("offline to online must be reported")
	}
	if online := p.online(); online == nil || !*online {
		t.Fatalf("expected online state, got %v", online)
	}
}

func TestProbeLoopNotifiesOnRestore(t *testing.T) {
	var (
		mu   sync.Mutex
		up   bool
		hits []string
	)
	prober := proberFunc(func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if !up {
			return errors.New("unreachable")
		}
		return nil
	})
	p := &probeLoop{
		prober:   prober,
		interval: 10 * time.Millisecond,
		logger:   logging.NewNop(),
		notify: func(source string) {
			mu.Lock()
			hits = append(hits, source)
			mu.Unlock()
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	p.start(ctx, &wg)
	defer func() {
		cancel()
		wg.Wait()
	}()

	waitUntil(t, func() bool {
		online := p.online()
		return online != nil && !*online
	})
	mu.Lock()
	up = true
	mu.Unlock()
	waitUntil(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hits) > 0
	})
	mu.Lock()
	defer mu.Unlock()
	if hits[0] != SourceProbe {
		t.Fatalf("expected probe source, got %v", hits)
	}
}
