package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shutterbox/internal/config"
	"shutterbox/internal/logging"
)

type reachability int

const (
	reachUnknown reachability = iota
	reachOffline
	reachOnline
)

// probeLoop polls the sink host and reports an offline to online transition
// as ConnectivityRestored.
type probeLoop struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger
	notify   func(source string)

	mu    sync.Mutex
	state reachability
}

// newProbeLoop returns nil when probing is disabled.
func newProbeLoop(cfg *config.Config, prober Prober, logger *slog.Logger, notify func(source string)) *probeLoop {
	if cfg == nil || prober == nil {
		return nil
	}
	interval := cfg.ProbeInterval()
	if interval <= 0 {
		return nil
	}
	return &probeLoop{
		prober:   prober,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "connectivity"),
		notify:   notify,
	}
}

func (p *probeLoop) start(ctx context.Context, wg *sync.WaitGroup) {
	if p == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		p.check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.check(ctx)
			}
		}
	}()
}

func (p *probeLoop) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	err := p.prober.Probe(probeCtx)
	if ctx.Err() != nil {
		return
	}
	if p.observe(err == nil) {
		p.logger.Info("sink reachable again",
			logging.String(logging.FieldEventType, "connectivity_restored"),
		)
		if p.notify != nil {
			p.notify(SourceProbe)
		}
		return
	}
	if err != nil {
		p.logger.Debug("sink unreachable", logging.Error(err))
	}
}

// observe records a probe result and reports whether it was an offline to
// online transition. The first successful probe is not a transition.
func (p *probeLoop) observe(ok bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.state
	if ok {
		p.state = reachOnline
		return prev == reachOffline
	}
	p.state = reachOffline
	return false
}

// online reports the last probe result, or nil before the first probe.
func (p *probeLoop) online() *bool {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == reachUnknown {
		return nil
	}
	v := p.state == reachOnline
	return &v
}
