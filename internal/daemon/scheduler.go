package daemon

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"shutterbox/internal/logging"
)

// syncScheduler emits PeriodicSync on every tick of a cron expression.
type syncScheduler struct {
	expr   string
	logger *slog.Logger
	tick   func()
	now    func() time.Time
}

// newSyncScheduler returns nil for an empty expression.
func newSyncScheduler(expr string, logger *slog.Logger, tick func()) *syncScheduler {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	return &syncScheduler{
		expr:   expr,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		tick:   tick,
		now:    time.Now,
	}
}

func (s *syncScheduler) start(ctx context.Context, wg *sync.WaitGroup) {
	if s == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx)
	}()
	s.logger.Info("periodic sync scheduled",
		logging.String("schedule", s.expr),
		logging.String(logging.FieldEventType, "sync_scheduled"),
	)
}

// run sleeps until each next tick computed by gronx. A failed computation
// backs off for 30s and retries.
func (s *syncScheduler) run(ctx context.Context) {
	for {
		next, err := s.next()
		if err != nil {
			logging.WarnWithContext(s.logger, "cannot compute next sync tick", "sync_nexttick_failed",
				logging.String("schedule", s.expr),
				logging.Error(err),
				logging.String(logging.FieldImpact, "periodic sync delayed"),
				logging.String(logging.FieldErrorHint, "check sync.schedule"),
			)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.logger.Debug("periodic sync tick", logging.Time("scheduled_for", next))
			if s.tick != nil {
				s.tick()
			}
		}
	}
}

func (s *syncScheduler) next() (time.Time, error) {
	return gronx.NextTickAfter(s.expr, s.now().UTC(), false)
}
