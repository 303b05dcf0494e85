package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"shutterbox/internal/delivery"
	"shutterbox/internal/logging"
	"shutterbox/internal/outbox"
	"shutterbox/internal/queue"
)

// runActor dispatches inbox messages until ctx ends, then hands any captures
// still buffered to the outbox so accepted images are not dropped on shutdown.
func (d *Daemon) runActor(ctx context.Context, inbox <-chan Message, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			d.drain(inbox)
			return
		case msg := <-inbox:
			d.dispatch(ctx, msg)
		}
	}
}

func (d *Daemon) drain(inbox <-chan Message) {
	for {
		select {
		case msg := <-inbox:
			if capture, ok := msg.(NewCapture); ok {
				d.spawn("submit", func() { d.submit(context.Background(), capture) })
			}
		default:
			return
		}
	}
}

func (d *Daemon) dispatch(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case NewCapture:
		// A capture accepted before shutdown must still reach the sink or the store.
		submitCtx := context.WithoutCancel(ctx)
		d.spawn("submit", func() { d.submit(submitCtx, m) })
	case ConnectivityRestored:
		d.spawn("flush", func() { d.flush(ctx, m.Source) })
	case PeriodicSync:
		d.spawn("flush", func() { d.flush(ctx, SourceSchedule) })
	default:
		d.logger.Warn("unknown actor message ignored", logging.String("type", fmt.Sprintf("%T", msg)))
	}
}

// spawn runs fn as a tracked task and turns panics into error logs.
func (d *Daemon) spawn(name string, fn func()) {
	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(d.logger, "daemon task panicked", "task_panic",
					logging.String("task", name),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn()
	}()
}

func (d *Daemon) submit(ctx context.Context, msg NewCapture) {
	ctx = logging.WithCaptureID(ctx, msg.CaptureID)
	_, err := d.outbox.Submit(ctx, outbox.Capture{ID: msg.CaptureID, Payload: msg.Payload})
	if err == nil {
		return
	}
	logger := logging.WithContext(ctx, d.logger)
	if errors.Is(err, queue.ErrStorage) {
		logging.ErrorWithContext(logger, "capture marked lost", "capture_lost",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run shutterbox queue health"),
		)
		return
	}
	logging.ErrorWithContext(logger, "capture submit failed", "capture_submit_failed", logging.Error(err))
}

func (d *Daemon) flush(ctx context.Context, source string) {
	logger := d.logger.With(logging.String(logging.FieldTrigger, source))
	result, err := d.outbox.Flush(ctx)
	switch {
	case err == nil:
		if result.Snapshot > 0 {
			logger.Info("triggered flush complete",
				logging.Int("delivered", result.Delivered),
				logging.Duration("duration", result.Duration),
				logging.String(logging.FieldEventType, "flush_complete"),
			)
		}
	case errors.Is(err, outbox.ErrFlushInProgress):
		logger.Debug("flush already running; trigger coalesced")
	case errors.Is(err, delivery.ErrDeliveryFailed):
		attrs := []logging.Attr{
			logging.Int("delivered", result.Delivered),
			logging.Int("remaining", result.Remaining()),
			logging.Error(err),
			logging.String(logging.FieldEventType, "flush_paused"),
		}
		if result.Stopped != nil && !result.Stopped.Transient {
			// 4xx responses do not clear on their own.
			attrs = append(attrs, logging.String(logging.FieldErrorHint, "check sink.url and the sink logs"))
			logger.Warn("flush paused; sink rejected the request", logging.Args(attrs...)...)
			return
		}
		logger.Info("flush paused until next trigger", logging.Args(attrs...)...)
	case errors.Is(err, context.Canceled):
		logger.Debug("flush interrupted by shutdown")
	default:
		logging.ErrorWithContext(logger, "flush failed", "flush_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run shutterbox queue health"),
		)
	}
}
