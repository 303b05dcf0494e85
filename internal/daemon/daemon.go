package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"shutterbox/internal/config"
	"shutterbox/internal/delivery"
	"shutterbox/internal/logging"
	"shutterbox/internal/metrics"
	"shutterbox/internal/outbox"
	"shutterbox/internal/queue"
)

// ErrNotRunning is returned when a message is sent to a daemon that is not started.
var ErrNotRunning = errors.New("daemon not running")

const inboxSize = 64

// State is the lifecycle state of the daemon.
type State string

const (
	StateInstalling State = "installing"
	StateActivated  State = "activated"
	StateReady      State = "ready"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
)

// Prober checks whether the sink is reachable.
type Prober interface {
	Probe(ctx context.Context) error
}

// Daemon coordinates the actor loop, trigger sources and the single-instance lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   queue.Backend
	outbox  *outbox.Manager
	sink    delivery.Sink
	prober  Prober
	metrics *metrics.Recorder
	logPath string

	lockPath string
	lock     *flock.Flock

	inbox chan Message

	// lifecycle serializes Start and Stop; Stop holds it until the lock is released.
	lifecycle sync.Mutex

	// mu guards state transitions against concurrent sends to inbox.
	mu      sync.RWMutex
	state   State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	actorDone chan struct{}
	tasks     sync.WaitGroup

	netlink   *netlinkMonitor
	probe     *probeLoop
	scheduler *syncScheduler
	api       *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	State        State
	Running      bool
	PID          int
	Flushing     bool
	Online       *bool
	Pending      queue.Stats
	Counters     outbox.Counters
	Backend      string
	AckMode      string
	SinkURL      string
	Schedule     string
	Netlink      bool
	QueueDBPath  string
	LockFilePath string
	APIAddress   string
	LastError    string
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithMetrics exposes rec on the API listener.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(d *Daemon) { d.metrics = rec }
}

// WithProber overrides the reachability prober. By default the sink is used
// when it implements Prober.
func WithProber(p Prober) Option {
	return func(d *Daemon) { d.prober = p }
}

// WithLogPath records the current log file for status output.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store queue.Backend, manager *outbox.Manager, sink delivery.Sink, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || manager == nil || sink == nil {
		return nil, errors.New("daemon requires config, store, outbox manager, and sink")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		outbox:   manager,
		sink:     sink,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		state:    StateInstalling,
	}
	if p, ok := sink.(Prober); ok {
		d.prober = p
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the daemon lock, starts the actor loop and the trigger
// sources, and requests the activation flush.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another shutterbox daemon instance is already running")
	}
	d.state = StateActivated

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.inbox = make(chan Message, inboxSize)
	d.actorDone = make(chan struct{})
	go d.runActor(d.ctx, d.inbox, d.actorDone)

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = api.start(d.ctx)
	}
	if err != nil {
		d.cancel()
		<-d.actorDone
		_ = d.lock.Unlock()
		d.state = StateStopped
		return fmt.Errorf("start api server: %w", err)
	}
	d.api = api

	d.netlink = newNetlinkMonitor(d.cfg, d.logger, d.notifyConnectivity)
	if err := d.netlink.Start(d.ctx); err != nil {
		d.logger.Warn("netlink monitor unavailable", logging.Error(err))
	}
	d.probe = newProbeLoop(d.cfg, d.prober, d.logger, d.notifyConnectivity)
	d.probe.start(d.ctx, &d.tasks)
	d.scheduler = newSyncScheduler(d.cfg.Sync.Schedule, d.logger, d.notifySchedule)
	d.scheduler.start(d.ctx, &d.tasks)

	d.running.Store(true)
	if d.cfg.Sync.FlushOnStart {
		d.enqueueLocked(ConnectivityRestored{Source: SourceActivation})
	}
	d.state = StateReady

	d.logger.Info("shutterbox daemon ready",
		logging.String("lock", d.lockPath),
		logging.String("backend", d.cfg.Store.Backend),
		logging.String("sink", d.cfg.Sink.URL),
		logging.String(logging.FieldEventType, "daemon_ready"),
	)
	return nil
}

// Stop halts the trigger sources, lets in-flight captures finish, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	d.mu.Lock()
	if !d.running.Load() {
		d.mu.Unlock()
		return
	}
	d.running.Store(false)
	d.state = StateStopping
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	d.netlink.Stop()
	if cancel != nil {
		cancel()
	}
	<-d.actorDone
	d.api.stop()
	d.tasks.Wait()

	d.mu.Lock()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.state = StateStopped
	d.mu.Unlock()
	d.logger.Info("shutterbox daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// State reports the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Capture hands payload to the actor and returns the capture ID. It returns
// once the message is accepted; delivery happens in the background.
func (d *Daemon) Capture(ctx context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.New("capture payload is empty")
	}
	id := uuid.NewString()
	msg := NewCapture{CaptureID: id, Payload: payload}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running.Load() {
		return "", ErrNotRunning
	}
	select {
	case d.inbox <- msg:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RequestFlush asks the actor for a flush. A full inbox drops the request;
// a flush already queued or running covers it.
func (d *Daemon) RequestFlush(source string) bool {
	var msg Message = ConnectivityRestored{Source: source}
	if source == SourceSchedule {
		msg = PeriodicSync{}
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.running.Load() {
		return false
	}
	return d.enqueueLocked(msg)
}

func (d *Daemon) enqueueLocked(msg Message) bool {
	select {
	case d.inbox <- msg:
		return true
	default:
		d.logger.Debug("inbox full; dropping trigger", logging.String("message", msg.kind()))
		return false
	}
}

func (d *Daemon) notifyConnectivity(source string) { d.RequestFlush(source) }

func (d *Daemon) notifySchedule() { d.RequestFlush(SourceSchedule) }

// FlushNow runs a flush synchronously for operator commands.
func (d *Daemon) FlushNow(ctx context.Context) (outbox.FlushResult, error) {
	return d.outbox.Flush(ctx)
}

// ListPending returns every pending item.
func (d *Daemon) ListPending(ctx context.Context) ([]queue.Item, error) {
	return d.store.ListAll(ctx)
}

// ClearQueue discards every pending item.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	removed, err := d.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	logging.WarnWithContext(d.logger, "pending queue cleared by operator", "queue_cleared",
		logging.Int64("removed", removed),
		logging.String(logging.FieldImpact, "cleared captures will never be delivered"),
		logging.String(logging.FieldErrorHint, "none; operator action"),
	)
	return removed, nil
}

// QueueStats returns pending counts.
func (d *Daemon) QueueStats(ctx context.Context) (queue.Stats, error) {
	return d.store.Stats(ctx)
}

// DatabaseHealth returns detailed store diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestDelivery posts a tiny probe payload straight to the sink.
func (d *Daemon) TestDelivery(ctx context.Context) (bool, string, error) {
	if err := d.sink.Deliver(ctx, TestPayload); err != nil {
		return false, "sink rejected test payload", err
	}
	return true, "test payload delivered to " + d.cfg.Sink.URL, nil
}

// TestPayload is a 1x1 JPEG used by TestDelivery.
var TestPayload = []byte{
	0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46, 0x00, 0x01,
	0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xff, 0xdb, 0x00, 0x43,
	0x00, 0x08, 0x06, 0x06, 0x07, 0x06, 0x05, 0x08, 0x07, 0x07, 0x07, 0x09,
	0x09, 0x08, 0x0a, 0x0c, 0x14, 0x0d, 0x0c, 0x0b, 0x0b, 0x0c, 0x19, 0x12,
	0x13, 0x0f, 0x14, 0x1d, 0x1a, 0x1f, 0x1e, 0x1d, 0x1a, 0x1c, 0x1c, 0x20,
	0x24, 0x2e, 0x27, 0x20, 0x22, 0x2c, 0x23, 0x1c, 0x1c, 0x28, 0x37, 0x29,
	0x2c, 0x30, 0x31, 0x34, 0x34, 0x34, 0x1f, 0x27, 0x39, 0x3d, 0x38, 0x32,
	0x3c, 0x2e, 0x33, 0x34, 0x32, 0xff, 0xc0, 0x00, 0x0b, 0x08, 0x00, 0x01,
	0x00, 0x01, 0x01, 0x01, 0x11, 0x00, 0xff, 0xc4, 0x00, 0x14, 0x00, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x09, 0xff, 0xc4, 0x00, 0x14, 0x10, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xda, 0x00, 0x08, 0x01, 0x01,
	0x00, 0x00, 0x3f, 0x00, 0x2a, 0x9f, 0xff, 0xd9,
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.RLock()
	state := d.state
	api := d.api
	d.mu.RUnlock()

	status := Status{
		State:        state,
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Flushing:     d.outbox.Flushing(),
		Counters:     d.outbox.Stats(),
		Backend:      d.cfg.Store.Backend,
		AckMode:      d.outbox.AckMode(),
		SinkURL:      d.cfg.Sink.URL,
		Schedule:     d.cfg.Sync.Schedule,
		Netlink:      d.netlink.Running(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		APIAddress:   api.address(),
		Online:       d.probe.online(),
	}
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to read queue stats", logging.Error(err))
		status.LastError = err.Error()
	} else {
		status.Pending = stats
	}
	if status.LastError == "" {
		status.LastError = status.Counters.LastError
	}
	return status
}
