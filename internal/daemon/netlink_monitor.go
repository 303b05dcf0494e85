package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"shutterbox/internal/config"
	"shutterbox/internal/logging"
)

// netlinkMonitor listens for kernel uevents on network interfaces and reports
// them as connectivity hints. A new or changed interface is a cheap signal
// that a flush is worth trying; the flush itself decides whether the sink is
// reachable.
type netlinkMonitor struct {
	logger  *slog.Logger
	handler func(source string)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// newNetlinkMonitor returns nil when netlink monitoring is disabled.
func newNetlinkMonitor(cfg *config.Config, logger *slog.Logger, handler func(source string)) *netlinkMonitor {
	if cfg == nil || !cfg.Connectivity.Netlink {
		return nil
	}
	return &netlinkMonitor{
		logger:  logging.NewComponentLogger(logger, "netlink-monitor"),
		handler: handler,
	}
}

// Start begins listening for udev netlink events.
func (m *netlinkMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; connectivity will rely on probing and schedule",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets or set connectivity.netlink = false"),
			logging.String(logging.FieldImpact, "interface changes do not trigger an immediate flush"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("netlink monitor started",
		logging.String(logging.FieldEventType, "netlink_monitor_started"),
	)
	return nil
}

// Stop shuts down the netlink monitor.
func (m *netlinkMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// Running reports whether the netlink monitor is active.
func (m *netlinkMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *netlinkMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "connectivity hints may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=net with ACTION add, change, online or move.
// go-udev compiles the action as a regexp, so it is anchored to keep "move"
// from matching "remove".
func (m *netlinkMonitor) buildMatcher() netlink.Matcher {
	action := "^(add|change|online|move)$"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^net$",
		},
	})
	return rules
}

func (m *netlinkMonitor) handleEvent(uevent netlink.UEvent) {
	iface := interfaceName(uevent)
	if iface == "" || iface == "lo" {
		m.logger.Debug("ignoring uevent without usable interface",
			logging.String("action", string(uevent.Action)),
			logging.String("kobj", uevent.KObj),
		)
		return
	}

	m.logger.Info("network interface event",
		logging.String(logging.FieldEventType, "netlink_interface_event"),
		logging.String("interface", iface),
		logging.String("action", string(uevent.Action)),
	)
	if m.handler != nil {
		m.handler(SourceNetlink)
	}
}

func interfaceName(uevent netlink.UEvent) string {
	if name := uevent.Env["INTERFACE"]; name != "" {
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		devpath = uevent.KObj
	}
	for i := len(devpath) - 1; i >= 0; i-- {
		if devpath[i] == '/' {
			return devpath[i+1:]
		}
	}
	return devpath
}
