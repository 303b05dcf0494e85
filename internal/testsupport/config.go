package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shutterbox/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options. Background
// triggers (netlink, probing, cron) are disabled so tests drive flushes
// explicitly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.MinFreeMB = 0
	cfgVal.Sync.Schedule = ""
	cfgVal.Sync.FlushOnStart = false
	cfgVal.Connectivity.Netlink = false
	cfgVal.Connectivity.ProbeInterval = 0
	cfgVal.Metrics.Enabled = false
	cfgVal.Relay.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBackend selects the durable store backend.
func WithBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
	}
}

// WithAckMode sets the flush acknowledgement mode.
func WithAckMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.AckMode = mode
	}
}

// WithSinkURL points the delivery client at url.
func WithSinkURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sink.URL = url
	}
}

// WithStoreLimits sets the item and byte capacity of the store.
func WithStoreLimits(maxItems int, maxBytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.MaxItems = maxItems
		b.cfg.Store.MaxBytes = maxBytes
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

// WriteConfigFile serializes cfg as TOML next to its temp directories and
// returns the file path, for commands that load configuration themselves.
func WriteConfigFile(t testing.TB, cfg *config.Config) string {
	t.Helper()

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
