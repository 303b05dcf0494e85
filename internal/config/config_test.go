package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shutterbox/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("SHUTTERBOX_SINK_URL", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "shutterbox")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Paths.LogDir != filepath.Join(wantState, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Store.Backend != config.BackendSQLite {
		t.Fatalf("expected sqlite backend by default, got %q", cfg.Store.Backend)
	}
	if cfg.Store.AckMode != config.AckModeItem {
		t.Fatalf("expected item ack mode by default, got %q", cfg.Store.AckMode)
	}
	if cfg.Sink.URL != "http://127.0.0.1:3000/send" {
		t.Fatalf("unexpected sink url: %q", cfg.Sink.URL)
	}
	if cfg.Sink.FieldName != "photo" || cfg.Sink.FileName != "photo.jpg" {
		t.Fatalf("unexpected multipart shape: field=%q file=%q", cfg.Sink.FieldName, cfg.Sink.FileName)
	}
	if cfg.Connectivity.ProbeAddress != "127.0.0.1:3000" {
		t.Fatalf("expected probe address derived from sink url, got %q", cfg.Connectivity.ProbeAddress)
	}
	if !cfg.Sync.FlushOnStart {
		t.Fatal("expected flush on start enabled by default")
	}
	if cfg.SocketPath() != filepath.Join(wantState, "shutterbox.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StateDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "shutterbox.toml")
	t.Setenv("SHUTTERBOX_SINK_URL", "")

	type payload struct {
		Store struct {
			Backend string `toml:"backend"`
			AckMode string `toml:"ack_mode"`
		} `toml:"store"`
		Sink struct {
			URL            string `toml:"url"`
			RequestTimeout int    `toml:"request_timeout"`
		} `toml:"sink"`
		Sync struct {
			Schedule string `toml:"schedule"`
		} `toml:"sync"`
	}
	custom := payload{}
	custom.Store.Backend = "Pebble"
	custom.Store.AckMode = "batch"
	custom.Sink.URL = "https://relay.example.com/send"
	custom.Sink.RequestTimeout = 3
	custom.Sync.Schedule = "0 * * * *"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Store.Backend != config.BackendPebble {
		t.Fatalf("expected backend normalized to pebble, got %q", cfg.Store.Backend)
	}
	if cfg.Store.AckMode != config.AckModeBatch {
		t.Fatalf("expected batch ack mode, got %q", cfg.Store.AckMode)
	}
	if cfg.Sink.URL != "https://relay.example.com/send" {
		t.Fatalf("unexpected sink url: %q", cfg.Sink.URL)
	}
	if cfg.Connectivity.ProbeAddress != "relay.example.com:443" {
		t.Fatalf("expected https default port in probe address, got %q", cfg.Connectivity.ProbeAddress)
	}
	if cfg.SinkTimeout().Seconds() != 3 {
		t.Fatalf("unexpected sink timeout: %s", cfg.SinkTimeout())
	}
	if cfg.Sync.Schedule != "0 * * * *" {
		t.Fatalf("unexpected schedule: %q", cfg.Sync.Schedule)
	}
}

func TestEnvFallbacksForRelayCredentials(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("SHUTTERBOX_SINK_URL", "http://10.0.0.5:3000/send")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Relay.BotToken != "env-token" {
		t.Errorf("expected bot token from env, got %q", cfg.Relay.BotToken)
	}
	if cfg.Relay.ChatID != "42" {
		t.Errorf("expected chat id from env, got %q", cfg.Relay.ChatID)
	}
	if cfg.Sink.URL != "http://10.0.0.5:3000/send" {
		t.Errorf("expected sink url from env, got %q", cfg.Sink.URL)
	}
	if err := cfg.ValidateRelayCredentials(); err != nil {
		t.Errorf("expected relay credentials to validate, got %v", err)
	}
}

func TestValidateRelayCredentialsRequiresToken(t *testing.T) {
	cfg := config.Default()
	cfg.Relay.ChatID = "1"
	if err := cfg.ValidateRelayCredentials(); err == nil {
		t.Fatal("expected error when bot token missing")
	}
	cfg.Relay.BotToken = "token"
	cfg.Relay.ChatID = ""
	if err := cfg.ValidateRelayCredentials(); err == nil {
		t.Fatal("expected error when chat id missing")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "TELEGRAM_BOT_TOKEN") {
		t.Fatalf("sample config missing credential hint: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Sink.FieldName != "photo" {
		t.Fatalf("expected sample field name photo, got %q", cfg.Sink.FieldName)
	}
	if !strings.Contains(cfg.Paths.StateDir, "shutterbox") {
		t.Fatalf("expected state dir to contain shutterbox, got %q", cfg.Paths.StateDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "bolt"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg = config.Default()
	cfg.Store.AckMode = "never"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown ack mode")
	}

	cfg = config.Default()
	cfg.Sink.URL = "ftp://example.com/send"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http sink url")
	}

	cfg = config.Default()
	cfg.Sink.RequestTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive sink timeout")
	}

	cfg = config.Default()
	cfg.Sync.Schedule = "every five minutes"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}

	cfg = config.Default()
	cfg.Store.MaxItems = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative max items")
	}

	cfg = config.Default()
	cfg.Sync.Schedule = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected empty schedule to be accepted, got %v", err)
	}
}
