package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/adhocore/gronx"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSink(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateRelay(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case BackendSQLite, BackendPebble:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendSQLite, BackendPebble, c.Store.Backend)
	}
	switch c.Store.AckMode {
	case AckModeItem, AckModeBatch:
	default:
		return fmt.Errorf("store.ack_mode must be %q or %q, got %q", AckModeItem, AckModeBatch, c.Store.AckMode)
	}
	if c.Store.MaxItems < 0 {
		return errors.New("store.max_items must be >= 0")
	}
	if c.Store.MaxBytes < 0 {
		return errors.New("store.max_bytes must be >= 0")
	}
	if c.Store.MinFreeMB < 0 {
		return errors.New("store.min_free_mb must be >= 0")
	}
	return nil
}

func (c *Config) validateSink() error {
	parsed, err := url.Parse(c.Sink.URL)
	if err != nil {
		return fmt.Errorf("sink.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("sink.url must use http or https, got %q", c.Sink.URL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("sink.url must include a host, got %q", c.Sink.URL)
	}
	return ensurePositiveMap(map[string]int{
		"sink.request_timeout": c.Sink.RequestTimeout,
	})
}

func (c *Config) validateSync() error {
	if c.Sync.Schedule == "" {
		return nil
	}
	if !gronx.IsValid(c.Sync.Schedule) {
		return fmt.Errorf("sync.schedule is not a valid cron expression: %q", c.Sync.Schedule)
	}
	return nil
}

func (c *Config) validateRelay() error {
	if c.Relay.RatePerSecond < 0 {
		return errors.New("relay.rate_per_second must be >= 0")
	}
	if !strings.HasPrefix(c.Relay.APIBaseURL, "http://") && !strings.HasPrefix(c.Relay.APIBaseURL, "https://") {
		return fmt.Errorf("relay.api_base_url must use http or https, got %q", c.Relay.APIBaseURL)
	}
	return ensurePositiveMap(map[string]int{
		"relay.request_timeout": c.Relay.RequestTimeout,
		"relay.burst":           c.Relay.Burst,
		"relay.max_upload_mb":   c.Relay.MaxUploadMB,
	})
}

// ValidateRelayCredentials reports whether the relay can reach the messaging API.
// It is checked only when the relay is started, so the daemon alone never needs credentials.
func (c *Config) ValidateRelayCredentials() error {
	if c.Relay.BotToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/shutterbox/config.toml"
		}
		return fmt.Errorf("relay.bot_token is required. Set TELEGRAM_BOT_TOKEN env var or edit %s (create with 'shutterbox config init')", defaultPath)
	}
	if c.Relay.ChatID == "" {
		return errors.New("relay.chat_id is required. Set TELEGRAM_CHAT_ID env var or relay.chat_id")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
