package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeSink()
	c.normalizeSync()
	c.normalizeConnectivity()
	c.normalizeRelay()
	c.normalizeMetrics()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir()
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		c.Paths.APIToken = strings.TrimSpace(os.Getenv("SHUTTERBOX_API_TOKEN"))
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	c.Store.AckMode = strings.ToLower(strings.TrimSpace(c.Store.AckMode))
	if c.Store.AckMode == "" {
		c.Store.AckMode = defaultAckMode
	}
}

func (c *Config) normalizeSink() {
	c.Sink.URL = strings.TrimSpace(c.Sink.URL)
	if value, ok := os.LookupEnv("SHUTTERBOX_SINK_URL"); ok && strings.TrimSpace(value) != "" {
		c.Sink.URL = strings.TrimSpace(value)
	}
	if c.Sink.URL == "" {
		c.Sink.URL = defaultSinkURL
	}
	c.Sink.FieldName = strings.TrimSpace(c.Sink.FieldName)
	if c.Sink.FieldName == "" {
		c.Sink.FieldName = defaultSinkFieldName
	}
	c.Sink.FileName = strings.TrimSpace(c.Sink.FileName)
	if c.Sink.FileName == "" {
		c.Sink.FileName = defaultSinkFileName
	}
	if c.Sink.RequestTimeout <= 0 {
		c.Sink.RequestTimeout = defaultSinkRequestTimeout
	}
	c.Sink.UserAgent = strings.TrimSpace(c.Sink.UserAgent)
	if c.Sink.UserAgent == "" {
		c.Sink.UserAgent = defaultSinkUserAgent
	}
}

func (c *Config) normalizeSync() {
	c.Sync.Schedule = strings.TrimSpace(c.Sync.Schedule)
}

func (c *Config) normalizeConnectivity() {
	if c.Connectivity.ProbeInterval < 0 {
		c.Connectivity.ProbeInterval = 0
	}
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)
	if c.Connectivity.ProbeAddress == "" {
		c.Connectivity.ProbeAddress = hostPortFromURL(c.Sink.URL)
	}
}

func (c *Config) normalizeRelay() {
	c.Relay.Bind = strings.TrimSpace(c.Relay.Bind)
	if c.Relay.Bind == "" {
		c.Relay.Bind = defaultRelayBind
	}
	c.Relay.BotToken = strings.TrimSpace(c.Relay.BotToken)
	if c.Relay.BotToken == "" {
		if value, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
			c.Relay.BotToken = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("BOT_TOKEN"); ok {
			c.Relay.BotToken = strings.TrimSpace(value)
		}
	}
	c.Relay.ChatID = strings.TrimSpace(c.Relay.ChatID)
	if c.Relay.ChatID == "" {
		if value, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
			c.Relay.ChatID = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("CHAT_ID"); ok {
			c.Relay.ChatID = strings.TrimSpace(value)
		}
	}
	c.Relay.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.Relay.APIBaseURL), "/")
	if c.Relay.APIBaseURL == "" {
		c.Relay.APIBaseURL = defaultRelayAPIBaseURL
	}
	if c.Relay.RequestTimeout <= 0 {
		c.Relay.RequestTimeout = defaultRelayRequestTimeout
	}
	if c.Relay.Burst <= 0 {
		c.Relay.Burst = defaultRelayBurst
	}
	if c.Relay.MaxUploadMB <= 0 {
		c.Relay.MaxUploadMB = defaultRelayMaxUploadMB
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Path = strings.TrimSpace(c.Metrics.Path)
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		c.Metrics.Path = "/" + c.Metrics.Path
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

// hostPortFromURL derives a dialable host:port from an http(s) URL.
func hostPortFromURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return ""
	}
	if parsed.Port() != "" {
		return parsed.Host
	}
	switch parsed.Scheme {
	case "https":
		return net.JoinHostPort(parsed.Hostname(), "443")
	default:
		return net.JoinHostPort(parsed.Hostname(), "80")
	}
}
