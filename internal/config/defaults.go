package config

const (
	defaultStateDirFallback    = "~/.local/share/shutterbox"
	defaultLogDir              = "~/.local/share/shutterbox/logs"
	defaultAPIBind             = "127.0.0.1:7488"
	defaultStoreBackend        = BackendSQLite
	defaultAckMode             = AckModeItem
	defaultMinFreeMB           = 64
	defaultSinkURL             = "http://127.0.0.1:3000/send"
	defaultSinkFieldName       = "photo"
	defaultSinkFileName        = "photo.jpg"
	defaultSinkRequestTimeout  = 15
	defaultSinkUserAgent       = "shutterbox/0.1"
	defaultSyncSchedule        = "*/5 * * * *"
	defaultProbeInterval       = 30
	defaultRelayBind           = "127.0.0.1:3000"
	defaultRelayAPIBaseURL     = "https://api.telegram.org"
	defaultRelayRequestTimeout = 30
	defaultRelayRatePerSecond  = 1
	defaultRelayBurst          = 3
	defaultRelayMaxUploadMB    = 20
	defaultMetricsPath         = "/metrics"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// Acknowledgement modes for flush.
const (
	// AckModeItem removes each item right after its successful delivery.
	AckModeItem = "item"
	// AckModeBatch keeps every item until the whole flush pass succeeded.
	AckModeBatch = "batch"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir(),
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Store: Store{
			Backend:   defaultStoreBackend,
			AckMode:   defaultAckMode,
			MinFreeMB: defaultMinFreeMB,
		},
		Sink: Sink{
			URL:            defaultSinkURL,
			FieldName:      defaultSinkFieldName,
			FileName:       defaultSinkFileName,
			RequestTimeout: defaultSinkRequestTimeout,
			UserAgent:      defaultSinkUserAgent,
		},
		Sync: Sync{
			Schedule:     defaultSyncSchedule,
			FlushOnStart: true,
		},
		Connectivity: Connectivity{
			Netlink:       true,
			ProbeInterval: defaultProbeInterval,
		},
		Relay: Relay{
			Bind:           defaultRelayBind,
			APIBaseURL:     defaultRelayAPIBaseURL,
			RequestTimeout: defaultRelayRequestTimeout,
			RatePerSecond:  defaultRelayRatePerSecond,
			Burst:          defaultRelayBurst,
			MaxUploadMB:    defaultRelayMaxUploadMB,
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
