package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// PendingItem describes a stored capture in a transport-friendly format.
type PendingItem struct {
	ID        int64  `json:"id"`
	CaptureID string `json:"captureId,omitempty"`
	Bytes     int    `json:"bytes"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// QueueStats summarises the pending backlog.
type QueueStats struct {
	Pending      int    `json:"pending"`
	PayloadBytes int64  `json:"payloadBytes"`
	OldestAt     string `json:"oldestAt,omitempty"`
}

// OutboxCounters mirrors outbox.Counters.
type OutboxCounters struct {
	Submitted     int64  `json:"submitted"`
	Delivered     int64  `json:"delivered"`
	Queued        int64  `json:"queued"`
	Lost          int64  `json:"lost"`
	Flushes       int64  `json:"flushes"`
	FlushFailures int64  `json:"flushFailures"`
	LastFlushAt   string `json:"lastFlushAt,omitempty"`
	LastError     string `json:"lastError,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	State        string         `json:"state"`
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Flushing     bool           `json:"flushing"`
	Online       *bool          `json:"online,omitempty"`
	Backend      string         `json:"backend"`
	AckMode      string         `json:"ackMode"`
	SinkURL      string         `json:"sinkUrl"`
	Schedule     string         `json:"schedule,omitempty"`
	Netlink      bool           `json:"netlink"`
	QueueDBPath  string         `json:"queueDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Queue        QueueStats     `json:"queue"`
	Outbox       OutboxCounters `json:"outbox"`
	LastError    string         `json:"lastError,omitempty"`
}

// QueueListResponse wraps a collection of pending items.
type QueueListResponse struct {
	Items []PendingItem `json:"items"`
}

// CaptureResponse acknowledges an accepted capture.
type CaptureResponse struct {
	CaptureID string `json:"captureId"`
	Bytes     int    `json:"bytes"`
}

// FlushResponse reports a synchronous flush.
type FlushResponse struct {
	Delivered int    `json:"delivered"`
	Remaining int    `json:"remaining"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
