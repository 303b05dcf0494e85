package ipc

import "shutterbox/internal/api"

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "Shutterbox"

// StartRequest asks a stopped daemon to start.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the daemon and ends the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the API status plus process-local details.
type StatusResponse struct {
	api.DaemonStatus
	LogPath    string `json:"logPath"`
	APIAddress string `json:"apiAddress,omitempty"`
}

// CaptureRequest carries one image.
type CaptureRequest struct {
	Name    string `json:"name,omitempty"`
	Payload []byte `json:"payload"`
}

// CaptureResponse acknowledges an accepted capture.
type CaptureResponse = api.CaptureResponse

// FlushRequest runs a flush. Async queues it on the actor instead of waiting.
type FlushRequest struct {
	Async bool `json:"async"`
}

// FlushResponse reports a synchronous flush or an accepted async request.
type FlushResponse struct {
	api.FlushResponse
	Queued bool `json:"queued,omitempty"`
}

// QueueListRequest lists pending items.
type QueueListRequest struct{}

// QueueListResponse contains pending items oldest first.
type QueueListResponse = api.QueueListResponse

// QueueClearRequest removes all items.
type QueueClearRequest struct{}

// QueueClearResponse reports number of removed entries.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueHealthRequest fetches store diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports store health and backlog.
type QueueHealthResponse struct {
	Backend          string         `json:"backend"`
	DBPath           string         `json:"dbPath"`
	DatabaseExists   bool           `json:"databaseExists"`
	DatabaseReadable bool           `json:"databaseReadable"`
	SchemaVersion    string         `json:"schemaVersion"`
	IntegrityCheck   bool           `json:"integrityCheck"`
	TotalItems       int            `json:"totalItems"`
	FreeBytes        uint64         `json:"freeBytes"`
	Queue            api.QueueStats `json:"queue"`
	Error            string         `json:"error,omitempty"`
}

// TestDeliveryRequest sends a probe image straight to the sink.
type TestDeliveryRequest struct{}

// TestDeliveryResponse reports the probe outcome.
type TestDeliveryResponse struct {
	Delivered bool   `json:"delivered"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"waitMillis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
