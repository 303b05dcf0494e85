package daemon

// Message is one input to the actor loop.
type Message interface {
	kind() string
}

// NewCapture carries one captured image into the outbox.
type NewCapture struct {
	CaptureID string
	Payload   []byte
}

// ConnectivityRestored asks for a flush because the network likely came back.
// Source names the trigger (netlink, probe, activation, api, ipc).
type ConnectivityRestored struct {
	Source string
}

// PeriodicSync asks for a scheduled flush.
type PeriodicSync struct{}

func (NewCapture) kind() string           { return "new_capture" }
func (ConnectivityRestored) kind() string { return "connectivity_restored" }
func (PeriodicSync) kind() string         { return "periodic_sync" }

// Flush trigger sources.
const (
	SourceActivation = "activation"
	SourceNetlink    = "netlink"
	SourceProbe      = "probe"
	SourceSchedule   = "schedule"
	SourceManual     = "manual"
)
