package outbox

import "time"

// Counters are process-lifetime totals for status output.
type Counters struct {
	Submitted     int64
	Delivered     int64
	Queued        int64
	Lost          int64
	Flushes       int64
	FlushAttempts int64
	FlushFailures int64
	LastFlushAt   time.Time
	LastError     string
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters
}

func (m *Manager) record(fn func(*Counters)) {
	m.mu.Lock()
	fn(&m.counters)
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	if err == nil {
		return
	}
	m.record(func(c *Counters) { c.LastError = err.Error() })
}
