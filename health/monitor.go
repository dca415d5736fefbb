package health

import (
	"sort"
	"sync"
	"time"
)

// Monitor holds statuses pushed by dependencies that are not managed
// services, such as the NATS connection.
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func NewMonitor() *Monitor {
	return &Monitor{statuses: make(map[string]Status)}
}

// Update records status under name.
func (m *Monitor) Update(name string, status Status) {
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[name] = status
}

// Track returns a callback that marks name healthy or degraded.
func (m *Monitor) Track(name string) func(healthy bool) {
	return func(healthy bool) {
		if healthy {
			m.Update(name, NewHealthy(name, "Connected"))
			return
		}
		m.Update(name, NewDegraded(name, "Disconnected, reconnecting"))
	}
}

func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// All returns the recorded statuses ordered by name.
func (m *Monitor) All() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Component < out[j].Component })
	return out
}

func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, name)
}
