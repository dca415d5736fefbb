package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/NOAA-OWP/DMOD-sub000/errors"
	"github.com/NOAA-OWP/DMOD-sub000/metric"
)

// Manager runs an ordered set of services.
type Manager struct {
	mu         sync.Mutex
	logger     *slog.Logger
	metrics    *metric.Metrics
	components []*ManagedComponent
	started    bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithMetrics publishes each service's state and failures to registry.
func WithMetrics(registry *metric.MetricsRegistry) ManagerOption {
	return func(m *Manager) {
		if registry != nil {
			m.metrics = registry.CoreMetrics()
		}
	}
}

// NewManager creates an empty manager. A nil logger uses slog.Default.
func NewManager(logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{logger: logger.With("component", "manager")}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add appends a service. Names must be unique and services cannot be added
// once the manager has started.
func (m *Manager) Add(c LifecycleComponent) error {
	if c == nil {
		return errors.WrapInvalid(fmt.Errorf("nil component"), "Manager", "Add", "add component")
	}
	name := c.Meta().Name

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return errors.WrapInvalid(fmt.Errorf("manager already started"), "Manager", "Add", "add "+name)
	}
	for _, mc := range m.components {
		if mc.Component.Meta().Name == name {
			return errors.WrapInvalid(fmt.Errorf("duplicate component %q", name), "Manager", "Add", "add "+name)
		}
	}
	mc := &ManagedComponent{Component: c}
	m.components = append(m.components, mc)
	m.setState(mc, StateCreated)
	return nil
}

// Start initializes and starts every service in order. On failure the
// services already started are stopped, in reverse, before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	for i, mc := range m.components {
		name := mc.Component.Meta().Name

		if err := mc.Component.Initialize(); err != nil {
			m.fail(mc, err)
			m.rollback(i)
			return errors.Wrap(err, "Manager", "Start", "initialize "+name)
		}
		m.setState(mc, StateInitialized)

		childCtx, cancel := context.WithCancel(ctx)
		mc.Context, mc.Cancel = childCtx, cancel
		if err := mc.Component.Start(childCtx); err != nil {
			cancel()
			m.fail(mc, err)
			m.rollback(i)
			return errors.Wrap(err, "Manager", "Start", "start "+name)
		}
		m.setState(mc, StateStarted)
		mc.StartOrder = i
		m.logger.Info("Component started", "name", name, "type", mc.Component.Meta().Type)
	}

	m.started = true
	return nil
}

// rollback stops the first n components after a failed Start.
// REQUIRES: m.mu held.
func (m *Manager) rollback(n int) {
	if n == 0 {
		return
	}
	if err := m.stopRange(n, 5*time.Second); err != nil {
		m.logger.Warn("Rollback after failed start was incomplete", "error", err)
	}
}

// Stop stops every started service in reverse start order, sharing one
// timeout across all of them.
func (m *Manager) Stop(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	m.started = false
	return m.stopRange(len(m.components), timeout)
}

// REQUIRES: m.mu held.
func (m *Manager) stopRange(n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var failed []error

	for i := n - 1; i >= 0; i-- {
		mc := m.components[i]
		if mc.State != StateStarted {
			continue
		}
		name := mc.Component.Meta().Name

		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		err := mc.Component.Stop(remaining)
		if mc.Cancel != nil {
			mc.Cancel()
		}
		if err != nil {
			m.fail(mc, err)
			failed = append(failed, fmt.Errorf("%s: %w", name, err))
			continue
		}
		m.setState(mc, StateStopped)
		m.logger.Info("Component stopped", "name", name)
	}

	if len(failed) > 0 {
		return errors.WrapTransient(fmt.Errorf("failed to stop %d components: %v", len(failed), failed),
			"Manager", "Stop", "stop components")
	}
	return nil
}

// REQUIRES: m.mu held.
func (m *Manager) setState(mc *ManagedComponent, state State) {
	mc.State = state
	if m.metrics != nil {
		m.metrics.RecordServiceStatus(mc.Component.Meta().Name, int(state))
	}
}

func (m *Manager) fail(mc *ManagedComponent, err error) {
	m.setState(mc, StateFailed)
	mc.LastError = err
	if m.metrics != nil {
		m.metrics.RecordError(mc.Component.Meta().Name, errors.Classify(err).String())
	}
	m.logger.Error("Component lifecycle failure", "name", mc.Component.Meta().Name, "error", err)
}

// States reports each service's lifecycle state by name.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.components))
	for _, mc := range m.components {
		out[mc.Component.Meta().Name] = mc.State
	}
	return out
}

// Health collects each service's health report by name.
func (m *Manager) Health() map[string]HealthStatus {
	m.mu.Lock()
	comps := make([]LifecycleComponent, len(m.components))
	for i, mc := range m.components {
		comps[i] = mc.Component
	}
	m.mu.Unlock()

	out := make(map[string]HealthStatus, len(comps))
	for _, c := range comps {
		out[c.Meta().Name] = c.Health()
	}
	return out
}
