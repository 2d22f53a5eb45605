package health

import (
	"sort"
	"sync"
	"time"
)

// Check reports the current status of one component
type Check func() Status

// Monitor aggregates the health of registered components in a thread-safe manner.
// Components either register a Check that is evaluated on demand, or push
// statuses with Update.
type Monitor struct {
	mu       sync.RWMutex
	checks   map[string]Check
	statuses map[string]Status
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		checks:   make(map[string]Check),
		statuses: make(map[string]Status),
	}
}

// Register adds a check evaluated every time the monitor is read.
// Registering a name twice replaces the earlier check.
func (m *Monitor) Register(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.statuses, name)
	m.checks[name] = check
}

// Update stores a pushed status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	delete(m.checks, name)
	m.statuses[name] = status
}

// Get returns the current status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	check, isCheck := m.checks[name]
	status, isStatus := m.statuses[name]
	m.mu.RUnlock()

	if isCheck {
		return m.evaluate(name, check), true
	}
	return status, isStatus
}

// Remove stops monitoring a component
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checks, name)
	delete(m.statuses, name)
}

// Components returns the sorted names of all monitored components
func (m *Monitor) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.checks)+len(m.statuses))
	for name := range m.checks {
		names = append(names, name)
	}
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AggregateHealth evaluates every component and aggregates the result
func (m *Monitor) AggregateHealth(systemName string) Status {
	names := m.Components()

	subStatuses := make([]Status, 0, len(names))
	for _, name := range names {
		if status, ok := m.Get(name); ok {
			subStatuses = append(subStatuses, status)
		}
	}

	return Aggregate(systemName, subStatuses)
}

// checks run outside the lock since they may call back into components
func (m *Monitor) evaluate(name string, check Check) Status {
	status := check()
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}
	return status
}
