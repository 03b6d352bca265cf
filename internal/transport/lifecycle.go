package transport

import (
	"sync"
)

// LifecycleState is the app-level foreground/background state the transport
// consults before reconnecting.
type LifecycleState int

const (
	LifecycleActive LifecycleState = iota
	LifecycleBackground
)

func (s LifecycleState) String() string {
	if s == LifecycleActive {
		return "active"
	}
	return "background"
}

// LifecycleMonitor is the connectivity/lifecycle oracle. The embedding
// application feeds it state transitions; sessions defer reconnects while
// backgrounded and fire them when the state returns to active.
type LifecycleMonitor struct {
	mu     sync.Mutex
	state  LifecycleState
	nextID int
	subs   map[int]func(LifecycleState)
}

func NewLifecycleMonitor() *LifecycleMonitor {
	return &LifecycleMonitor{
		state: LifecycleActive,
		subs:  make(map[int]func(LifecycleState)),
	}
}

// State returns the current lifecycle state.
func (m *LifecycleMonitor) State() LifecycleState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Active reports whether the app is in the foreground.
func (m *LifecycleMonitor) Active() bool {
	return m.State() == LifecycleActive
}

// Set records a state transition and notifies subscribers of changes.
func (m *LifecycleMonitor) Set(state LifecycleState) {
	m.mu.Lock()
	if m.state == state {
		m.mu.Unlock()
		return
	}
	m.state = state
	subs := make([]func(LifecycleState), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// OnChange registers a transition callback and returns its cancel func.
func (m *LifecycleMonitor) OnChange(fn func(LifecycleState)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}
