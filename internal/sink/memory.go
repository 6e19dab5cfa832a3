package sink

import (
	"context"
	"sync"

	"github.com/jsamuelsen/go-scope-hub/internal/event"
)

// Memory keeps captured events in memory. Useful for tests and local runs.
type Memory struct {
	name   string
	mu     sync.Mutex
	events []event.Event
	closed bool
}

// NewMemory creates an empty in-memory sink.
func NewMemory(name string) *Memory {
	return &Memory{name: name}
}

// Name returns the sink name.
func (m *Memory) Name() string {
	return m.name
}

// Capture stores a copy of ev.
func (m *Memory) Capture(_ context.Context, ev *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return event.NewUnavailableError(m.name, "closed")
	}

	m.events = append(m.events, *ev)

	return nil
}

// Flush is a no-op.
func (m *Memory) Flush(context.Context) error {
	return nil
}

// Close stops accepting events.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	return nil
}

// Events returns the captured events, oldest first.
func (m *Memory) Events() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]event.Event, len(m.events))
	copy(result, m.events)

	return result
}

// Reset drops captured events.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = nil
}
