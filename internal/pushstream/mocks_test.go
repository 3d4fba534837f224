package pushstream

import (
	"sync"

	"github.com/appetiteclub/cafesync/pkg/event"
)

// MockSink records applied events.
type MockSink struct {
	mu     sync.Mutex
	Events []event.Event
}

func (m *MockSink) ApplyEvent(evt event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, evt)
}

func (m *MockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}
