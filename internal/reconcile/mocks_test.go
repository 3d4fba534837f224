package reconcile

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/appetiteclub/cafesync/internal/orderapi"
)

// MockSource implements Source for testing.
type MockSource struct {
	mu           sync.Mutex
	calls        int
	SnapshotFunc func(ctx context.Context, call int) (*orderapi.Snapshot, error)
}

func (m *MockSource) Snapshot(ctx context.Context) (*orderapi.Snapshot, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx, call)
	}
	return &orderapi.Snapshot{}, nil
}

func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func records(raw ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(raw))
	for i, r := range raw {
		out[i] = json.RawMessage(r)
	}
	return out
}
