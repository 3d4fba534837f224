package session

import (
	"sync"
)

// MockNavigator records redirects.
type MockNavigator struct {
	mu        sync.Mutex
	Path      string
	Redirects []string
}

func (m *MockNavigator) CurrentPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Path
}

func (m *MockNavigator) Redirect(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Path = path
	m.Redirects = append(m.Redirects, path)
}

func (m *MockNavigator) redirects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Redirects...)
}

// blockingNavigator blocks the CurrentPath call number blockOn until release
// is closed.
type blockingNavigator struct {
	MockNavigator
	blockOn int
	entered chan struct{}
	release chan struct{}

	calls int
}

func (b *blockingNavigator) CurrentPath() string {
	b.mu.Lock()
	b.calls++
	calls := b.calls
	b.mu.Unlock()

	if calls == b.blockOn {
		close(b.entered)
		<-b.release
	}
	return b.MockNavigator.CurrentPath()
}
