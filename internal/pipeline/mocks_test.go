package pipeline

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
