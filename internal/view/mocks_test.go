package view

import (
	"context"
	"sync"

	"github.com/appetiteclub/cafesync/internal/credential"
	"github.com/appetiteclub/cafesync/internal/session"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

// MockRefresher implements Refresher for testing.
type MockRefresher struct {
	RefreshNowFunc func(ctx context.Context) error
	calls          int
}

func (m *MockRefresher) RefreshNow(ctx context.Context) error {
	m.calls++
	if m.RefreshNowFunc != nil {
		return m.RefreshNowFunc(ctx)
	}
	return nil
}

// MockSessionState implements SessionState for testing.
type MockSessionState struct {
	mu        sync.Mutex
	status    session.Status
	focus     int
	observers []func(session.Status)
}

func (m *MockSessionState) Status() session.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *MockSessionState) FocusRegained() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.focus++
}

func (m *MockSessionState) OnChange(fn func(session.Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *MockSessionState) emit(s session.Status) {
	m.mu.Lock()
	m.status = s
	observers := append([]func(session.Status){}, m.observers...)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(s)
	}
}

func (m *MockSessionState) focusCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.focus
}

// MockSessions implements Sessions for testing.
type MockSessions struct {
	LoginFunc  func(ctx context.Context, r role.Role, fields map[string]string) (*credential.Credentials, error)
	LogoutFunc func(ctx context.Context, r role.Role) error
	loggedOut  []role.Role
}

func (m *MockSessions) Login(ctx context.Context, r role.Role, fields map[string]string) (*credential.Credentials, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, r, fields)
	}
	return &credential.Credentials{Token: "t", Role: r}, nil
}

func (m *MockSessions) Logout(ctx context.Context, r role.Role) error {
	m.loggedOut = append(m.loggedOut, r)
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, r)
	}
	return nil
}

// MockCredentials implements CredentialReader for testing.
type MockCredentials struct {
	Creds *credential.Credentials
}

func (m *MockCredentials) Get(ctx context.Context) (*credential.Credentials, error) {
	return m.Creds, nil
}
