// Package navigation tracks where the display layer currently is and
// performs role-aware redirects to the login screens.
package navigation

import (
	"strings"
	"sync"

	"github.com/appetiteclub/apt"
)

const GenericLoginPath = "/login"

// Navigator is what the pipeline and the session validator need from the
// display layer's router.
type Navigator interface {
	CurrentPath() string
	Redirect(path string)
}

// LoginPathFor returns the login screen matching the role section of path.
func LoginPathFor(path string) string {
	p := strings.ToLower(strings.TrimSpace(path))
	for _, section := range []string{"admin", "staff", "customer"} {
		prefix := "/" + section
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return prefix + "/login"
		}
	}
	return GenericLoginPath
}

// IsLoginPath reports whether path already is a login screen.
func IsLoginPath(path string) bool {
	return path == GenericLoginPath || strings.HasSuffix(path, "/login")
}

// Tracker is the in-process Navigator. Listeners receive every redirect.
type Tracker struct {
	mu        sync.RWMutex
	current   string
	listeners []func(path string)
	logger    apt.Logger
}

func NewTracker(initial string, logger apt.Logger) *Tracker {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if initial == "" {
		initial = "/"
	}
	return &Tracker{current: initial, logger: logger}
}

// Visit records a navigation performed by the display layer.
func (t *Tracker) Visit(path string) {
	t.mu.Lock()
	t.current = path
	t.mu.Unlock()
}

func (t *Tracker) CurrentPath() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Redirect moves to path and notifies listeners. Redirecting to the path the
// tracker is already on is a no-op.
func (t *Tracker) Redirect(path string) {
	t.mu.Lock()
	if t.current == path {
		t.mu.Unlock()
		return
	}
	t.current = path
	listeners := append([]func(string){}, t.listeners...)
	t.mu.Unlock()

	t.logger.Info("redirecting", "path", path)
	for _, fn := range listeners {
		fn(path)
	}
}

// OnRedirect registers a listener.
func (t *Tracker) OnRedirect(fn func(path string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}
