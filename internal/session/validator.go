package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/navigation"
	"github.com/appetiteclub/cafesync/internal/pipeline"
	"github.com/appetiteclub/cafesync/pkg/enums/role"
)

const (
	DefaultCheckInterval = 5 * time.Minute
	DefaultRedirectDelay = 2 * time.Second

	ExpiredMessage      = "Session expired. Please log in again."
	NetworkErrorMessage = "Network error while checking session. Retrying…"
)

// State is the validator's position in its check cycle.
type State string

const (
	StateIdle     State = "idle"
	StateChecking State = "checking"
	StateValid    State = "valid"
	StateInvalid  State = "invalid"
	StateError    State = "error"
)

// Status is a snapshot of the validator. State is the current phase, Outcome
// the result of the last completed check.
type Status struct {
	State     State           `json:"state"`
	Outcome   State           `json:"outcome,omitempty"`
	Valid     bool            `json:"valid"`
	Role      role.Role       `json:"role,omitempty"`
	User      json.RawMessage `json:"user,omitempty"`
	Message   string          `json:"message,omitempty"`
	CheckedAt time.Time       `json:"checkedAt,omitempty"`
}

type probeResponse struct {
	Success       bool            `json:"success"`
	Authenticated bool            `json:"authenticated"`
	User          json.RawMessage `json:"user"`
}

// ValidatorConfig tunes timing and the fallback role.
type ValidatorConfig struct {
	Role          role.Role
	Interval      time.Duration
	RedirectDelay time.Duration
}

// Validator periodically probes check-session and exposes a validity flag.
type Validator struct {
	client *pipeline.Client
	store  Store
	nav    navigation.Navigator
	cfg    ValidatorConfig
	logger apt.Logger

	trigger    chan struct{}
	checkMu    sync.Mutex
	redirectMu sync.Mutex

	mu            sync.RWMutex
	status        Status
	observers     []func(Status)
	redirectTimer *time.Timer
	stopped       bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewValidator(client *pipeline.Client, store Store, nav navigation.Navigator, cfg ValidatorConfig, logger apt.Logger) *Validator {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCheckInterval
	}
	if cfg.RedirectDelay <= 0 {
		cfg.RedirectDelay = DefaultRedirectDelay
	}
	if !cfg.Role.Valid() {
		cfg.Role = role.Staff
	}
	return &Validator{
		client:  client,
		store:   store,
		nav:     nav,
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		status:  Status{State: StateIdle},
	}
}

// Start runs the first check and then checks on every interval tick and
// focus regain.
func (v *Validator) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.cancel != nil {
		v.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	v.cancel = cancel
	v.stopped = false
	v.mu.Unlock()

	v.wg.Add(1)
	go v.loop(loopCtx)
	v.FocusRegained()

	v.logger.Info("session validator started", "interval", v.cfg.Interval.String())
	return nil
}

// Stop cancels the loop and any pending redirect, then waits for the loop.
func (v *Validator) Stop(ctx context.Context) error {
	v.mu.Lock()
	cancel := v.cancel
	v.cancel = nil
	v.stopped = true
	if v.redirectTimer != nil {
		v.redirectTimer.Stop()
		v.redirectTimer = nil
	}
	v.mu.Unlock()

	// Wait out a redirect callback that passed its stopped check.
	v.redirectMu.Lock()
	v.redirectMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FocusRegained requests a check. Requests made while a check is running
// collapse into one follow-up check.
func (v *Validator) FocusRegained() {
	select {
	case v.trigger <- struct{}{}:
	default:
	}
}

// Status returns the current snapshot.
func (v *Validator) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// OnChange registers an observer called after every state change.
func (v *Validator) OnChange(fn func(Status)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, fn)
}

func (v *Validator) loop(ctx context.Context) {
	defer v.wg.Done()

	ticker := time.NewTicker(v.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Check(ctx)
		case <-v.trigger:
			v.Check(ctx)
		}
	}
}

// Check runs one probe synchronously and returns the resulting status.
func (v *Validator) Check(ctx context.Context) Status {
	v.checkMu.Lock()
	defer v.checkMu.Unlock()

	v.update(func(s *Status) { s.State = StateChecking })

	creds, err := v.store.Get(ctx)
	if err != nil {
		v.logger.Error("cannot read credentials", "error", err)
		return v.finish(StateError, nil, "", NetworkErrorMessage)
	}
	if creds == nil {
		return v.invalidate(v.cfg.Role, "")
	}

	r := creds.Role
	if !r.Valid() {
		r = v.cfg.Role
	}

	user, err := v.probe(ctx, r)
	switch {
	case err == nil:
		return v.finish(StateValid, user, r, "")
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return v.finish(StateIdle, nil, r, "")
	case errors.Is(err, ErrProbeRejected):
		v.logger.Info("session rejected by server", "role", r.Code())
		return v.invalidate(r, ExpiredMessage)
	default:
		v.logger.Info("session check failed", "role", r.Code(), "error", err)
		return v.finish(StateError, nil, r, NetworkErrorMessage)
	}
}

func (v *Validator) probe(ctx context.Context, r role.Role) (json.RawMessage, error) {
	var resp probeResponse
	err := v.client.Do(ctx, http.MethodGet, "/api/"+r.Code()+"/check-session", nil, &resp)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnauthenticated) || errors.Is(err, pipeline.ErrForbidden) {
			return nil, fmt.Errorf("%w: %v", ErrProbeRejected, err)
		}
		return nil, err
	}
	if !resp.Success || !resp.Authenticated {
		return nil, fmt.Errorf("%w: not authenticated", ErrProbeRejected)
	}
	return resp.User, nil
}

// invalidate leaves the store alone; the next login overwrites it.
func (v *Validator) invalidate(r role.Role, message string) Status {
	status := v.finish(StateInvalid, nil, r, message)
	v.scheduleRedirect()
	return status
}

func (v *Validator) scheduleRedirect() {
	if v.nav == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped || v.redirectTimer != nil {
		return
	}
	if navigation.IsLoginPath(v.nav.CurrentPath()) {
		return
	}

	v.redirectTimer = time.AfterFunc(v.cfg.RedirectDelay, func() {
		v.redirectMu.Lock()
		defer v.redirectMu.Unlock()

		v.mu.Lock()
		if v.stopped {
			v.mu.Unlock()
			return
		}
		v.redirectTimer = nil
		v.mu.Unlock()

		current := v.nav.CurrentPath()
		if navigation.IsLoginPath(current) {
			return
		}
		v.nav.Redirect(navigation.LoginPathFor(current))
	})
}

func (v *Validator) finish(outcome State, user json.RawMessage, r role.Role, message string) Status {
	return v.update(func(s *Status) {
		s.State = StateIdle
		if outcome == StateIdle {
			return
		}
		s.Outcome = outcome
		s.Role = r
		s.Message = message
		s.CheckedAt = time.Now()
		switch outcome {
		case StateValid:
			s.Valid = true
			s.User = user
		case StateInvalid:
			s.Valid = false
			s.User = nil
		}
	})
}

func (v *Validator) update(fn func(*Status)) Status {
	v.mu.Lock()
	fn(&v.status)
	status := v.status
	observers := append([]func(Status){}, v.observers...)
	v.mu.Unlock()

	for _, obs := range observers {
		obs(status)
	}
	return status
}
