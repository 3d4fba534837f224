// Package reconcile owns the local order list. Poll snapshots replace it,
// push events patch single entries, and anything it cannot resolve locally
// becomes a coalesced request for another poll.
package reconcile

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/orders"
	"github.com/appetiteclub/cafesync/pkg/enums/paymentstatus"
	"github.com/appetiteclub/cafesync/pkg/event"
)

const DefaultCoalesceWindow = 250 * time.Millisecond

// View is an immutable copy of the core's state.
type View struct {
	Orders      []orders.Order `json:"orders"`
	Stats       orders.Stats   `json:"stats"`
	ServerStats *orders.Stats  `json:"serverStats,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Degraded    bool           `json:"degraded"`
}

// Core merges poll snapshots and push events into one deduplicated list.
type Core struct {
	logger apt.Logger
	window time.Duration
	now    func() time.Time
	signal chan struct{}

	mu          sync.Mutex
	list        []orders.Order
	index       map[string]int
	stats       orders.Stats
	serverStats *orders.Stats
	updatedAt   time.Time
	degraded    bool
	observers   []func(View)
	timer       *time.Timer
	closed      bool

	// polling counts polls in flight; missed records a push event that
	// arrived during one.
	polling int
	missed  bool
}

// NewCore returns an empty core. Refresh requests are coalesced within
// window; zero or less signals immediately.
func NewCore(window time.Duration, logger apt.Logger) *Core {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Core{
		logger: logger,
		window: window,
		now:    time.Now,
		signal: make(chan struct{}, 1),
		list:   []orders.Order{},
		index:  make(map[string]int),
	}
}

// Signal delivers at most one pending refresh request at a time.
func (c *Core) Signal() <-chan struct{} {
	return c.signal
}

// ApplySnapshot replaces the list with records. Invalid records are dropped;
// duplicate ids keep the first position and the last record. It returns the
// number of orders held afterwards.
func (c *Core) ApplySnapshot(records []json.RawMessage, serverStats *orders.Stats) int {
	list := make([]orders.Order, 0, len(records))
	index := make(map[string]int, len(records))
	dropped := 0

	for _, raw := range records {
		o, err := orders.Canonicalize(raw)
		if err != nil {
			dropped++
			continue
		}
		if i, ok := index[o.ID]; ok {
			list[i] = o
			continue
		}
		index[o.ID] = len(list)
		list = append(list, o)
	}
	if dropped > 0 {
		c.logger.Debug("dropped invalid order records", "count", dropped)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	c.list = list
	c.index = index
	c.degraded = false
	if serverStats != nil {
		s := *serverStats
		c.serverStats = &s
	} else {
		c.serverStats = nil
	}
	c.recomputeLocked()
	view, observers := c.viewLocked(), c.observersLocked()
	c.mu.Unlock()

	c.notify(view, observers)
	return len(list)
}

// ClearAll empties the list after every source failed and marks the view as
// degraded.
func (c *Core) ClearAll() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.list = []orders.Order{}
	c.index = make(map[string]int)
	c.serverStats = nil
	c.degraded = true
	c.recomputeLocked()
	view, observers := c.viewLocked(), c.observersLocked()
	c.mu.Unlock()

	c.logger.Info("all order sources failed, cleared local orders")
	c.notify(view, observers)
}

// ApplyEvent patches the order an event refers to. Events for unknown or
// missing ids are never inserted; they request a refresh instead. A payment
// moving to pending_verification requests an urgent refresh.
func (c *Core) ApplyEvent(evt event.Event) {
	c.notePushDuringPoll()

	patch, err := orders.ParsePatch(evt.Data)
	if err != nil || patch.ID == "" {
		c.logger.Debug("push event without usable id", "event", evt.Name)
		c.RequestRefresh()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	i, ok := c.index[patch.ID]
	if !ok {
		c.mu.Unlock()
		if awaitsVerification(patch) {
			c.RequestUrgentRefresh()
			return
		}
		c.RequestRefresh()
		return
	}

	prev := c.list[i]
	next := prev.Apply(patch)
	c.list[i] = next
	c.recomputeLocked()
	view, observers := c.viewLocked(), c.observersLocked()
	c.mu.Unlock()

	c.notify(view, observers)

	if next.PaymentStatus == paymentstatus.Statuses.PendingVerification &&
		prev.PaymentStatus != paymentstatus.Statuses.PendingVerification {
		c.RequestUrgentRefresh()
	}
}

// BeginPoll marks a poll as in flight. Push events applied before the
// matching EndPoll may be overwritten by its snapshot.
func (c *Core) BeginPoll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polling++
}

// EndPoll closes a poll opened with BeginPoll. When a push event arrived
// while it was in flight, exactly one follow-up poll is signalled.
func (c *Core) EndPoll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.polling > 0 {
		c.polling--
	}
	if c.polling > 0 || !c.missed {
		return
	}
	c.missed = false
	if c.closed {
		return
	}
	c.fire()
}

func (c *Core) notePushDuringPoll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.polling > 0 {
		c.missed = true
	}
}

func awaitsVerification(p orders.Patch) bool {
	if p.PaymentStatus != nil {
		return *p.PaymentStatus == paymentstatus.Statuses.PendingVerification
	}
	return p.HasReceipt
}

// RequestRefresh asks for a poll. Requests within the coalescing window and
// requests made while a signal is still pending collapse into one.
func (c *Core) RequestRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.timer != nil {
		return
	}
	if c.window <= 0 {
		c.fire()
		return
	}
	c.timer = time.AfterFunc(c.window, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.timer = nil
		if c.closed {
			return
		}
		c.fire()
	})
}

// RequestUrgentRefresh signals immediately, absorbing any pending window.
func (c *Core) RequestUrgentRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.fire()
}

func (c *Core) fire() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// View returns a copy of the current state.
func (c *Core) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Order returns a copy of one order.
func (c *Core) Order(id string) (orders.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return orders.Order{}, false
	}
	return c.list[i].Clone(), true
}

// OnChange registers an observer called after every change.
func (c *Core) OnChange(fn func(View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Close stops the coalescing timer. Later mutations are ignored.
func (c *Core) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.observers = nil
}

func (c *Core) recomputeLocked() {
	c.stats = orders.ComputeStats(c.list)
	c.updatedAt = c.now()
}

func (c *Core) viewLocked() View {
	list := make([]orders.Order, len(c.list))
	for i, o := range c.list {
		list[i] = o.Clone()
	}
	v := View{
		Orders:    list,
		Stats:     c.stats,
		UpdatedAt: c.updatedAt,
		Degraded:  c.degraded,
	}
	if c.serverStats != nil {
		s := *c.serverStats
		v.ServerStats = &s
	}
	return v
}

func (c *Core) observersLocked() []func(View) {
	return append([]func(View){}, c.observers...)
}

func (c *Core) notify(view View, observers []func(View)) {
	for _, fn := range observers {
		fn(view)
	}
}
