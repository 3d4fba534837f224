package pushstream

import (
	"context"
	"sync"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/pkg/event"
)

const subscriberBuffer = 100

// EventSink receives push events; the reconciliation core implements it.
type EventSink interface {
	ApplyEvent(evt event.Event)
}

// hub fans events out to subscribers, dropping events for full subscribers.
type hub struct {
	logger apt.Logger

	mu          sync.RWMutex
	subscribers map[string]chan event.Event
	closed      bool
}

func newHub(logger apt.Logger) *hub {
	return &hub{
		logger:      logger,
		subscribers: make(map[string]chan event.Event),
	}
}

// Subscribe adds a subscriber and returns its event channel.
func (h *hub) Subscribe(subscriberID string) <-chan event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan event.Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	if old, ok := h.subscribers[subscriberID]; ok {
		close(old)
	}
	h.subscribers[subscriberID] = ch

	h.logger.Debug("push subscriber added", "subscriber_id", subscriberID, "total_subscribers", len(h.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *hub) Unsubscribe(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subscribers[subscriberID]; ok {
		close(ch)
		delete(h.subscribers, subscriberID)
		h.logger.Debug("push subscriber removed", "subscriber_id", subscriberID, "total_subscribers", len(h.subscribers))
	}
}

func (h *hub) broadcast(evt event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for subscriberID, ch := range h.subscribers {
		select {
		case ch <- evt:
		default:
			h.logger.Info("subscriber channel full, dropping event", "subscriber_id", subscriberID, "event", evt.Name)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
	h.closed = true
}

// Pump feeds events from ch into sink until ctx is done or ch is closed.
func Pump(ctx context.Context, ch <-chan event.Event, sink EventSink) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			sink.ApplyEvent(evt)
		}
	}
}
