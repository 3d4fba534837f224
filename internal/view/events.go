package view

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"

	"github.com/appetiteclub/cafesync/internal/reconcile"
	"github.com/appetiteclub/cafesync/internal/session"
)

const (
	EventOrders   = "orders"
	EventSession  = "session"
	EventRedirect = "redirect"

	keepaliveInterval = 30 * time.Second
)

type message struct {
	Event string
	Data  string
}

// broadcaster fans display events out to SSE connections. Slow connections
// lose events rather than block the engine.
type broadcaster struct {
	logger apt.Logger

	mu          sync.RWMutex
	subscribers map[string]chan message
}

func newBroadcaster(logger apt.Logger) *broadcaster {
	return &broadcaster{
		logger:      logger,
		subscribers: make(map[string]chan message),
	}
}

func (b *broadcaster) subscribe(id string) <-chan message {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan message, 32)
	b.subscribers[id] = ch
	return ch
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

func (b *broadcaster) publish(name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("cannot encode display event", "event", name, "error", err)
		return
	}
	msg := message{Event: name, Data: string(data)}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			b.logger.Info("display subscriber full, dropping event", "subscriber_id", id, "event", name)
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func (h *Handler) observe() {
	if h.deps.Orders != nil {
		h.deps.Orders.OnChange(func(v reconcile.View) {
			h.events.publish(EventOrders, v)
		})
	}
	if h.deps.Session != nil {
		h.deps.Session.OnChange(func(s session.Status) {
			h.events.publish(EventSession, s)
		})
	}
	if h.deps.Router != nil {
		h.deps.Router.OnRedirect(func(path string) {
			h.events.publish(EventRedirect, map[string]string{"path": path})
		})
	}
}

// ServeEvents handles GET /events
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		apt.RespondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	log := h.log(r).With("subscriber_id", subscriberID)
	log.Info("new display stream")

	events := h.events.subscribe(subscriberID)
	defer h.events.unsubscribe(subscriberID)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")

	if h.deps.Orders != nil {
		writeJSONEvent(w, EventOrders, h.deps.Orders.View())
	}
	if h.deps.Session != nil {
		writeJSONEvent(w, EventSession, h.deps.Session.Status())
	}
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info("display stream disconnected")
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case msg, ok := <-events:
			if !ok {
				return
			}
			sendSSEEvent(w, msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

func writeJSONEvent(w http.ResponseWriter, name string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	sendSSEEvent(w, name, string(data))
}

// sendSSEEvent writes one event, prefixing every data line.
func sendSSEEvent(w http.ResponseWriter, eventType string, data string) {
	data = strings.TrimSpace(data)

	fmt.Fprintf(w, "event: %s\n", eventType)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprintf(w, "\n")
}
