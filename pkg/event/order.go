package event

import (
	"encoding/json"
	"time"
)

// Push channel event names as emitted by the café server.
const (
	EventNewOrderReceived = "new-order-received"
	EventOrderUpdated     = "order-updated"
	EventPaymentUpdated   = "payment-updated"
)

// Room join messages sent on every (re)connect.
const (
	JoinStaffRoom = "join-staff-room"
	JoinAdminRoom = "join-admin-room"
)

// DefaultSubject is the NATS subject used when push events are relayed over NATS.
const DefaultSubject = "cafe.orders.>"

// Kind classifies a push event for the reconciliation core.
type Kind string

const (
	KindOrderCreated   Kind = "order_created"
	KindOrderUpdated   Kind = "order_updated"
	KindPaymentUpdated Kind = "payment_updated"
)

// KindFor maps a wire event name to its Kind. Unknown names return false.
func KindFor(name string) (Kind, bool) {
	switch name {
	case EventNewOrderReceived:
		return KindOrderCreated, true
	case EventOrderUpdated:
		return KindOrderUpdated, true
	case EventPaymentUpdated:
		return KindPaymentUpdated, true
	default:
		return "", false
	}
}

// Event is a typed push notification. Data holds the raw, possibly partial,
// order record exactly as received.
type Event struct {
	Kind       Kind            `json:"kind"`
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Envelope is the NATS relay format: one message carries the SSE event name
// and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinRequest is posted to the realtime emit endpoint to join a room.
type JoinRequest struct {
	Event    string `json:"event"`
	ClientID string `json:"clientId"`
	Role     string `json:"role,omitempty"`
}
