// Package orders holds the normalized order shape, the mapping from the
// heterogeneous server records into it, and the derived statistics.
package orders

import (
	"encoding/json"
	"time"

	"github.com/appetiteclub/cafesync/pkg/enums/orderstatus"
	"github.com/appetiteclub/cafesync/pkg/enums/paymentstatus"
)

type Origin string

const (
	OriginCustomer Origin = "customer"
	OriginStaff    Origin = "staff"
)

type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Cancellation is only carried by cancelled orders.
type Cancellation struct {
	By     string     `json:"by,omitempty"`
	Reason string     `json:"reason,omitempty"`
	At     *time.Time `json:"at,omitempty"`
}

// Order is the locally held, canonical order. ID is never empty.
type Order struct {
	ID            string
	Status        orderstatus.Status
	PaymentStatus paymentstatus.Status
	PaymentMethod string
	TotalPrice    float64
	Items         []Item
	Notes         string
	CustomerName  string
	Origin        Origin
	Cancellation  *Cancellation
	CreatedAt     *time.Time
}

// Clone returns a deep copy.
func (o Order) Clone() Order {
	c := o
	if o.Items != nil {
		c.Items = append([]Item(nil), o.Items...)
	}
	if o.Cancellation != nil {
		cancel := *o.Cancellation
		c.Cancellation = &cancel
	}
	if o.CreatedAt != nil {
		t := *o.CreatedAt
		c.CreatedAt = &t
	}
	return c
}

type orderJSON struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	StatusLabel   string        `json:"statusLabel"`
	PaymentStatus string        `json:"paymentStatus"`
	PaymentMethod string        `json:"paymentMethod,omitempty"`
	TotalPrice    float64       `json:"totalPrice"`
	Items         []Item        `json:"items"`
	Notes         string        `json:"notes,omitempty"`
	CustomerName  string        `json:"customerName,omitempty"`
	Origin        Origin        `json:"origin"`
	Cancellation  *Cancellation `json:"cancellation,omitempty"`
	CreatedAt     *time.Time    `json:"createdAt,omitempty"`
}

func (o Order) MarshalJSON() ([]byte, error) {
	items := o.Items
	if items == nil {
		items = []Item{}
	}
	return json.Marshal(orderJSON{
		ID:            o.ID,
		Status:        o.Status.Code(),
		StatusLabel:   o.Status.Label(),
		PaymentStatus: o.PaymentStatus.Code(),
		PaymentMethod: o.PaymentMethod,
		TotalPrice:    o.TotalPrice,
		Items:         items,
		Notes:         o.Notes,
		CustomerName:  o.CustomerName,
		Origin:        o.Origin,
		Cancellation:  o.Cancellation,
		CreatedAt:     o.CreatedAt,
	})
}

// Apply overlays the fields present in p. The identifier never changes.
func (o Order) Apply(p Patch) Order {
	next := o.Clone()

	if p.Status != nil {
		next.Status = *p.Status
	}
	switch {
	case p.PaymentStatus != nil:
		next.PaymentStatus = *p.PaymentStatus
	case p.HasReceipt && next.PaymentStatus == paymentstatus.Statuses.Pending:
		next.PaymentStatus = paymentstatus.Statuses.PendingVerification
	}
	if p.PaymentMethod != nil {
		next.PaymentMethod = *p.PaymentMethod
	}
	if p.TotalPrice != nil {
		next.TotalPrice = *p.TotalPrice
	}
	if p.ItemsSet {
		next.Items = append([]Item{}, p.Items...)
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.CustomerName != nil {
		next.CustomerName = *p.CustomerName
	}
	if p.Origin != nil {
		next.Origin = *p.Origin
	}
	if p.CreatedAt != nil {
		t := *p.CreatedAt
		next.CreatedAt = &t
	}

	if next.Status != orderstatus.Statuses.Cancelled {
		next.Cancellation = nil
		return next
	}
	if p.hasCancellation() {
		cancel := Cancellation{}
		if next.Cancellation != nil {
			cancel = *next.Cancellation
		}
		if p.CancelledBy != nil {
			cancel.By = *p.CancelledBy
		}
		if p.CancellationReason != nil {
			cancel.Reason = *p.CancellationReason
		}
		if p.CancelledAt != nil {
			t := *p.CancelledAt
			cancel.At = &t
		}
		next.Cancellation = &cancel
	}
	return next
}
