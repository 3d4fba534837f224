package orders

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/appetiteclub/cafesync/pkg/enums/orderstatus"
	"github.com/appetiteclub/cafesync/pkg/enums/paymentstatus"
)

func mustOrder(t *testing.T, raw string) Order {
	t.Helper()
	o, err := Canonicalize(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Canonicalize(%s) error = %v", raw, err)
	}
	return o
}

func mustPatch(t *testing.T, raw string) Patch {
	t.Helper()
	p, err := ParsePatch(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("ParsePatch(%s) error = %v", raw, err)
	}
	return p
}

func TestOrderApply(t *testing.T) {
	base := `{"id":"A1","status":"pending","payment_status":"pending","total":20,"items":[{"name":"Mocha"}],"notes":"hot"}`

	tests := []struct {
		name  string
		patch string
		check func(t *testing.T, got Order)
	}{
		{
			name:  "paymentStatusOnly",
			patch: `{"id":"A1","paymentStatus":"pending_verification"}`,
			check: func(t *testing.T, got Order) {
				if got.PaymentStatus != paymentstatus.Statuses.PendingVerification {
					t.Errorf("PaymentStatus = %q", got.PaymentStatus.Code())
				}
				if got.TotalPrice != 20 || got.Notes != "hot" || len(got.Items) != 1 {
					t.Errorf("untouched fields drifted: %+v", got)
				}
			},
		},
		{
			name:  "receiptUpload",
			patch: `{"id":"A1","receiptPath":"/r.png"}`,
			check: func(t *testing.T, got Order) {
				if got.PaymentStatus != paymentstatus.Statuses.PendingVerification {
					t.Errorf("PaymentStatus = %q", got.PaymentStatus.Code())
				}
			},
		},
		{
			name:  "statusAndItems",
			patch: `{"order_id":"A1","status":"preparing","items":[]}`,
			check: func(t *testing.T, got Order) {
				if got.Status != orderstatus.Statuses.Preparing {
					t.Errorf("Status = %q", got.Status.Code())
				}
				if len(got.Items) != 0 {
					t.Errorf("Items = %+v", got.Items)
				}
			},
		},
		{
			name:  "cancel",
			patch: `{"id":"A1","status":"canceled","cancellation_reason":"duplicate"}`,
			check: func(t *testing.T, got Order) {
				if got.Status != orderstatus.Statuses.Cancelled {
					t.Errorf("Status = %q", got.Status.Code())
				}
				if got.Cancellation == nil || got.Cancellation.Reason != "duplicate" {
					t.Errorf("Cancellation = %+v", got.Cancellation)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := mustOrder(t, base)
			got := original.Apply(mustPatch(t, tt.patch))
			if got.ID != "A1" {
				t.Errorf("ID = %q", got.ID)
			}
			tt.check(t, got)
			if original.PaymentStatus != paymentstatus.Statuses.Pending || original.Status != orderstatus.Statuses.Pending {
				t.Error("Apply() mutated the receiver")
			}
		})
	}
}

func TestOrderApplyKeepsCancellationWhileCancelled(t *testing.T) {
	o := mustOrder(t, `{"id":"A1","status":"cancelled","cancelled_by":"admin"}`)
	got := o.Apply(mustPatch(t, `{"id":"A1","cancelReason":"late"}`))

	if got.Cancellation == nil || got.Cancellation.By != "admin" || got.Cancellation.Reason != "late" {
		t.Errorf("Cancellation = %+v", got.Cancellation)
	}

	reopened := got.Apply(mustPatch(t, `{"id":"A1","status":"pending"}`))
	if reopened.Cancellation != nil {
		t.Errorf("Cancellation after reopen = %+v, want nil", reopened.Cancellation)
	}
}

func TestOrderMarshalJSON(t *testing.T) {
	o := mustOrder(t, `{"id":"A1","status":"pending_verification","total":5}`)

	raw, err := json.Marshal(o)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"id":"A1"`, `"status":"pending_verification"`, `"statusLabel":"Pending Verification"`, `"items":[]`, `"totalPrice":5`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
}

func TestComputeStats(t *testing.T) {
	list := []Order{
		mustOrder(t, `{"id":"1","status":"pending","payment_status":"paid","total":10.10}`),
		mustOrder(t, `{"id":"2","status":"pending_verification","receipt_path":"r"}`),
		mustOrder(t, `{"id":"3","status":"completed","payment_status":"paid","total":20.20}`),
		mustOrder(t, `{"id":"4","status":"cancelled","payment_status":"paid","total":99}`),
		mustOrder(t, `{"id":"5","status":"ready","payment_status":"failed","total":7}`),
	}

	got := ComputeStats(list)
	want := Stats{TotalOrders: 5, PendingOrders: 2, CompletedOrders: 1, TotalRevenue: 30.3}
	if got != want {
		t.Errorf("ComputeStats() = %+v, want %+v", got, want)
	}

	if empty := ComputeStats(nil); empty != (Stats{}) {
		t.Errorf("ComputeStats(nil) = %+v", empty)
	}
}
