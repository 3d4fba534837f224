package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/appetiteclub/cafesync/pkg/enums/orderstatus"
	"github.com/appetiteclub/cafesync/pkg/enums/paymentstatus"
)

var (
	// ErrMissingIdentifier is returned for records without any usable id.
	ErrMissingIdentifier = errors.New("order record has no identifier")
	// ErrNotAnObject is returned when a record is not a JSON object.
	ErrNotAnObject = errors.New("order record is not an object")
)

// Field precedence. The first key present with a usable value wins.
var (
	idKeys            = []string{"orderId", "order_id", "orderID", "id"}
	statusKeys        = []string{"status", "orderStatus", "order_status"}
	paymentStatusKeys = []string{"paymentStatus", "payment_status"}
	receiptKeys       = []string{"receiptPath", "receipt_path", "receiptUrl", "receipt_url", "paymentReceipt", "payment_receipt"}
	paymentMethodKeys = []string{"paymentMethod", "payment_method"}
	totalKeys         = []string{"totalPrice", "total_price", "totalAmount", "total_amount", "total"}
	itemsKeys         = []string{"items", "orderItems", "order_items"}
	itemNameKeys      = []string{"name", "itemName", "item_name", "productName", "product_name"}
	itemQuantityKeys  = []string{"quantity", "qty"}
	itemPriceKeys     = []string{"price", "unitPrice", "unit_price"}
	notesKeys         = []string{"notes", "specialInstructions", "special_instructions"}
	customerNameKeys  = []string{"customerName", "customer_name"}
	originKeys        = []string{"placedBy", "placed_by", "orderSource", "order_source", "source"}
	cancelledByKeys   = []string{"cancelledBy", "cancelled_by"}
	cancelReasonKeys  = []string{"cancellationReason", "cancellation_reason", "cancelReason"}
	cancelledAtKeys   = []string{"cancelledAt", "cancelled_at"}
	createdAtKeys     = []string{"createdAt", "created_at", "orderDate", "order_date"}
)

// Patch holds only the fields present in a raw record. Unknown enum values
// are treated as absent.
type Patch struct {
	ID                 string
	Status             *orderstatus.Status
	PaymentStatus      *paymentstatus.Status
	HasReceipt         bool
	PaymentMethod      *string
	TotalPrice         *float64
	Items              []Item
	ItemsSet           bool
	Notes              *string
	CustomerName       *string
	Origin             *Origin
	CancelledBy        *string
	CancellationReason *string
	CancelledAt        *time.Time
	CreatedAt          *time.Time
}

func (p Patch) hasCancellation() bool {
	return p.CancelledBy != nil || p.CancellationReason != nil || p.CancelledAt != nil
}

type fields map[string]json.RawMessage

// ParsePatch maps a raw record onto the canonical field names.
func ParsePatch(raw json.RawMessage) (Patch, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return Patch{}, err
	}

	var p Patch
	p.ID = f.id()

	if v, ok := f.str(statusKeys...); ok {
		p.Status = orderstatus.ByName(v)
	}
	if v, ok := f.str(paymentStatusKeys...); ok {
		p.PaymentStatus = paymentstatus.ByName(v)
	}
	if v, ok := f.str(receiptKeys...); ok && strings.TrimSpace(v) != "" {
		p.HasReceipt = true
	}
	if v, ok := f.str(paymentMethodKeys...); ok {
		p.PaymentMethod = &v
	}
	if v, ok := f.number(totalKeys...); ok {
		if v < 0 {
			v = 0
		}
		p.TotalPrice = &v
	}
	if items, ok := f.items(); ok {
		p.Items = items
		p.ItemsSet = true
	}
	if v, ok := f.str(notesKeys...); ok {
		p.Notes = &v
	}
	if v, ok := f.str(customerNameKeys...); ok {
		p.CustomerName = &v
	}
	if v, ok := f.str(originKeys...); ok {
		origin := OriginCustomer
		if strings.EqualFold(strings.TrimSpace(v), string(OriginStaff)) {
			origin = OriginStaff
		}
		p.Origin = &origin
	}
	if v, ok := f.str(cancelledByKeys...); ok {
		p.CancelledBy = &v
	}
	if v, ok := f.str(cancelReasonKeys...); ok {
		p.CancellationReason = &v
	}
	if v, ok := f.time(cancelledAtKeys...); ok {
		p.CancelledAt = &v
	}
	if v, ok := f.time(createdAtKeys...); ok {
		p.CreatedAt = &v
	}

	return p, nil
}

// Canonicalize maps a raw record into a full Order, filling defaults:
// status pending, payment status pending (pending_verification when a
// receipt is attached), origin customer.
func Canonicalize(raw json.RawMessage) (Order, error) {
	p, err := ParsePatch(raw)
	if err != nil {
		return Order{}, err
	}
	if p.ID == "" {
		return Order{}, ErrMissingIdentifier
	}

	base := Order{
		ID:            p.ID,
		Status:        orderstatus.Statuses.Pending,
		PaymentStatus: paymentstatus.Statuses.Pending,
		Items:         []Item{},
		Origin:        OriginCustomer,
	}
	return base.Apply(p), nil
}

// CanonicalID returns the identifier a raw record would get, or "".
func CanonicalID(raw json.RawMessage) string {
	f, err := decodeFields(raw)
	if err != nil {
		return ""
	}
	return f.id()
}

func decodeFields(raw json.RawMessage) (fields, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}
	var f fields
	if err := json.Unmarshal(trimmed, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnObject, err)
	}
	return f, nil
}

func (f fields) id() string {
	for _, k := range idKeys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if v, ok := scalarString(raw); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (f fields) str(keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if v, ok := scalarString(raw); ok {
			return v, true
		}
	}
	return "", false
}

func (f fields) number(keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if v, ok := scalarNumber(raw); ok {
			return v, true
		}
	}
	return 0, false
}

func (f fields) time(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if ms, ok := scalarNumber(raw); ok && raw[0] != '"' {
			return time.UnixMilli(int64(ms)).UTC(), true
		}
		if v, ok := scalarString(raw); ok {
			if t, ok := parseTime(v); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (f fields) items() ([]Item, bool) {
	for _, k := range itemsKeys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if items, ok := decodeItems(raw); ok {
			return items, true
		}
	}
	return nil, false
}

// decodeItems accepts an array, or a string holding a JSON array.
func decodeItems(raw json.RawMessage) ([]Item, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, false
		}
		raw = bytes.TrimSpace([]byte(encoded))
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}

	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if name, ok := scalarString(entry); ok {
			items = append(items, Item{Name: name, Quantity: 1})
			continue
		}
		f, err := decodeFields(entry)
		if err != nil {
			continue
		}
		item := Item{Quantity: 1}
		if v, ok := f.str(itemNameKeys...); ok {
			item.Name = v
		}
		if v, ok := f.number(itemQuantityKeys...); ok && v > 0 {
			item.Quantity = int(v)
		}
		if v, ok := f.number(itemPriceKeys...); ok && v > 0 {
			item.Price = v
		}
		items = append(items, item)
	}
	return items, true
}

// scalarString reads a JSON string or number as text. null and composite
// values are rejected.
func scalarString(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
	return "", false
}

// scalarNumber reads a JSON number or a numeric string. NaN and infinities
// are rejected.
func scalarNumber(raw json.RawMessage) (float64, bool) {
	s, ok := scalarString(raw)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
