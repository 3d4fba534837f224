package orders

import (
	"math"

	"github.com/appetiteclub/cafesync/pkg/enums/orderstatus"
	"github.com/appetiteclub/cafesync/pkg/enums/paymentstatus"
)

// Stats are always recomputed from the full order set.
type Stats struct {
	TotalOrders     int     `json:"totalOrders"`
	PendingOrders   int     `json:"pendingOrders"`
	CompletedOrders int     `json:"completedOrders"`
	TotalRevenue    float64 `json:"totalRevenue"`
}

// ComputeStats counts pending (including pending_verification) and completed
// orders, and sums the totals of paid orders that were not cancelled.
func ComputeStats(list []Order) Stats {
	var s Stats
	for _, o := range list {
		s.TotalOrders++
		switch {
		case o.Status.Open():
			s.PendingOrders++
		case o.Status == orderstatus.Statuses.Completed:
			s.CompletedOrders++
		}
		if o.Status != orderstatus.Statuses.Cancelled && o.PaymentStatus == paymentstatus.Statuses.Paid {
			s.TotalRevenue += o.TotalPrice
		}
	}
	s.TotalRevenue = math.Round(s.TotalRevenue*100) / 100
	return s
}
