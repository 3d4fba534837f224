package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/appetiteclub/apt"

	"github.com/appetiteclub/cafesync/internal/app"
	"github.com/appetiteclub/cafesync/internal/orderapi"
	"github.com/appetiteclub/cafesync/internal/reconcile"
)

// Orders fetches one snapshot and prints it.
func Orders(ctx context.Context, config *apt.Config, logger apt.Logger, out io.Writer) error {
	return withEngine(ctx, config, logger, func(e *app.Engine) error {
		defer e.Core.Close()

		err := e.Poller.RefreshNow(ctx)
		if err != nil && !errors.Is(err, orderapi.ErrAllSourcesFailed) {
			return err
		}
		if err != nil {
			logger.Error("no order source answered", "error", err)
		}
		return PrintView(out, e.Core.View())
	})
}

// PrintView writes the order list as a table followed by the stats.
func PrintView(out io.Writer, v reconcile.View) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPAYMENT\tTOTAL\tITEMS\tCUSTOMER")
	for _, o := range v.Orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s\n",
			o.ID, o.Status.Code(), o.PaymentStatus.Code(), o.TotalPrice, len(o.Items), o.CustomerName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTotal: %d  Pending: %d  Completed: %d  Revenue: %.2f\n",
		v.Stats.TotalOrders, v.Stats.PendingOrders, v.Stats.CompletedOrders, v.Stats.TotalRevenue)
	if v.Degraded {
		fmt.Fprintln(out, "Warning: no order source answered, list is empty")
	}
	return nil
}
