package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent canonical records, newest first.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	hist, err := a.openHistory()
	if err != nil {
		return err
	}
	defer hist.Close()

	gateway, err := a.openGateway(ctx, hist)
	if err != nil {
		return err
	}
	defer gateway.Close()

	records, err := gateway.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Date\tBid\tAsk\tMid\tGold (ZWG)\tSource\tUpdated (UTC)")

	for _, record := range records {
		gold := "-"
		if record.GoldPrice != nil {
			gold = formatDecimal(*record.GoldPrice, 4)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			record.RateDate.Format("2006-01-02"),
			formatDecimal(record.BidRate, 4),
			formatDecimal(record.AskRate, 4),
			formatDecimal(record.MidRate, 4),
			gold,
			record.Source,
			record.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}

	writer.Flush()
	return nil
}
