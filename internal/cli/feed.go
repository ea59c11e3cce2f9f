package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"rbz-rates-watcher/internal/app"
)

var (
	feedDate     string
	feedBid      string
	feedAsk      string
	feedMid      string
	feedGoldUSD  string
	feedGoldZWG  string
	feedGoldDate string
	feedDryRun   bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Record operator-supplied rates for a date",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := time.Parse("2006-01-02", feedDate)
		if err != nil {
			return fmt.Errorf("invalid --date value: %w", err)
		}

		opts := app.FeedOptions{Date: date, DryRun: feedDryRun}
		if opts.Bid, err = parseDecimalFlag("bid", feedBid); err != nil {
			return err
		}
		if opts.Ask, err = parseDecimalFlag("ask", feedAsk); err != nil {
			return err
		}
		if opts.Mid, err = parseDecimalFlag("mid", feedMid); err != nil {
			return err
		}
		if opts.GoldUSD, err = parseDecimalFlag("gold-usd", feedGoldUSD); err != nil {
			return err
		}
		if opts.GoldZWG, err = parseDecimalFlag("gold-zwg", feedGoldZWG); err != nil {
			return err
		}
		if feedGoldDate != "" {
			goldDate, err := time.Parse("2006-01-02", feedGoldDate)
			if err != nil {
				return fmt.Errorf("invalid --gold-date value: %w", err)
			}
			opts.GoldDate = goldDate
		}

		result, err := getApp().Feed(cmd.Context(), opts)
		if err != nil {
			return err
		}

		prefix := ""
		if result.DryRun {
			prefix = "[dry-run] "
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s%s %s\n", prefix, result.Status, result.RateDate.Format("2006-01-02"))
		return nil
	},
}

func parseDecimalFlag(name, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Decimal{}, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return d, nil
}

func init() {
	feedCmd.Flags().StringVar(&feedDate, "date", "", "Rate date (YYYY-MM-DD, required)")
	feedCmd.Flags().StringVar(&feedBid, "bid", "", "USD/ZWG bid rate")
	feedCmd.Flags().StringVar(&feedAsk, "ask", "", "USD/ZWG ask rate")
	feedCmd.Flags().StringVar(&feedMid, "mid", "", "USD/ZWG mid rate")
	feedCmd.Flags().StringVar(&feedGoldUSD, "gold-usd", "", "Gold coin price in USD")
	feedCmd.Flags().StringVar(&feedGoldZWG, "gold-zwg", "", "Gold coin price in ZWG")
	feedCmd.Flags().StringVar(&feedGoldDate, "gold-date", "", "Gold price date when it differs from --date")
	feedCmd.Flags().BoolVar(&feedDryRun, "dry-run", false, "Print the write plan without touching anything")

	feedCmd.MarkFlagRequired("date")
}
