package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"rbz-rates-watcher/internal/store"
)

// Export renders canonical history as CSV and/or PNG. The default window is
// the past year ending today.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

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

	to := time.Now().UTC()
	if opts.To != nil {
		to = *opts.To
	}

	from := to.AddDate(-1, 0, 0)
	if opts.From != nil {
		from = *opts.From
	}

	if from.After(to) {
		return errors.New("from must not be after to")
	}

	records, err := gateway.ListBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no records found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting records")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []store.FxRecord, max int) []store.FxRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]store.FxRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []store.FxRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rate_date", "bid_rate", "ask_rate", "mid_rate", "gold_price_zwg", "source", "created_at"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, record := range records {
		gold := ""
		if record.GoldPrice != nil {
			gold = record.GoldPrice.String()
		}
		row := []string{
			record.RateDate.Format("2006-01-02"),
			record.BidRate.String(),
			record.AskRate.String(),
			record.MidRate.String(),
			gold,
			record.Source,
			record.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeRecordsPNG(path string, records []store.FxRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	bid := make([]float64, len(records))
	ask := make([]float64, len(records))
	mid := make([]float64, len(records))
	var goldX []time.Time
	var gold []float64

	for i, record := range records {
		x[i] = record.RateDate
		bid[i] = record.BidRate.InexactFloat64()
		ask[i] = record.AskRate.InexactFloat64()
		mid[i] = record.MidRate.InexactFloat64()
		if record.GoldPrice != nil {
			goldX = append(goldX, record.RateDate)
			gold = append(gold, record.GoldPrice.InexactFloat64())
		}
	}

	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "USD/ZWG",
			ValueFormatter: rateFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Bid",
				XValues: x,
				YValues: bid,
			},
			chart.TimeSeries{
				Name:    "Ask",
				XValues: x,
				YValues: ask,
			},
			chart.TimeSeries{
				Name:    "Mid",
				XValues: x,
				YValues: mid,
			},
		},
	}
	// go-chart 不接受单点序列,黄金数据不足时直接略过副轴。
	if len(gold) > 1 {
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Gold Coin (ZWG)",
			ValueFormatter: rateFormatter,
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Gold Coin",
			XValues: goldX,
			YValues: gold,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
