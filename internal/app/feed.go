package app

import (
	"context"
	"errors"
	"time"

	"rbz-rates-watcher/internal/extract"
	"rbz-rates-watcher/internal/pipeline"
)

// manualStrategy replays an operator-supplied observation through the
// extraction interface so feeds share the reconciler and write path.
type manualStrategy struct {
	obs extract.Observation
}

func (s manualStrategy) Source() extract.Source { return extract.SourceManual }

func (s manualStrategy) Extract(context.Context, time.Time) (extract.Observation, error) {
	return s.obs, nil
}

// Feed pushes a manual observation through the regular pipeline. The
// calendar gate and the history short-circuit are bypassed: an operator
// typing rates in knows better than the gate.
func (a *App) Feed(ctx context.Context, opts FeedOptions) (pipeline.Result, error) {
	if opts.Date.IsZero() {
		return pipeline.Result{}, errors.New("feed date is required")
	}
	exchangeGiven := !opts.Bid.IsZero() || !opts.Ask.IsZero() || !opts.Mid.IsZero()
	if exchangeGiven && (opts.Bid.Sign() <= 0 || opts.Ask.Sign() <= 0 || opts.Mid.Sign() <= 0) {
		return pipeline.Result{}, errors.New("bid, ask and mid must be provided together and positive")
	}

	obs := buildManualObservation(opts)
	if obs.Empty() {
		return pipeline.Result{}, errors.New("feed needs exchange rates or gold prices")
	}

	rt, err := a.newRuntime(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}
	defer rt.close()

	// 人工补录不发通知,只修数据。
	rt.notifier = nil

	return rt.run(ctx, []extract.Strategy{manualStrategy{obs: obs}}, pipeline.RunOptions{
		Force:  true,
		DryRun: opts.DryRun,
		Day:    opts.Date,
	})
}

func buildManualObservation(opts FeedOptions) extract.Observation {
	var obs extract.Observation

	if opts.Bid.Sign() > 0 || opts.Ask.Sign() > 0 || opts.Mid.Sign() > 0 {
		obs.Exchange = &extract.ExchangeRates{
			RateDate: opts.Date,
			Bid:      opts.Bid,
			Ask:      opts.Ask,
			Mid:      opts.Mid,
			Source:   extract.SourceManual,
		}
	}

	if opts.GoldUSD.Sign() > 0 || opts.GoldZWG.Sign() > 0 {
		goldDate := opts.GoldDate
		if goldDate.IsZero() {
			goldDate = opts.Date
		}
		obs.Gold = &extract.GoldRates{
			RateDate: goldDate,
			USD:      opts.GoldUSD,
			ZWG:      opts.GoldZWG,
			Source:   extract.SourceManual,
		}
	}

	return obs
}
