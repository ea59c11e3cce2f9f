package extract

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Strategy is one way of obtaining rates for a target day. The pipeline runs
// strategies in order and stops as soon as both observation halves are in
// hand.
type Strategy interface {
	Source() Source
	Extract(ctx context.Context, day time.Time) (Observation, error)
}

// Source identifies which strategy produced an observation half.
type Source string

const (
	// SourcePage marks data lifted from the live site.
	SourcePage Source = "page"
	// SourceDocument marks data recovered from a published price sheet.
	SourceDocument Source = "document"
	// SourceManual marks operator-fed data.
	SourceManual Source = "manual"
)

// ExchangeRates is the exchange-rate half of an observation. The half is
// all-or-nothing: bid, ask, and mid either all parsed or the half is absent.
// A zero RateDate means the source omitted its header date.
type ExchangeRates struct {
	RateDate time.Time
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Mid      decimal.Decimal
	Source   Source
}

// GoldRates is the gold-coin half of an observation. Individual prices are
// optional; a zero decimal means the source did not publish that figure.
type GoldRates struct {
	RateDate        time.Time
	USD             decimal.Decimal
	ZWG             decimal.Decimal
	ZAR             decimal.Decimal
	GBP             decimal.Decimal
	EUR             decimal.Decimal
	DigitalTokenUSD decimal.Decimal
	DigitalTokenZWG decimal.Decimal
	Source          Source
	SourceURL       string
}

// HasPrices reports whether at least one price field is populated.
func (g *GoldRates) HasPrices() bool {
	if g == nil {
		return false
	}
	for _, v := range []decimal.Decimal{g.USD, g.ZWG, g.ZAR, g.GBP, g.EUR, g.DigitalTokenUSD, g.DigitalTokenZWG} {
		if !v.IsZero() {
			return true
		}
	}
	return false
}

// Observation is what one extraction strategy produced. Either half may be
// nil when the source had nothing usable for it.
type Observation struct {
	Exchange *ExchangeRates
	Gold     *GoldRates
}

// Empty reports whether the observation carries no usable data at all.
func (o Observation) Empty() bool {
	return o.Exchange == nil && !o.Gold.HasPrices()
}
