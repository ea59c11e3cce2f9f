package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rbz-rates-watcher/internal/extract"
	"rbz-rates-watcher/internal/store"
)

// DivisorField names the exchange-rate slot that converts a USD gold price
// into the canonical gold figure.
type DivisorField string

const (
	DivisorBid DivisorField = "bid"
	DivisorAsk DivisorField = "ask"
	DivisorMid DivisorField = "mid"
)

// ParseDivisorField validates a configured divisor field name.
func ParseDivisorField(value string) (DivisorField, error) {
	field := DivisorField(strings.ToLower(strings.TrimSpace(value)))
	switch field {
	case DivisorBid, DivisorAsk, DivisorMid:
		return field, nil
	}
	return "", fmt.Errorf("unknown divisor field %q (want bid, ask, or mid)", value)
}

func (f DivisorField) pick(bid, ask, mid decimal.Decimal) decimal.Decimal {
	switch f {
	case DivisorBid:
		return bid
	case DivisorAsk:
		return ask
	default:
		return mid
	}
}

// RecordRate reads this field from a persisted record.
func (f DivisorField) RecordRate(record *store.FxRecord) decimal.Decimal {
	return f.pick(record.BidRate, record.AskRate, record.MidRate)
}

// Action is the write decision for one reconciled observation.
type Action string

const (
	// ActionInsert creates the canonical record for a new rate date.
	ActionInsert Action = "insert"
	// ActionUpdate attaches gold to an existing record that lacks it.
	ActionUpdate Action = "update"
	// ActionNoop leaves the store untouched; the record is already complete
	// or the observation adds nothing new.
	ActionNoop Action = "no-op"
	// ActionNoData means the observation carried nothing usable.
	ActionNoData Action = "no-data"
)

// Plan is the outcome of reconciling an observation against the store's
// current state. Anomalies are for the caller to log; they never block the
// write, since the published source stays authoritative over this pipeline's
// judgement.
type Plan struct {
	Action    Action
	RateDate  time.Time
	Record    *store.FxRecord  // insert payload
	GoldValue *decimal.Decimal // update payload
	Anomalies []string
}

// Merge combines observations in priority order. Each half is taken whole
// from the first observation that supplies it, and later observations only
// fill halves that are still absent, so fields from different strategies are
// never mixed within one half.
func Merge(observations ...extract.Observation) extract.Observation {
	var merged extract.Observation
	for _, obs := range observations {
		if merged.Exchange == nil && obs.Exchange != nil {
			merged.Exchange = obs.Exchange
		}
		if !merged.Gold.HasPrices() && obs.Gold.HasPrices() {
			merged.Gold = obs.Gold
		}
	}
	return merged
}

// Sufficient reports whether an observation needs no further strategies.
func Sufficient(obs extract.Observation) bool {
	return obs.Exchange != nil && obs.Gold.HasPrices()
}

// TargetDate resolves which rate date the observation is about: the exchange
// header date (fallback when the source omitted it), else the gold date for
// a gold-only observation. Zero means nothing to reconcile.
func TargetDate(obs extract.Observation, fallback time.Time) time.Time {
	if obs.Exchange != nil {
		if obs.Exchange.RateDate.IsZero() {
			return normalizeDay(fallback)
		}
		return normalizeDay(obs.Exchange.RateDate)
	}
	if obs.Gold.HasPrices() && !obs.Gold.RateDate.IsZero() {
		return normalizeDay(obs.Gold.RateDate)
	}
	return time.Time{}
}

// Decide maps a merged observation plus the store's current record for the
// target date onto a write plan.
//
// The rules: a missing record gets an insert carrying the exchange rates and,
// when the gold date matches, the derived gold. An existing record is never
// rewritten; the only permitted change is attaching gold to a record that
// lacks it, using the matching-date gold of this observation. Everything
// else is a no-op.
func Decide(obs extract.Observation, existing *store.FxRecord, divisor DivisorField, fallback time.Time) Plan {
	ex := obs.Exchange
	gold := obs.Gold

	if ex == nil {
		if !gold.HasPrices() {
			return Plan{Action: ActionNoData}
		}
		return decideGoldOnly(gold, existing, divisor)
	}

	rateDate := normalizeDay(ex.RateDate)
	if ex.RateDate.IsZero() {
		rateDate = normalizeDay(fallback)
	}

	plan := Plan{RateDate: rateDate, Anomalies: exchangeAnomalies(ex)}

	if existing == nil {
		record := store.FxRecord{
			RateDate: rateDate,
			BidRate:  ex.Bid,
			AskRate:  ex.Ask,
			MidRate:  ex.Mid,
			Source:   string(ex.Source),
		}
		if goldApplies(gold, rateDate) {
			derived, ok := DeriveGold(gold.USD, divisor.pick(ex.Bid, ex.Ask, ex.Mid))
			if ok {
				record.GoldPrice = &derived
			} else {
				plan.Anomalies = append(plan.Anomalies,
					fmt.Sprintf("non-positive %s rate, gold derivation skipped", divisor))
			}
		}
		plan.Action = ActionInsert
		plan.Record = &record
		return plan
	}

	if existing.HasGold() || !goldApplies(gold, rateDate) {
		plan.Action = ActionNoop
		return plan
	}

	// Attach against the stored rates: this observation may not even carry
	// usable exchange data for the existing record's date.
	derived, ok := DeriveGold(gold.USD, divisor.RecordRate(existing))
	if !ok {
		plan.Action = ActionNoop
		plan.Anomalies = append(plan.Anomalies,
			fmt.Sprintf("non-positive stored %s rate, gold attach skipped", divisor))
		return plan
	}
	plan.Action = ActionUpdate
	plan.GoldValue = &derived
	return plan
}

func decideGoldOnly(gold *extract.GoldRates, existing *store.FxRecord, divisor DivisorField) Plan {
	if gold.RateDate.IsZero() || gold.USD.IsZero() {
		return Plan{Action: ActionNoData}
	}

	plan := Plan{RateDate: normalizeDay(gold.RateDate)}
	if existing == nil {
		// No record to hang the gold on yet; the exchange half has to land
		// first.
		plan.Action = ActionNoData
		return plan
	}
	if existing.HasGold() {
		plan.Action = ActionNoop
		return plan
	}

	derived, ok := DeriveGold(gold.USD, divisor.RecordRate(existing))
	if !ok {
		plan.Action = ActionNoop
		plan.Anomalies = append(plan.Anomalies,
			fmt.Sprintf("non-positive stored %s rate, gold attach skipped", divisor))
		return plan
	}
	plan.Action = ActionUpdate
	plan.GoldValue = &derived
	return plan
}

// DeriveGold converts a USD gold price into the canonical gold figure,
// rounded to 4 decimal places. False when the divisor rate cannot divide.
func DeriveGold(goldUSD, rate decimal.Decimal) (decimal.Decimal, bool) {
	if rate.Sign() <= 0 {
		return decimal.Decimal{}, false
	}
	return goldUSD.Div(rate).Round(4), true
}

// goldApplies reports whether the gold half may be attached to a record for
// day: it needs its own source date matching the record's and a USD price to
// derive from.
func goldApplies(gold *extract.GoldRates, day time.Time) bool {
	if gold == nil || gold.USD.IsZero() || gold.RateDate.IsZero() {
		return false
	}
	return normalizeDay(gold.RateDate).Equal(day)
}

// exchangeAnomalies flags values the source should never publish. They are
// reported, not enforced; the published figures win.
func exchangeAnomalies(ex *extract.ExchangeRates) []string {
	var anomalies []string
	if ex.Bid.IsNegative() || ex.Ask.IsNegative() || ex.Mid.IsNegative() {
		anomalies = append(anomalies,
			fmt.Sprintf("negative rate published: bid=%s ask=%s mid=%s", ex.Bid, ex.Ask, ex.Mid))
	}
	if ex.Mid.LessThan(ex.Bid) || ex.Mid.GreaterThan(ex.Ask) {
		anomalies = append(anomalies,
			fmt.Sprintf("mid %s outside bid/ask band [%s, %s]", ex.Mid, ex.Bid, ex.Ask))
	}
	return anomalies
}

func normalizeDay(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
