package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// FxRecord is one canonical day of reconciled rates. Records are keyed
// uniquely by RateDate; currency fields are never rewritten once persisted,
// and GoldPrice is the only field a later run may attach.
type FxRecord struct {
	ID        int64
	RateDate  time.Time
	BidRate   decimal.Decimal
	AskRate   decimal.Decimal
	MidRate   decimal.Decimal
	GoldPrice *decimal.Decimal
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasGold reports whether the record already carries a derived gold figure.
func (r *FxRecord) HasGold() bool {
	return r != nil && r.GoldPrice != nil
}
