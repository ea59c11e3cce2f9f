package calendar

import "time"

// Gate answers whether a given date is one the central bank publishes rates
// on. Weekends and public holidays are ineligible; everything else is.
type Gate struct {
	holidays map[string]struct{}
}

// NewGate builds a gate from the known public-holiday dates. The slice may
// be empty; the weekend rule still applies.
func NewGate(holidays []time.Time) *Gate {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		set[dayKey(h)] = struct{}{}
	}
	return &Gate{holidays: set}
}

// IsEligible reports whether d is a publication day.
func (g *Gate) IsEligible(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if g == nil {
		return true
	}
	_, holiday := g.holidays[dayKey(d)]
	return !holiday
}

// HolidayCount reports how many holiday dates the gate knows about.
func (g *Gate) HolidayCount() int {
	if g == nil {
		return 0
	}
	return len(g.holidays)
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
