package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	dayMonthYearRe   = regexp.MustCompile(`(\d{2})[-/](\d{2})[-/](\d{4})`)
	exchangeHeaderRe = regexp.MustCompile(`(?i)EXCHANGE\s+RATES?\s*(\d{2}[-/]\d{2}[-/]\d{4})`)
	goldHeaderRe     = regexp.MustCompile(`(?is)GOLD\s+COIN\s+PRICE.*?(\d{2}[-/]\d{2}[-/]\d{4})`)
	spelledDateRe    = regexp.MustCompile(`(?i)(\d{1,2})\s+(JANUARY|FEBRUARY|MARCH|APRIL|MAY|JUNE|JULY|AUGUST|SEPTEMBER|OCTOBER|NOVEMBER|DECEMBER)\s+(\d{4})`)
	nonNumericRe     = regexp.MustCompile(`[^0-9.]`)
)

var monthsByName = map[string]time.Month{
	"JANUARY": time.January, "FEBRUARY": time.February, "MARCH": time.March,
	"APRIL": time.April, "MAY": time.May, "JUNE": time.June,
	"JULY": time.July, "AUGUST": time.August, "SEPTEMBER": time.September,
	"OCTOBER": time.October, "NOVEMBER": time.November, "DECEMBER": time.December,
}

// parseDayMonthYear parses dd-mm-yyyy (or dd/mm/yyyy) into a UTC midnight
// date. Impossible dates such as 31-02-2025 are rejected.
func parseDayMonthYear(text string) (time.Time, bool) {
	m := dayMonthYearRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	parsed, err := time.Parse("02-01-2006", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// findExchangeHeaderDate locates the dated exchange-rate header.
func findExchangeHeaderDate(text string) (time.Time, bool) {
	m := exchangeHeaderRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return parseDayMonthYear(m[1])
}

// findGoldHeaderDate locates the dated gold-price header.
func findGoldHeaderDate(text string) (time.Time, bool) {
	m := goldHeaderRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	return parseDayMonthYear(m[1])
}

// findSpelledDate parses a "9 DECEMBER 2025" style date.
func findSpelledDate(text string) (time.Time, bool) {
	m := spelledDateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := monthsByName[strings.ToUpper(m[2])]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(m[3])
	if err != nil {
		return time.Time{}, false
	}
	parsed := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if parsed.Day() != day || parsed.Month() != month {
		return time.Time{}, false
	}
	return parsed, true
}

// parseNumber parses a plain numeric cell such as "26,661.10". Anything
// beyond digits, commas, and a decimal point fails.
func parseNumber(text string) (decimal.Decimal, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// parsePrice parses a price cell leniently, tolerating currency markers
// such as "US$4,671.87" or "R2,250.00".
func parsePrice(text string) (decimal.Decimal, bool) {
	cleaned := nonNumericRe.ReplaceAllString(strings.ReplaceAll(text, ",", ""), "")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// parseGoldDocumentText scans the text of a published price sheet. Labels
// sit on their own line with the price within the next few lines. Digital
// token figures are not published on the sheets.
func parseGoldDocumentText(text string) *GoldRates {
	gold := &GoldRates{Source: SourceDocument}
	if d, ok := findSpelledDate(text); ok {
		gold.RateDate = d
	}

	targets := map[string]*decimal.Decimal{
		"USD": &gold.USD,
		"ZWG": &gold.ZWG,
		"ZAR": &gold.ZAR,
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		slot, ok := targets[strings.TrimSpace(line)]
		if !ok || !slot.IsZero() {
			continue
		}
		for j := i + 1; j <= i+4 && j < len(lines); j++ {
			if v, parsed := parseNumber(lines[j]); parsed {
				*slot = v
				break
			}
		}
	}

	if !gold.HasPrices() {
		return nil
	}
	return gold
}
