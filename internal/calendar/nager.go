package calendar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Holiday is one public holiday as returned by the Nager.Date API.
type Holiday struct {
	Date      string `json:"date"`
	Name      string `json:"name"`
	LocalName string `json:"localName"`
}

// Day parses the holiday's ISO date.
func (h Holiday) Day() (time.Time, error) {
	return time.Parse("2006-01-02", h.Date)
}

// NagerOptions parameterise the holiday API client.
type NagerOptions struct {
	APIBase string
	Country string
	Timeout time.Duration
}

// NagerClient fetches public holidays from the Nager.Date API.
type NagerClient struct {
	opts   NagerOptions
	logger zerolog.Logger
	client *resty.Client
}

// NewNagerClient constructs a holiday API client.
func NewNagerClient(opts NagerOptions, logger zerolog.Logger) *NagerClient {
	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = "https://date.nager.at/api/v3"
	}
	if opts.Country == "" {
		opts.Country = "ZW"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetBaseURL(base)
	client.SetTimeout(timeout)
	client.SetHeader("User-Agent", "rbzwatcher/1.0")

	return &NagerClient{
		opts:   opts,
		logger: logger.With().Str("component", "holiday_api").Logger(),
		client: client,
	}
}

// PublicHolidays fetches the public holidays for a year.
func (c *NagerClient) PublicHolidays(ctx context.Context, year int) ([]Holiday, error) {
	var holidays []Holiday
	res, err := c.client.R().
		SetContext(ctx).
		SetResult(&holidays).
		Get(fmt.Sprintf("/publicholidays/%d/%s", year, c.opts.Country))
	if err != nil {
		return nil, fmt.Errorf("fetch holidays %d: %w", year, err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("holiday api returned status %d", res.StatusCode())
	}

	c.logger.Debug().Int("year", year).Int("count", len(holidays)).Msg("fetched public holidays")
	return holidays, nil
}
