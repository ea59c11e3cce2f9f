package extract

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// PageOptions parameterise the live-page extractor.
type PageOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	PacingMin time.Duration
	PacingMax time.Duration
}

// Page scrapes the bank homepage: the exchange-rate panel and the gold coin
// price tab. Each extraction runs in its own transient session with a fresh
// cookie jar.
type Page struct {
	opts   PageOptions
	logger zerolog.Logger
}

// NewPage constructs a live-page extractor.
func NewPage(opts PageOptions, logger zerolog.Logger) *Page {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.rbz.co.zw"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Page{
		opts:   opts,
		logger: logger.With().Str("component", "page_extractor").Logger(),
	}
}

var _ Strategy = (*Page)(nil)

// session is one scraping visit. It exists so cookies and pacing state are
// never shared across extraction attempts.
type session struct {
	client    *resty.Client
	pacingMin time.Duration
	pacingMax time.Duration
}

func (p *Page) newSession() (*session, error) {
	base, err := url.Parse(p.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(p.opts.BaseURL, "/"))
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("User-Agent", p.opts.UserAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(p.opts.Timeout)

	return &session{
		client:    client,
		pacingMin: p.opts.PacingMin,
		pacingMax: p.opts.PacingMax,
	}, nil
}

func (s *session) close() {
	s.client.GetClient().CloseIdleConnections()
}

// pace sleeps a human-looking random interval, honouring ctx cancellation.
func (s *session) pace(ctx context.Context) {
	if s.pacingMax <= 0 {
		return
	}
	delay := s.pacingMin
	if s.pacingMax > s.pacingMin {
		delay += time.Duration(rand.Int63n(int64(s.pacingMax - s.pacingMin)))
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Source identifies this strategy.
func (p *Page) Source() Source {
	return SourcePage
}

// Extract visits the homepage and returns whatever rate halves it finds. The
// live site always shows the current publication, so the target day is
// ignored. A page that loads but shows nothing usable yields an empty
// observation, not an error.
func (p *Page) Extract(ctx context.Context, _ time.Time) (Observation, error) {
	sess, err := p.newSession()
	if err != nil {
		return Observation{}, newError(SourcePage, ReasonNetwork, err)
	}
	defer sess.close()

	sess.pace(ctx)
	res, err := sess.client.R().SetContext(ctx).Get("/")
	if err != nil {
		return Observation{}, classifyTransport(SourcePage, err)
	}
	if res.StatusCode() != http.StatusOK {
		return Observation{}, newError(SourcePage, ReasonNetwork, fmt.Errorf("homepage returned status %d", res.StatusCode()))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return Observation{}, newError(SourcePage, ReasonParse, err)
	}

	obs := Observation{Exchange: exchangeFromDocument(doc)}
	if obs.Exchange != nil {
		p.logger.Debug().
			Str("bid", obs.Exchange.Bid.String()).
			Str("ask", obs.Exchange.Ask.String()).
			Str("mid", obs.Exchange.Mid.String()).
			Msg("exchange rates extracted")
	}

	gold := goldFromDocument(doc)
	if gold == nil {
		// The gold panel sometimes lives behind a real link rather than an
		// in-page tab; follow it within the same session.
		if href, ok := goldTabHref(doc); ok {
			sess.pace(ctx)
			gold = p.goldFromLink(ctx, sess, href)
		}
	}
	if gold != nil {
		p.logger.Debug().Str("usd", gold.USD.String()).Str("zwg", gold.ZWG.String()).Msg("gold prices extracted")
	}
	obs.Gold = gold

	return obs, nil
}

func (p *Page) goldFromLink(ctx context.Context, sess *session, href string) *GoldRates {
	res, err := sess.client.R().SetContext(ctx).Get(href)
	if err != nil || res.StatusCode() != http.StatusOK {
		p.logger.Warn().Err(err).Str("href", href).Msg("gold tab link fetch failed")
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil
	}
	return goldFromDocument(doc)
}

// exchangeFromDocument finds the USD/ZWG row of the exchange-rate table.
// The half is only reported when bid, ask, and mid all parse.
func exchangeFromDocument(doc *goquery.Document) *ExchangeRates {
	ex := &ExchangeRates{Source: SourcePage}
	if d, ok := findExchangeHeaderDate(doc.Text()); ok {
		ex.RateDate = d
	}

	found := false
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := cellTexts(row)
		if len(cells) < 4 {
			return true
		}
		label := strings.ToUpper(cells[0])
		if !strings.Contains(label, "USD") || !strings.Contains(label, "ZWG") {
			return true
		}
		bid, okBid := parseNumber(cells[1])
		ask, okAsk := parseNumber(cells[2])
		mid, okMid := parseNumber(cells[3])
		if !okBid || !okAsk || !okMid {
			// malformed row, keep scanning
			return true
		}
		ex.Bid, ex.Ask, ex.Mid = bid, ask, mid
		found = true
		return false
	})

	if !found {
		return nil
	}
	return ex
}

// goldFromDocument scans the gold coin price table: one row per currency
// plus the digital token row. First occurrence of each currency wins.
func goldFromDocument(doc *goquery.Document) *GoldRates {
	gold := &GoldRates{Source: SourcePage}
	if d, ok := findGoldHeaderDate(doc.Text()); ok {
		gold.RateDate = d
	}

	targets := map[string]*decimal.Decimal{
		"USD": &gold.USD,
		"ZWG": &gold.ZWG,
		"ZAR": &gold.ZAR,
		"GBP": &gold.GBP,
		"EUR": &gold.EUR,
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := cellTexts(row)
		if len(cells) < 2 {
			return
		}
		label := strings.TrimSpace(cells[0])

		if strings.Contains(strings.ToUpper(label), "DIGITAL TOKEN PRICE") {
			scanDigitalTokenCells(cells[1:], gold)
			return
		}

		slot, ok := targets[label]
		if !ok || !slot.IsZero() {
			return
		}
		priceCell := cells[1]
		if len(cells) >= 3 {
			priceCell = cells[2]
		}
		if v, parsed := parsePrice(priceCell); parsed {
			*slot = v
		}
	})

	if !gold.HasPrices() {
		return nil
	}
	return gold
}

// scanDigitalTokenCells pulls USD and ZiG figures out of the digital token
// row, whose cells mix the currency marker into the value ("USD0.1279").
func scanDigitalTokenCells(cells []string, gold *GoldRates) {
	for _, cell := range cells {
		upper := strings.ToUpper(strings.TrimSpace(cell))
		switch {
		case strings.Contains(upper, "USD"):
			if v, ok := parsePrice(upper); ok {
				gold.DigitalTokenUSD = v
			}
		case strings.Contains(upper, "ZIG") || strings.Contains(upper, "ZWG"):
			if v, ok := parsePrice(upper); ok {
				gold.DigitalTokenZWG = v
			}
		}
	}
}

// goldTabHref finds a real link to the gold price page, ignoring in-page
// tab anchors.
func goldTabHref(doc *goquery.Document) (string, bool) {
	href := ""
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := strings.ToUpper(strings.TrimSpace(a.Text()))
		if !strings.Contains(text, "GOLD COIN PRICE") {
			return true
		}
		h, ok := a.Attr("href")
		if !ok {
			return true
		}
		h = strings.TrimSpace(h)
		if h == "" || strings.HasPrefix(h, "#") || strings.HasPrefix(strings.ToLower(h), "javascript:") {
			return true
		}
		href = h
		return false
	})
	return href, href != ""
}

func cellTexts(row *goquery.Selection) []string {
	return row.Find("td").Map(func(_ int, cell *goquery.Selection) string {
		return strings.TrimSpace(cell.Text())
	})
}
