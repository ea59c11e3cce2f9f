package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

var publishStampRe = regexp.MustCompile(`(\d{2}[-/]\d{2}[-/]\d{4})\s+(\d{1,2}):(\d{2})`)

// DocumentOptions parameterise the published-document extractor.
type DocumentOptions struct {
	DocumentsURL string // root the dated URL pattern hangs off
	ListingURL   string // document listing page; empty disables discovery
	UserAgent    string
	Timeout      time.Duration
	MinTextChars int
	Recognizer   Recognizer // optional OCR fallback for scanned sheets
}

// Document recovers gold prices from the bank's published price sheets. It
// probes the conventional dated URL first and falls back to scanning the
// document listing for the best candidate.
type Document struct {
	opts   DocumentOptions
	logger zerolog.Logger
	client *resty.Client
}

// NewDocument constructs a published-document extractor.
func NewDocument(opts DocumentOptions, logger zerolog.Logger) *Document {
	if opts.DocumentsURL == "" {
		opts.DocumentsURL = "https://www.rbz.co.zw/documents"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MinTextChars <= 0 {
		opts.MinTextChars = 40
	}

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("User-Agent", opts.UserAgent)
	client.SetTimeout(opts.Timeout)

	return &Document{
		opts:   opts,
		logger: logger.With().Str("component", "document_extractor").Logger(),
		client: client,
	}
}

// Source identifies this strategy.
func (d *Document) Source() Source {
	return SourceDocument
}

// Extract locates and parses the price sheet for day. Gold is the only half
// a sheet can provide; digital token figures are not published there.
func (d *Document) Extract(ctx context.Context, day time.Time) (Observation, error) {
	data, srcURL, xerr := d.locate(ctx, day)
	if xerr != nil {
		return Observation{}, xerr
	}

	gold := parseGoldDocumentText(d.documentText(ctx, data))
	if gold == nil {
		return Observation{}, newError(SourceDocument, ReasonParse, errors.New("no usable prices in document text"))
	}
	if gold.RateDate.IsZero() {
		gold.RateDate = day
	}
	gold.SourceURL = srcURL

	d.logger.Info().
		Str("url", srcURL).
		Str("rate_date", gold.RateDate.Format("2006-01-02")).
		Msg("gold prices recovered from document")
	return Observation{Gold: gold}, nil
}

func (d *Document) locate(ctx context.Context, day time.Time) ([]byte, string, *Error) {
	probe := datedDocumentURL(d.opts.DocumentsURL, day)
	data, xerr := d.download(ctx, probe)
	if xerr == nil {
		return data, probe, nil
	}
	if xerr.Reason != ReasonNotFound {
		return nil, "", xerr
	}
	if d.opts.ListingURL == "" {
		return nil, "", xerr
	}

	d.logger.Debug().Str("url", probe).Msg("dated document probe missed, scanning listing")
	href, lerr := d.discoverFromListing(ctx, day)
	if lerr != nil {
		return nil, "", lerr
	}
	data, xerr = d.download(ctx, href)
	if xerr != nil {
		return nil, "", xerr
	}
	return data, href, nil
}

func (d *Document) download(ctx context.Context, docURL string) ([]byte, *Error) {
	res, err := d.client.R().SetContext(ctx).Get(docURL)
	if err != nil {
		return nil, classifyTransport(SourceDocument, err)
	}
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return nil, newError(SourceDocument, ReasonNotFound, fmt.Errorf("document not published at %s", docURL))
	case res.StatusCode() != http.StatusOK:
		return nil, newError(SourceDocument, ReasonNetwork, fmt.Errorf("document returned status %d", res.StatusCode()))
	}

	body := res.Body()
	if len(body) < 4 || !bytes.HasPrefix(body, []byte("%PDF")) {
		return nil, newError(SourceDocument, ReasonNotFound, errors.New("response is not a pdf"))
	}
	return body, nil
}

func (d *Document) discoverFromListing(ctx context.Context, day time.Time) (string, *Error) {
	res, err := d.client.R().SetContext(ctx).Get(d.opts.ListingURL)
	if err != nil {
		return "", classifyTransport(SourceDocument, err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", newError(SourceDocument, ReasonNetwork, fmt.Errorf("listing returned status %d", res.StatusCode()))
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return "", newError(SourceDocument, ReasonParse, err)
	}

	href, ok := selectDocumentCandidate(doc, day)
	if !ok {
		return "", newError(SourceDocument, ReasonNotFound, fmt.Errorf("no price sheet on or before %s", day.Format("2006-01-02")))
	}

	listingURL, parseErr := url.Parse(d.opts.ListingURL)
	if parseErr != nil {
		return href, nil
	}
	candidateURL, parseErr := url.Parse(href)
	if parseErr != nil {
		return "", newError(SourceDocument, ReasonParse, parseErr)
	}
	return listingURL.ResolveReference(candidateURL).String(), nil
}

// documentText returns the sheet's usable text, running OCR when the native
// text layer is too thin to trust.
func (d *Document) documentText(ctx context.Context, data []byte) string {
	native, err := pdfText(data)
	if err == nil && len(strings.TrimSpace(native)) >= d.opts.MinTextChars {
		return native
	}
	if d.opts.Recognizer == nil {
		return native
	}

	d.logger.Debug().Int("native_chars", len(strings.TrimSpace(native))).Msg("text layer too thin, running ocr")
	recognized, ocrErr := d.opts.Recognizer.Recognize(ctx, data)
	if ocrErr != nil {
		d.logger.Warn().Err(ocrErr).Msg("ocr failed, keeping native text layer")
		return native
	}
	if strings.TrimSpace(recognized) == "" {
		return native
	}
	return recognized
}

type documentCandidate struct {
	href      string
	titleDate time.Time
	published time.Time
	order     int
}

func (c documentCandidate) better(other documentCandidate) bool {
	if !c.titleDate.Equal(other.titleDate) {
		return c.titleDate.After(other.titleDate)
	}
	if !c.published.Equal(other.published) {
		return c.published.After(other.published)
	}
	return c.order < other.order
}

// selectDocumentCandidate picks the price-sheet link whose title date is the
// latest not after target. Ties go to the freshest publish stamp in the
// surrounding row, then to listing order.
func selectDocumentCandidate(doc *goquery.Document, target time.Time) (string, bool) {
	var best *documentCandidate
	order := 0

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !strings.Contains(strings.ToLower(href), ".pdf") {
			return
		}
		title := strings.TrimSpace(a.Text())
		if title == "" {
			title = a.AttrOr("title", "")
		}
		titleDate, ok := findSpelledDate(title)
		if !ok {
			return
		}
		if titleDate.After(target) {
			return
		}

		candidate := documentCandidate{
			href:      href,
			titleDate: titleDate,
			published: publishStamp(a),
			order:     order,
		}
		order++
		if best == nil || candidate.better(*best) {
			best = &candidate
		}
	})

	if best == nil {
		return "", false
	}
	return best.href, true
}

// publishStamp reads a "dd-mm-yyyy HH:MM" timestamp from the link's table
// row, if the listing shows one.
func publishStamp(a *goquery.Selection) time.Time {
	row := a.Closest("tr")
	if row.Length() == 0 {
		return time.Time{}
	}
	m := publishStampRe.FindStringSubmatch(row.Text())
	if m == nil {
		return time.Time{}
	}
	day, ok := parseDayMonthYear(m[1])
	if !ok {
		return time.Time{}
	}
	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	if hour > 23 || minute > 59 {
		return day
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// datedDocumentURL builds the conventional URL a day's price sheet is
// published under.
func datedDocumentURL(documentsURL string, day time.Time) string {
	month := day.Month().String()
	return fmt.Sprintf("%s/Mosi-Rates/%d/%s/MOSI_OA_TUNYA_PRICES_%d_%s_%d.pdf",
		strings.TrimRight(documentsURL, "/"), day.Year(), month, day.Day(), strings.ToUpper(month), day.Year())
}

var _ Strategy = (*Document)(nil)
