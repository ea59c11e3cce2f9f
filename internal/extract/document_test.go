package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const sheetText = `PRESS STATEMENT
MOSI OA TUNYA GOLD COIN PRICES
29 DECEMBER 2025
USD
4,671.87
ZWG
121,519.17
ZAR
87,000.10`

// fakeRecognizer stands in for the OCR toolchain.
type fakeRecognizer struct {
	text   string
	err    error
	called bool
}

func (f *fakeRecognizer) Recognize(ctx context.Context, pdfData []byte) (string, error) {
	f.called = true
	return f.text, f.err
}

func fakePDF() []byte {
	// carries the magic but no text layer, forcing the OCR path
	return []byte("%PDF-1.4 scanned-sheet-without-text-layer")
}

func targetDay(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC)
}

func TestDocumentExtractDatedProbe(t *testing.T) {
	listingHits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/documents/Mosi-Rates/2025/December/MOSI_OA_TUNYA_PRICES_29_DECEMBER_2025.pdf",
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(fakePDF())
		})
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		listingHits++
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &fakeRecognizer{text: sheetText}
	doc := NewDocument(DocumentOptions{
		DocumentsURL: srv.URL + "/documents",
		ListingURL:   srv.URL + "/listing",
		Timeout:      5 * time.Second,
		Recognizer:   rec,
	}, zerolog.Nop())

	obs, err := doc.Extract(context.Background(), targetDay(t))
	if err != nil {
		t.Fatalf("直接命中不应报错: %v", err)
	}
	if listingHits != 0 {
		t.Fatal("直接命中时不应访问列表页")
	}
	if !rec.called {
		t.Fatal("无文本层的 PDF 应触发 OCR")
	}

	if obs.Gold == nil {
		t.Fatal("应产出金价一半")
	}
	if obs.Gold.USD.String() != "4671.87" || obs.Gold.ZWG.String() != "121519.17" {
		t.Fatalf("金价不正确: %+v", obs.Gold)
	}
	if obs.Gold.RateDate.Format("2006-01-02") != "2025-12-29" {
		t.Fatalf("金价日期不正确: %s", obs.Gold.RateDate)
	}
	if !strings.HasSuffix(obs.Gold.SourceURL, "MOSI_OA_TUNYA_PRICES_29_DECEMBER_2025.pdf") {
		t.Fatalf("来源 URL 不正确: %s", obs.Gold.SourceURL)
	}
	if obs.Exchange != nil {
		t.Fatal("文档不应产出汇率一半")
	}
}

func TestDocumentExtractListingFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><table>
<tr><td><a href="/documents/sheets/prices-24.pdf">Prices 24 December 2025</a></td><td>24-12-2025 08:31</td></tr>
<tr><td><a href="/documents/sheets/prices-29.pdf">Prices 29 December 2025</a></td><td>29-12-2025 08:45</td></tr>
<tr><td><a href="/documents/sheets/prices-30.pdf">Prices 30 December 2025</a></td><td>30-12-2025 08:40</td></tr>
</table></body></html>`))
	})
	mux.HandleFunc("/documents/sheets/prices-29.pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(fakePDF())
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &fakeRecognizer{text: sheetText}
	doc := NewDocument(DocumentOptions{
		DocumentsURL: srv.URL + "/documents",
		ListingURL:   srv.URL + "/listing",
		Timeout:      5 * time.Second,
		Recognizer:   rec,
	}, zerolog.Nop())

	obs, err := doc.Extract(context.Background(), targetDay(t))
	if err != nil {
		t.Fatalf("列表回退不应报错: %v", err)
	}
	if obs.Gold == nil || obs.Gold.USD.String() != "4671.87" {
		t.Fatalf("金价不正确: %+v", obs.Gold)
	}
	if !strings.HasSuffix(obs.Gold.SourceURL, "/documents/sheets/prices-29.pdf") {
		t.Fatalf("应选中 29 号的文档: %s", obs.Gold.SourceURL)
	}
}

func TestDocumentExtractNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/listing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
<a href="/documents/sheets/prices-30.pdf">Prices 30 December 2025</a>
</body></html>`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	doc := NewDocument(DocumentOptions{
		DocumentsURL: srv.URL + "/documents",
		ListingURL:   srv.URL + "/listing",
		Timeout:      5 * time.Second,
	}, zerolog.Nop())

	_, err := doc.Extract(context.Background(), targetDay(t))
	var xerr *Error
	if !errors.As(err, &xerr) {
		t.Fatalf("应返回类型化抓取错误: %v", err)
	}
	if xerr.Reason != ReasonNotFound {
		t.Fatalf("目标日前无文档应为 notfound: %+v", xerr)
	}
}

func TestDocumentExtractServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	doc := NewDocument(DocumentOptions{
		DocumentsURL: srv.URL + "/documents",
		ListingURL:   srv.URL + "/listing",
		Timeout:      5 * time.Second,
	}, zerolog.Nop())

	_, err := doc.Extract(context.Background(), targetDay(t))
	var xerr *Error
	if !errors.As(err, &xerr) {
		t.Fatalf("应返回类型化抓取错误: %v", err)
	}
	if xerr.Reason != ReasonNetwork {
		t.Fatalf("服务端错误应分类为 network: %+v", xerr)
	}
}

func TestDocumentExtractUnparseableSheet(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/documents/Mosi-Rates/2025/December/MOSI_OA_TUNYA_PRICES_29_DECEMBER_2025.pdf",
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(fakePDF())
		})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rec := &fakeRecognizer{text: "illegible scan"}
	doc := NewDocument(DocumentOptions{
		DocumentsURL: srv.URL + "/documents",
		Timeout:      5 * time.Second,
		Recognizer:   rec,
	}, zerolog.Nop())

	_, err := doc.Extract(context.Background(), targetDay(t))
	var xerr *Error
	if !errors.As(err, &xerr) {
		t.Fatalf("应返回类型化抓取错误: %v", err)
	}
	if xerr.Reason != ReasonParse {
		t.Fatalf("无法解析的文本应为 parse: %+v", xerr)
	}
}

func TestSelectDocumentCandidateOrdering(t *testing.T) {
	listing := `<html><body><table>
<tr><td><a href="/a.pdf">Prices 28 December 2025</a></td><td>28-12-2025 08:31</td></tr>
<tr><td><a href="/b.pdf">Prices 29 December 2025</a></td><td>29-12-2025 08:10</td></tr>
<tr><td><a href="/c.pdf">Prices 29 December 2025</a></td><td>29-12-2025 09:45</td></tr>
<tr><td><a href="/d.pdf">Prices 30 December 2025</a></td><td>30-12-2025 08:00</td></tr>
<tr><td><a href="/e.pdf">no date in this title</a></td><td>29-12-2025 07:00</td></tr>
</table></body></html>`

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listing))
	if err != nil {
		t.Fatalf("解析列表失败: %v", err)
	}

	href, ok := selectDocumentCandidate(doc, targetDay(t))
	if !ok {
		t.Fatal("应找到候选文档")
	}
	// same title date: the fresher publish stamp wins; 30th is after target
	if href != "/c.pdf" {
		t.Fatalf("候选选择不正确: %s", href)
	}
}

func TestDatedDocumentURL(t *testing.T) {
	day := time.Date(2025, time.December, 9, 0, 0, 0, 0, time.UTC)
	got := datedDocumentURL("https://www.rbz.co.zw/documents", day)
	want := "https://www.rbz.co.zw/documents/Mosi-Rates/2025/December/MOSI_OA_TUNYA_PRICES_9_DECEMBER_2025.pdf"
	if got != want {
		t.Fatalf("URL 不正确:\n got %s\nwant %s", got, want)
	}
}
