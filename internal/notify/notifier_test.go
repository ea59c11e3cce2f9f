package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleNotification() Notification {
	gold := decimal.NewFromFloat(99.1538)
	return Notification{
		RateDate:  time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC),
		Bid:       decimal.NewFromFloat(26.2),
		Ask:       decimal.NewFromFloat(27.26),
		Mid:       decimal.NewFromFloat(26.7312),
		GoldPrice: &gold,
		GoldUSD:   decimal.NewFromFloat(2650.5),
		Source:    "page",
		RunAt:     time.Date(2025, time.December, 29, 6, 30, 0, 0, time.UTC),
	}
}

func TestTelegramNotifySuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegram("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "2025-12-29") {
		t.Fatalf("消息应包含汇率日期: %q", received["text"])
	}
}

func TestTelegramNotifyError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegram("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderBody(t *testing.T) {
	body := renderBody(sampleNotification())

	for _, want := range []string{
		"RBZ rates stored for 2025-12-29",
		"USD/ZWG Bid: 26.2",
		"USD/ZWG Ask: 27.26",
		"USD/ZWG Mid: 26.7312",
		"USD: 2650.50",
		"Stored gold price: 99.1538",
		"Source: page",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("正文缺少 %q:\n%s", want, body)
		}
	}

	noGold := sampleNotification()
	noGold.GoldPrice = nil
	noGold.GoldUSD = decimal.Decimal{}
	if strings.Contains(renderBody(noGold), "Gold Coin") {
		t.Fatal("无黄金数据时不应出现黄金段落")
	}
}

func TestRenderSubject(t *testing.T) {
	if got := renderSubject(sampleNotification()); got != "RBZ Rates Updated - 2025-12-29" {
		t.Fatalf("主题不正确: %q", got)
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Notify(context.Context, Notification) error {
	s.calls++
	return s.err
}

func TestMultiFansOutAndAggregates(t *testing.T) {
	ok := &stubNotifier{}
	bad := &stubNotifier{err: errors.New("boom")}
	multi := NewMulti(testLogger(), bad, ok)

	err := multi.Notify(context.Background(), sampleNotification())
	if err == nil {
		t.Fatal("失败渠道应汇总为错误")
	}
	if ok.calls != 1 || bad.calls != 1 {
		t.Fatalf("所有渠道都应被调用: ok=%d bad=%d", ok.calls, bad.calls)
	}

	if !NewMulti(testLogger(), ok).Enabled() {
		t.Fatal("有渠道时 Enabled 应为 true")
	}
	if NewMulti(testLogger()).Enabled() {
		t.Fatal("无渠道时 Enabled 应为 false")
	}
}
