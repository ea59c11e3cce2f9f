package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNagerPublicHolidays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/publicholidays/2025/ZW" {
			t.Fatalf("请求路径不正确: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]string{
			{"date": "2025-01-01", "name": "New Year's Day", "localName": "New Year's Day"},
			{"date": "2025-04-18", "name": "Independence Day", "localName": "Independence Day"},
		})
	}))
	defer srv.Close()

	client := NewNagerClient(NagerOptions{APIBase: srv.URL, Country: "ZW", Timeout: time.Second}, zerolog.Nop())

	holidays, err := client.PublicHolidays(context.Background(), 2025)
	if err != nil {
		t.Fatalf("获取假日不应报错: %v", err)
	}
	if len(holidays) != 2 {
		t.Fatalf("期望 2 个假日, 实际 %d", len(holidays))
	}

	day, err := holidays[0].Day()
	if err != nil {
		t.Fatalf("解析假日日期失败: %v", err)
	}
	if day.Month() != time.January || day.Day() != 1 {
		t.Fatalf("假日日期不正确: %s", day)
	}
}

func TestNagerPublicHolidaysServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewNagerClient(NagerOptions{APIBase: srv.URL, Timeout: time.Second}, zerolog.Nop())

	if _, err := client.PublicHolidays(context.Background(), 2025); err == nil {
		t.Fatal("非 200 响应应报错")
	}
}
