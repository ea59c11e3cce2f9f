package calendar

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		t.Fatalf("解析日期失败: %v", err)
	}
	return d
}

func TestGateWeekend(t *testing.T) {
	gate := NewGate(nil)

	if gate.IsEligible(mustDate(t, "2025-12-27")) {
		t.Fatal("周六不应为发布日")
	}
	if gate.IsEligible(mustDate(t, "2025-12-28")) {
		t.Fatal("周日不应为发布日")
	}
	if !gate.IsEligible(mustDate(t, "2025-12-29")) {
		t.Fatal("周一应为发布日")
	}
}

func TestGateHoliday(t *testing.T) {
	christmas := mustDate(t, "2025-12-25")
	gate := NewGate([]time.Time{christmas})

	if gate.IsEligible(christmas) {
		t.Fatal("公共假日不应为发布日")
	}
	if !gate.IsEligible(mustDate(t, "2025-12-24")) {
		t.Fatal("假日前一天应为发布日")
	}
	if gate.HolidayCount() != 1 {
		t.Fatalf("假日数量应为 1, 实际 %d", gate.HolidayCount())
	}
}

func TestGateEmptyHolidaySet(t *testing.T) {
	gate := NewGate([]time.Time{})
	if !gate.IsEligible(mustDate(t, "2026-08-19")) {
		t.Fatal("无假日数据时工作日应为发布日")
	}
}
