package cache

import (
	"testing"
	"time"
)

func TestDateRelevant(t *testing.T) {
	day := time.Date(2025, time.December, 29, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		key  string
		want bool
	}{
		// 无日期参数的键默认服务"今天", 必须失效。
		{"myapp:/api/rates/fx-rates", true},
		{"myapp:/api/rates/fx-rates?limit=10", true},
		{"myapp:/api/rates/fx-rates?day=2025-12-29", true},
		{"myapp:/api/rates/fx-rates?day=2025-12-28", false},
		{"myapp:/api/rates/fx-rates?day=not-a-date", false},
		{"myapp:/api/rates/fx-rates?from=2025-12-01&to=2025-12-31", true},
		{"myapp:/api/rates/fx-rates?from=2025-12-29&to=2025-12-29", true},
		{"myapp:/api/rates/fx-rates?from=2025-11-01&to=2025-11-30", false},
		{"myapp:/api/rates/fx-rates?from=2025-12-01", false},
		{"myapp:/api/rates/fx-rates?from=bad&to=2025-12-31", false},
	}

	for _, tc := range cases {
		if got := dateRelevant(tc.key, day); got != tc.want {
			t.Fatalf("dateRelevant(%q) = %v, 期望 %v", tc.key, got, tc.want)
		}
	}
}
