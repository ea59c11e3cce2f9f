package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"rbz-rates-watcher/internal/extract"
	"rbz-rates-watcher/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func exchangeObs(t time.Time, bid, ask, mid float64, src extract.Source) *extract.ExchangeRates {
	return &extract.ExchangeRates{
		RateDate: t,
		Bid:      decimal.NewFromFloat(bid),
		Ask:      decimal.NewFromFloat(ask),
		Mid:      decimal.NewFromFloat(mid),
		Source:   src,
	}
}

func goldObs(t time.Time, usd float64, src extract.Source) *extract.GoldRates {
	return &extract.GoldRates{
		RateDate: t,
		USD:      decimal.NewFromFloat(usd),
		Source:   src,
	}
}

func TestMergeTakesEachHalfFromFirstProvider(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	page := extract.Observation{Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage)}
	doc := extract.Observation{
		Exchange: exchangeObs(rateDay, 99, 99, 99, extract.SourceDocument),
		Gold:     goldObs(rateDay, 2650.5, extract.SourceDocument),
	}

	merged := Merge(page, doc)
	if merged.Exchange == nil || merged.Exchange.Source != extract.SourcePage {
		t.Fatalf("汇率一半应来自首个提供者: %+v", merged.Exchange)
	}
	if merged.Exchange.Mid.String() != "26.7312" {
		t.Fatalf("汇率字段不应被后续来源覆盖: %s", merged.Exchange.Mid)
	}
	if !merged.Gold.HasPrices() || merged.Gold.Source != extract.SourceDocument {
		t.Fatalf("黄金一半应由后备来源补齐: %+v", merged.Gold)
	}
}

func TestMergeSkipsEmptyGoldHalf(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	// A present-but-priceless gold half must not block the fallback's gold.
	first := extract.Observation{Gold: &extract.GoldRates{RateDate: rateDay, Source: extract.SourcePage}}
	second := extract.Observation{Gold: goldObs(rateDay, 2650.5, extract.SourceDocument)}

	merged := Merge(first, second)
	if !merged.Gold.HasPrices() {
		t.Fatal("空黄金数据不应挡住后备来源")
	}
	if merged.Gold.Source != extract.SourceDocument {
		t.Fatalf("黄金来源不正确: %s", merged.Gold.Source)
	}
	if merged.Exchange != nil {
		t.Fatal("无人提供汇率时应保持缺失")
	}
}

func TestSufficient(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	both := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage),
		Gold:     goldObs(rateDay, 2650.5, extract.SourcePage),
	}
	if !Sufficient(both) {
		t.Fatal("两半齐全时应视为足够")
	}
	if Sufficient(extract.Observation{Exchange: both.Exchange}) {
		t.Fatal("缺黄金时不应视为足够")
	}
	if Sufficient(extract.Observation{Gold: both.Gold}) {
		t.Fatal("缺汇率时不应视为足够")
	}
}

func TestParseDivisorField(t *testing.T) {
	cases := []struct {
		in      string
		want    DivisorField
		wantErr bool
	}{
		{"bid", DivisorBid, false},
		{"ASK", DivisorAsk, false},
		{" mid ", DivisorMid, false},
		{"median", "", true},
		{"", "", true},
	}
	for _, tc := range cases {
		got, err := ParseDivisorField(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%q 应解析失败", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q 解析失败: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%q 解析为 %q, 期望 %q", tc.in, got, tc.want)
		}
	}
}

func TestDeriveGoldRoundsToFourPlaces(t *testing.T) {
	got, ok := DeriveGold(decimal.NewFromFloat(2650.5), decimal.NewFromFloat(26.7312))
	if !ok {
		t.Fatal("正常汇率下换算不应失败")
	}
	if got.String() != "99.1538" {
		t.Fatalf("换算结果应为 99.1538, 实际 %s", got)
	}

	if _, ok := DeriveGold(decimal.NewFromInt(2650), decimal.Decimal{}); ok {
		t.Fatal("零汇率不可作除数")
	}
	if _, ok := DeriveGold(decimal.NewFromInt(2650), decimal.NewFromInt(-1)); ok {
		t.Fatal("负汇率不可作除数")
	}
}

func TestDecideInsertWithMatchingGold(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	obs := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage),
		Gold:     goldObs(rateDay, 2650.5, extract.SourceDocument),
	}

	plan := Decide(obs, nil, DivisorMid, rateDay)
	if plan.Action != ActionInsert {
		t.Fatalf("无已有记录时应插入, 实际 %s", plan.Action)
	}
	if plan.Record == nil {
		t.Fatal("插入计划缺少记录")
	}
	if !plan.RateDate.Equal(rateDay) {
		t.Fatalf("日期不正确: %s", plan.RateDate)
	}
	if plan.Record.BidRate.String() != "26.2" || plan.Record.AskRate.String() != "27.26" {
		t.Fatalf("汇率字段映射不正确: %+v", plan.Record)
	}
	if plan.Record.Source != "page" {
		t.Fatalf("来源应取自汇率一半: %s", plan.Record.Source)
	}
	if plan.Record.GoldPrice == nil || plan.Record.GoldPrice.String() != "99.1538" {
		t.Fatalf("派生黄金价应为 99.1538: %v", plan.Record.GoldPrice)
	}
	if len(plan.Anomalies) != 0 {
		t.Fatalf("正常数据不应有异常: %v", plan.Anomalies)
	}
}

func TestDecideInsertIgnoresMismatchedGoldDate(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	obs := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage),
		Gold:     goldObs(day(2025, time.December, 24), 2650.5, extract.SourceDocument),
	}

	plan := Decide(obs, nil, DivisorMid, rateDay)
	if plan.Action != ActionInsert {
		t.Fatalf("应照常插入汇率: %s", plan.Action)
	}
	if plan.Record.GoldPrice != nil {
		t.Fatalf("日期不符的黄金不应随插入落库: %v", plan.Record.GoldPrice)
	}
}

func TestDecideInsertHonorsDivisorField(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	obs := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage),
		Gold:     goldObs(rateDay, 2650.5, extract.SourceDocument),
	}

	plan := Decide(obs, nil, DivisorBid, rateDay)
	if plan.Record.GoldPrice == nil || plan.Record.GoldPrice.String() != "101.1641" {
		t.Fatalf("按 bid 换算应为 101.1641: %v", plan.Record.GoldPrice)
	}
}

func TestDecideInsertFallsBackToRunDate(t *testing.T) {
	runDay := day(2025, time.December, 29)
	obs := extract.Observation{
		Exchange: exchangeObs(time.Time{}, 26.2, 27.26, 26.7312, extract.SourcePage),
	}

	plan := Decide(obs, nil, DivisorMid, runDay)
	if plan.Action != ActionInsert {
		t.Fatalf("缺头部日期仍应插入: %s", plan.Action)
	}
	if !plan.RateDate.Equal(runDay) {
		t.Fatalf("应回退到运行日: %s", plan.RateDate)
	}
}

func TestDecideInsertSkipsGoldOnUnusableDivisor(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	obs := extract.Observation{
		Exchange: exchangeObs(rateDay, 0, 0, 0, extract.SourcePage),
		Gold:     goldObs(rateDay, 2650.5, extract.SourceDocument),
	}

	plan := Decide(obs, nil, DivisorMid, rateDay)
	if plan.Action != ActionInsert {
		t.Fatalf("汇率仍应插入: %s", plan.Action)
	}
	if plan.Record.GoldPrice != nil {
		t.Fatal("除数为零时不应派生黄金价")
	}
	if len(plan.Anomalies) == 0 {
		t.Fatal("跳过派生应记录异常")
	}
}

func TestDecideNoopWhenRecordComplete(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	gold := decimal.NewFromFloat(99.1538)
	existing := &store.FxRecord{
		RateDate:  rateDay,
		BidRate:   decimal.NewFromFloat(26.2),
		AskRate:   decimal.NewFromFloat(27.26),
		MidRate:   decimal.NewFromFloat(26.7312),
		GoldPrice: &gold,
	}
	obs := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage),
		Gold:     goldObs(rateDay, 2650.5, extract.SourceDocument),
	}

	plan := Decide(obs, existing, DivisorMid, rateDay)
	if plan.Action != ActionNoop {
		t.Fatalf("完整记录应为 no-op: %s", plan.Action)
	}
	if plan.Record != nil || plan.GoldValue != nil {
		t.Fatal("no-op 不应携带写入负载")
	}
}

func TestDecideUpdateDerivesAgainstStoredRate(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	existing := &store.FxRecord{
		RateDate: rateDay,
		BidRate:  decimal.NewFromFloat(24.5),
		AskRate:  decimal.NewFromFloat(25.5),
		MidRate:  decimal.NewFromInt(25),
	}
	// The fresh observation carries a different mid; the stored one must win.
	obs := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 26.7312, extract.SourcePage),
		Gold:     goldObs(rateDay, 2500, extract.SourceDocument),
	}

	plan := Decide(obs, existing, DivisorMid, rateDay)
	if plan.Action != ActionUpdate {
		t.Fatalf("缺黄金的记录应更新: %s", plan.Action)
	}
	if plan.GoldValue == nil || plan.GoldValue.String() != "100" {
		t.Fatalf("应按已存 mid=25 换算得 100: %v", plan.GoldValue)
	}
}

func TestDecideGoldOnly(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	obs := extract.Observation{Gold: goldObs(rateDay, 2500, extract.SourceDocument)}

	plan := Decide(obs, nil, DivisorMid, rateDay)
	if plan.Action != ActionNoData {
		t.Fatalf("无记录可挂黄金时应为 no-data: %s", plan.Action)
	}

	existing := &store.FxRecord{
		RateDate: rateDay,
		BidRate:  decimal.NewFromFloat(24.5),
		AskRate:  decimal.NewFromFloat(25.5),
		MidRate:  decimal.NewFromInt(25),
	}
	plan = Decide(obs, existing, DivisorMid, rateDay)
	if plan.Action != ActionUpdate {
		t.Fatalf("仅黄金也应能补齐已有记录: %s", plan.Action)
	}
	if plan.GoldValue == nil || plan.GoldValue.String() != "100" {
		t.Fatalf("换算结果不正确: %v", plan.GoldValue)
	}

	gold := decimal.NewFromInt(100)
	existing.GoldPrice = &gold
	plan = Decide(obs, existing, DivisorMid, rateDay)
	if plan.Action != ActionNoop {
		t.Fatalf("黄金已在库时应为 no-op: %s", plan.Action)
	}

	undated := extract.Observation{Gold: goldObs(time.Time{}, 2500, extract.SourceDocument)}
	plan = Decide(undated, existing, DivisorMid, rateDay)
	if plan.Action != ActionNoData {
		t.Fatalf("无日期的黄金无法归属: %s", plan.Action)
	}
}

func TestDecideEmptyObservation(t *testing.T) {
	plan := Decide(extract.Observation{}, nil, DivisorMid, day(2025, time.December, 29))
	if plan.Action != ActionNoData {
		t.Fatalf("空观察应为 no-data: %s", plan.Action)
	}
}

func TestDecideFlagsAnomalies(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	outOfBand := extract.Observation{
		Exchange: exchangeObs(rateDay, 26.2, 27.26, 30, extract.SourcePage),
	}
	plan := Decide(outOfBand, nil, DivisorMid, rateDay)
	if plan.Action != ActionInsert {
		t.Fatalf("异常只记录不拦截: %s", plan.Action)
	}
	if len(plan.Anomalies) != 1 {
		t.Fatalf("mid 越界应记一条异常: %v", plan.Anomalies)
	}

	negative := extract.Observation{
		Exchange: exchangeObs(rateDay, -26.2, 27.26, 26.7312, extract.SourcePage),
	}
	plan = Decide(negative, nil, DivisorMid, rateDay)
	if len(plan.Anomalies) == 0 {
		t.Fatal("负值应记异常")
	}
}

func TestTargetDate(t *testing.T) {
	rateDay := day(2025, time.December, 29)
	fallback := day(2025, time.December, 30)

	withDate := extract.Observation{Exchange: exchangeObs(rateDay, 1, 1, 1, extract.SourcePage)}
	if got := TargetDate(withDate, fallback); !got.Equal(rateDay) {
		t.Fatalf("应取汇率头部日期: %s", got)
	}

	withoutDate := extract.Observation{Exchange: exchangeObs(time.Time{}, 1, 1, 1, extract.SourcePage)}
	if got := TargetDate(withoutDate, fallback); !got.Equal(fallback) {
		t.Fatalf("缺头部日期应回退: %s", got)
	}

	goldOnly := extract.Observation{Gold: goldObs(rateDay, 2500, extract.SourceDocument)}
	if got := TargetDate(goldOnly, fallback); !got.Equal(rateDay) {
		t.Fatalf("仅黄金时应取黄金日期: %s", got)
	}

	if got := TargetDate(extract.Observation{}, fallback); !got.IsZero() {
		t.Fatalf("空观察应得零日期: %s", got)
	}
}
