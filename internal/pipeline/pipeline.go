package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rbz-rates-watcher/internal/cache"
	"rbz-rates-watcher/internal/calendar"
	"rbz-rates-watcher/internal/extract"
	"rbz-rates-watcher/internal/history"
	"rbz-rates-watcher/internal/notify"
	"rbz-rates-watcher/internal/reconcile"
	"rbz-rates-watcher/internal/store"
)

// Status summarizes what one run did to the canonical store.
type Status string

const (
	StatusInserted        Status = "inserted"
	StatusUpdated         Status = "updated"
	StatusNoop            Status = "no-op"
	StatusNoData          Status = "no-data"
	StatusSkippedCalendar Status = "skipped-calendar"
	StatusAlreadyRecorded Status = "already-recorded"
)

// RunOptions tune a single pipeline execution.
type RunOptions struct {
	// Force bypasses the calendar gate and the history short-circuit.
	Force bool
	// DryRun computes the write plan but touches nothing.
	DryRun bool
	// Day overrides "today"; zero means now in the configured timezone.
	Day time.Time
}

// Result reports one run's outcome. It is only meaningful when Run returned
// a nil error.
type Result struct {
	RunID        string
	Status       Status
	RateDate     time.Time
	RecordID     int64
	GoldAttached bool
	Anomalies    []string
	DryRun       bool
}

// Options carry the pipeline's collaborators.
type Options struct {
	Gate        *calendar.Gate
	History     *history.Store
	Strategies  []extract.Strategy
	Gateway     store.Gateway
	Notifier    notify.Notifier
	Invalidator cache.Invalidator
	Divisor     reconcile.DivisorField
	Location    *time.Location
}

// Pipeline orchestrates one observation-to-write cycle: calendar gate,
// history short-circuit, the extraction chain, reconciliation, the write,
// and the post-write side effects.
type Pipeline struct {
	gate        *calendar.Gate
	history     *history.Store
	strategies  []extract.Strategy
	gateway     store.Gateway
	notifier    notify.Notifier
	invalidator cache.Invalidator
	divisor     reconcile.DivisorField
	location    *time.Location
	logger      zerolog.Logger
}

// New constructs the pipeline.
func New(opts Options, logger zerolog.Logger) *Pipeline {
	if opts.Divisor == "" {
		opts.Divisor = reconcile.DivisorMid
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		gate:        opts.Gate,
		history:     opts.History,
		strategies:  opts.Strategies,
		gateway:     opts.Gateway,
		notifier:    opts.Notifier,
		invalidator: opts.Invalidator,
		divisor:     opts.Divisor,
		location:    opts.Location,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run 执行一次完整的抓取-对账-写入周期。
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (Result, error) {
	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()

	day := opts.Day
	if day.IsZero() {
		day = time.Now().In(p.location)
	}
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	result := Result{RunID: runID, RateDate: day, DryRun: opts.DryRun}

	if !opts.Force {
		if !p.gate.IsEligible(day) {
			logger.Info().Time("day", day).Msg("非发布日, 跳过")
			result.Status = StatusSkippedCalendar
			return result, nil
		}
		if p.history != nil {
			done, err := p.history.HasRecordFor(ctx, day)
			if err != nil {
				return result, fmt.Errorf("check history for %s: %w", day.Format("2006-01-02"), err)
			}
			if done {
				logger.Info().Time("day", day).Msg("当日已完整记录, 跳过")
				result.Status = StatusAlreadyRecorded
				return result, nil
			}
		}
	}

	merged, hardFailures := p.collect(ctx, day, logger)
	if len(p.strategies) > 0 && hardFailures == len(p.strategies) {
		return result, fmt.Errorf("all %d extraction strategies failed", len(p.strategies))
	}

	target := reconcile.TargetDate(merged, day)
	var existing *store.FxRecord
	if !target.IsZero() {
		var err error
		existing, err = p.gateway.FindByDate(ctx, target)
		if err != nil {
			return result, fmt.Errorf("lookup record for %s: %w", target.Format("2006-01-02"), err)
		}
	}

	plan := reconcile.Decide(merged, existing, p.divisor, day)
	result.Anomalies = plan.Anomalies
	if !plan.RateDate.IsZero() {
		result.RateDate = plan.RateDate
	}
	for _, anomaly := range plan.Anomalies {
		logger.Warn().Str("anomaly", anomaly).Time("rate_date", plan.RateDate).Msg("数据异常, 照常入库")
	}

	switch plan.Action {
	case reconcile.ActionNoData:
		result.Status = StatusNoData
		logger.Info().Time("day", day).Msg("本轮无可用数据")
		return result, nil
	case reconcile.ActionNoop:
		result.Status = StatusNoop
		logger.Info().Time("rate_date", plan.RateDate).Msg("记录已齐全, 无需写入")
		if !opts.DryRun && existing != nil {
			p.mark(ctx, plan.RateDate, history.Coverage{Exchange: true, Gold: existing.HasGold()}, runID, logger)
		}
		return result, nil
	case reconcile.ActionInsert:
		return p.applyInsert(ctx, opts, plan, merged, result, logger)
	default:
		return p.applyUpdate(ctx, opts, plan, result, logger)
	}
}

// collect runs the strategy chain in order, stopping once both halves are in
// hand. The hard-failure count covers strategies that never got a readable
// response; parse and not-found failures leave the run as clean no-data.
func (p *Pipeline) collect(ctx context.Context, day time.Time, logger zerolog.Logger) (extract.Observation, int) {
	var merged extract.Observation
	hard := 0
	for _, strategy := range p.strategies {
		if reconcile.Sufficient(merged) {
			break
		}
		obs, err := strategy.Extract(ctx, day)
		if err != nil {
			if transportFailure(err) {
				hard++
			}
			logger.Warn().Err(err).Str("source", string(strategy.Source())).Msg("提取失败, 尝试下一来源")
			continue
		}
		if obs.Empty() {
			logger.Info().Str("source", string(strategy.Source())).Msg("来源无可用数据")
			continue
		}
		merged = reconcile.Merge(merged, obs)
		logger.Info().Str("source", string(strategy.Source())).
			Bool("exchange", obs.Exchange != nil).
			Bool("gold", obs.Gold.HasPrices()).
			Msg("来源提取完成")
	}
	return merged, hard
}

func (p *Pipeline) applyInsert(ctx context.Context, opts RunOptions, plan reconcile.Plan, merged extract.Observation, result Result, logger zerolog.Logger) (Result, error) {
	result.Status = StatusInserted
	result.GoldAttached = plan.Record.GoldPrice != nil
	if opts.DryRun {
		logger.Info().Time("rate_date", plan.RateDate).Bool("gold", result.GoldAttached).Msg("[dry-run] 将插入新记录")
		return result, nil
	}

	id, err := p.gateway.Insert(ctx, *plan.Record)
	if errors.Is(err, store.ErrDuplicateDate) {
		// 另一个写入者抢先占用了该日期, 降级为 no-op 并按库内状态补标记。
		logger.Warn().Time("rate_date", plan.RateDate).Msg("日期已被并发写入占用")
		result.Status = StatusNoop
		result.GoldAttached = false
		if refreshed, ferr := p.gateway.FindByDate(ctx, plan.RateDate); ferr == nil && refreshed != nil {
			p.mark(ctx, plan.RateDate, history.Coverage{Exchange: true, Gold: refreshed.HasGold()}, result.RunID, logger)
		}
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("insert record for %s: %w", plan.RateDate.Format("2006-01-02"), err)
	}
	result.RecordID = id

	logger.Info().Time("rate_date", plan.RateDate).Int64("id", id).
		Str("bid", plan.Record.BidRate.String()).
		Str("ask", plan.Record.AskRate.String()).
		Str("mid", plan.Record.MidRate.String()).
		Bool("gold", result.GoldAttached).
		Msg("新汇率已入库")

	p.mark(ctx, plan.RateDate, history.Coverage{Exchange: true, Gold: result.GoldAttached}, result.RunID, logger)

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, p.buildNotification(plan, merged, id)); err != nil {
			logger.Error().Err(err).Time("rate_date", plan.RateDate).Msg("通知发送失败")
		}
	}

	p.invalidate(ctx, plan.RateDate, logger)
	return result, nil
}

func (p *Pipeline) applyUpdate(ctx context.Context, opts RunOptions, plan reconcile.Plan, result Result, logger zerolog.Logger) (Result, error) {
	result.Status = StatusUpdated
	result.GoldAttached = true
	if opts.DryRun {
		logger.Info().Time("rate_date", plan.RateDate).Str("gold_price", plan.GoldValue.String()).Msg("[dry-run] 将补挂黄金价")
		return result, nil
	}

	attached, err := p.gateway.AttachGold(ctx, plan.RateDate, *plan.GoldValue)
	if err != nil {
		return result, fmt.Errorf("attach gold for %s: %w", plan.RateDate.Format("2006-01-02"), err)
	}
	if attached {
		logger.Info().Time("rate_date", plan.RateDate).Str("gold_price", plan.GoldValue.String()).Msg("黄金价已补挂")
	} else {
		// 竞争者先挂上了, 库内已完整。
		result.Status = StatusNoop
		result.GoldAttached = false
	}

	p.mark(ctx, plan.RateDate, history.Coverage{Exchange: true, Gold: true}, result.RunID, logger)

	if attached {
		p.invalidate(ctx, plan.RateDate, logger)
	}
	return result, nil
}

func (p *Pipeline) buildNotification(plan reconcile.Plan, merged extract.Observation, id int64) notify.Notification {
	note := notify.Notification{
		RateDate:  plan.RateDate,
		Bid:       plan.Record.BidRate,
		Ask:       plan.Record.AskRate,
		Mid:       plan.Record.MidRate,
		GoldPrice: plan.Record.GoldPrice,
		Source:    plan.Record.Source,
		RecordID:  id,
		RunAt:     time.Now().In(p.location),
	}
	if plan.Record.GoldPrice != nil && merged.Gold != nil {
		note.GoldUSD = merged.Gold.USD
		note.GoldZWG = merged.Gold.ZWG
	}
	return note
}

// mark records coverage in the history store. A failed mark after a
// confirmed write is only logged: the reconciler keeps writes idempotent on
// the next attempt regardless.
func (p *Pipeline) mark(ctx context.Context, day time.Time, cov history.Coverage, runID string, logger zerolog.Logger) {
	if p.history == nil {
		return
	}
	if err := p.history.MarkRecorded(ctx, day, cov, runID); err != nil {
		logger.Error().Err(err).Time("rate_date", day).Msg("写入历史标记失败")
	}
}

func (p *Pipeline) invalidate(ctx context.Context, day time.Time, logger zerolog.Logger) {
	if p.invalidator == nil {
		return
	}
	if _, err := p.invalidator.InvalidateForDate(ctx, day); err != nil {
		logger.Warn().Err(err).Time("rate_date", day).Msg("缓存失效失败")
	}
}

// transportFailure reports whether a strategy never got a readable response.
func transportFailure(err error) bool {
	var xerr *extract.Error
	if errors.As(err, &xerr) {
		return xerr.Reason == extract.ReasonTimeout || xerr.Reason == extract.ReasonNetwork
	}
	return true
}
