package app

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"rbz-rates-watcher/internal/cache"
	"rbz-rates-watcher/internal/calendar"
	"rbz-rates-watcher/internal/config"
	"rbz-rates-watcher/internal/extract"
	"rbz-rates-watcher/internal/history"
	"rbz-rates-watcher/internal/notify"
	"rbz-rates-watcher/internal/pipeline"
	"rbz-rates-watcher/internal/reconcile"
	"rbz-rates-watcher/internal/store"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// runtime bundles the long-lived collaborators a pipeline pass needs. Watch
// reuses one runtime across ticks; one-shot commands build and tear it down
// around a single pass.
type runtime struct {
	app         *App
	hist        *history.Store
	gateway     *store.Store
	strategies  []extract.Strategy
	notifier    notify.Notifier
	invalidator cache.Invalidator
	divisor     reconcile.DivisorField
	location    *time.Location
}

func (a *App) newRuntime(ctx context.Context) (*runtime, error) {
	divisor, err := reconcile.ParseDivisorField(a.Config.Gold.DivisorField)
	if err != nil {
		return nil, err
	}

	hist, err := a.openHistory()
	if err != nil {
		return nil, err
	}

	gateway, err := a.openGateway(ctx, hist)
	if err != nil {
		hist.Close()
		return nil, err
	}

	return &runtime{
		app:         a,
		hist:        hist,
		gateway:     gateway,
		strategies:  a.newStrategies(),
		notifier:    a.newNotifier(ctx, hist),
		invalidator: a.newInvalidator(ctx, hist),
		divisor:     divisor,
		location:    a.Config.Location(),
	}, nil
}

func (rt *runtime) close() {
	if closer, ok := rt.invalidator.(interface{ Close() error }); ok {
		closer.Close()
	}
	rt.gateway.Close()
	if err := rt.hist.Close(); err != nil {
		rt.app.Logger.Warn().Err(err).Msg("关闭历史库失败")
	}
}

// run builds the trading-day gate for the target day and executes one
// pipeline pass with the given strategy chain.
func (rt *runtime) run(ctx context.Context, strategies []extract.Strategy, opts pipeline.RunOptions) (pipeline.Result, error) {
	day := opts.Day
	if day.IsZero() {
		day = time.Now().In(rt.location)
	}

	pipe := pipeline.New(pipeline.Options{
		Gate:        rt.app.buildGate(ctx, rt.hist, day),
		History:     rt.hist,
		Strategies:  strategies,
		Gateway:     rt.gateway,
		Notifier:    rt.notifier,
		Invalidator: rt.invalidator,
		Divisor:     rt.divisor,
		Location:    rt.location,
	}, rt.app.Logger)

	return pipe.Run(ctx, opts)
}

func (a *App) openHistory() (*history.Store, error) {
	return history.Open(a.Config.History.Path)
}

func (a *App) openGateway(ctx context.Context, hist *history.Store) (*store.Store, error) {
	dsn, err := a.resolveDSN(ctx, hist)
	if err != nil {
		return nil, err
	}

	pool, err := store.NewPool(ctx, dsn, a.Config.Database)
	if err != nil {
		return nil, err
	}
	return store.NewStore(pool), nil
}

// buildGate assembles the trading-day gate for the year containing day.
// Holiday data degrades: fresh cache, then the API, then a stale cache,
// then weekend-only gating.
func (a *App) buildGate(ctx context.Context, hist *history.Store, day time.Time) *calendar.Gate {
	year := day.Year()
	days, err := a.loadHolidays(ctx, hist, year)
	if err != nil {
		a.Logger.Warn().Err(err).Int("year", year).Msg("节假日数据不可用,仅按周末规则拦截")
		return calendar.NewGate(nil)
	}
	return calendar.NewGate(days)
}

func (a *App) loadHolidays(ctx context.Context, hist *history.Store, year int) ([]time.Time, error) {
	fresh, err := hist.HasFreshHolidays(ctx, year, a.Config.Holidays.CacheTTL)
	if err == nil && fresh {
		return hist.CachedHolidays(ctx, year)
	}

	client := calendar.NewNagerClient(calendar.NagerOptions{
		APIBase: a.Config.Holidays.APIBase,
		Country: a.Config.Holidays.Country,
		Timeout: a.Config.Holidays.RequestTimeout,
	}, a.Logger)

	holidays, fetchErr := client.PublicHolidays(ctx, year)
	if fetchErr == nil {
		if err := hist.StoreHolidays(ctx, year, holidays); err != nil {
			a.Logger.Warn().Err(err).Msg("缓存节假日失败")
		}
		days := make([]time.Time, 0, len(holidays))
		for _, h := range holidays {
			d, dayErr := h.Day()
			if dayErr != nil {
				continue
			}
			days = append(days, d)
		}
		return days, nil
	}

	a.Logger.Warn().Err(fetchErr).Int("year", year).Msg("拉取节假日失败,回退到本地缓存")
	days, cacheErr := hist.CachedHolidays(ctx, year)
	if cacheErr != nil || len(days) == 0 {
		return nil, fetchErr
	}
	return days, nil
}

// newStrategies builds the extraction chain in fallback order: the live
// page first, the published price sheets second.
func (a *App) newStrategies() []extract.Strategy {
	src := a.Config.Source
	page := extract.NewPage(extract.PageOptions{
		BaseURL:   src.BaseURL,
		UserAgent: src.UserAgent,
		Timeout:   src.RequestTimeout,
		PacingMin: src.PacingMin,
		PacingMax: src.PacingMax,
	}, a.Logger)

	docs := a.Config.Documents
	var recognizer extract.Recognizer
	if docs.OCREnabled {
		recognizer = extract.NewExecRecognizer(docs.OCRWorkDir, a.Logger)
	}
	document := extract.NewDocument(extract.DocumentOptions{
		DocumentsURL: docs.BaseURL,
		ListingURL:   strings.TrimRight(docs.BaseURL, "/") + docs.ListingPath,
		UserAgent:    src.UserAgent,
		Timeout:      docs.RequestTimeout,
		MinTextChars: docs.MinTextChars,
		Recognizer:   recognizer,
	}, a.Logger)

	return []extract.Strategy{page, document}
}

// newNotifier assembles the configured channels. Returns nil when nothing
// usable is enabled so the pipeline skips notification entirely.
func (a *App) newNotifier(ctx context.Context, hist *history.Store) notify.Notifier {
	if !a.Config.Notify.Enabled {
		return nil
	}

	var channels []notify.Notifier
	for _, name := range a.Config.Notify.Channels {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "email":
			if n := a.newEmailNotifier(ctx, hist); n != nil {
				channels = append(channels, n)
			}
		case "telegram":
			if n := a.newTelegramNotifier(ctx, hist); n != nil {
				channels = append(channels, n)
			}
		default:
			a.Logger.Warn().Str("channel", name).Msg("未知的通知渠道,已忽略")
		}
	}

	if len(channels) == 0 {
		return nil
	}
	return notify.NewMulti(a.Logger, channels...)
}

// newEmailNotifier resolves SMTP settings config-first, then from the
// credential store (smtp_host, smtp_port, smtp_user, smtp_pass, smtp_from,
// smtp_to, smtp_enabled).
func (a *App) newEmailNotifier(ctx context.Context, hist *history.Store) notify.Notifier {
	cfg := a.Config.Notify.Email
	opts := notify.EmailOptions{
		Host: cfg.Host,
		Port: cfg.Port,
		User: cfg.User,
		Pass: cfg.Pass,
		From: cfg.From,
		To:   cfg.To,
	}

	enabled := cfg.Enabled
	if !enabled {
		if v, ok, err := hist.Credential(ctx, "smtp_enabled"); err == nil && ok {
			enabled = strings.EqualFold(strings.TrimSpace(v), "true")
		}
	}
	opts.Host = fallbackCredential(ctx, hist, opts.Host, "smtp_host")
	if opts.Port == 0 {
		if v, ok, err := hist.Credential(ctx, "smtp_port"); err == nil && ok {
			if port, convErr := strconv.Atoi(strings.TrimSpace(v)); convErr == nil {
				opts.Port = port
			}
		}
	}
	opts.User = fallbackCredential(ctx, hist, opts.User, "smtp_user")
	opts.Pass = fallbackCredential(ctx, hist, opts.Pass, "smtp_pass")
	opts.From = fallbackCredential(ctx, hist, opts.From, "smtp_from")
	opts.To = fallbackCredential(ctx, hist, opts.To, "smtp_to")

	if !enabled {
		return nil
	}
	if opts.Host == "" || (opts.User == "" && opts.From == "") {
		a.Logger.Warn().Msg("邮件通知已启用但 SMTP 配置不完整,跳过该渠道")
		return nil
	}
	return notify.NewEmail(opts, a.Logger)
}

// newTelegramNotifier resolves the bot token and chat id config-first, then
// from the credential store (telegram_token, telegram_chat_id).
func (a *App) newTelegramNotifier(ctx context.Context, hist *history.Store) notify.Notifier {
	cfg := a.Config.Notify.Telegram
	if !cfg.Enabled {
		return nil
	}

	token := fallbackCredential(ctx, hist, cfg.BotToken, "telegram_token")
	chatID := fallbackCredential(ctx, hist, cfg.ChatID, "telegram_chat_id")
	if token == "" || chatID == "" {
		a.Logger.Warn().Msg("Telegram 通知已启用但缺少 token 或 chat id,跳过该渠道")
		return nil
	}
	return notify.NewTelegram(token, chatID, cfg.APIBase, 10*time.Second, a.Logger)
}

// newInvalidator wires the Redis invalidator; the key pattern may live in
// the credential store (cache_pattern) instead of the config file.
func (a *App) newInvalidator(ctx context.Context, hist *history.Store) cache.Invalidator {
	cfg := a.Config.Cache
	if !cfg.Enabled {
		return nil
	}

	pattern := cfg.KeyPattern
	if pattern == "" {
		if v, ok, err := hist.Credential(ctx, "cache_pattern"); err == nil && ok {
			pattern = strings.TrimSpace(v)
		}
	}

	return cache.NewRedisInvalidator(cache.Options{
		Addr:       cfg.Addr,
		DB:         cfg.DB,
		Password:   cfg.Password,
		KeyPattern: pattern,
		Timeout:    cfg.RequestTimeout,
	}, a.Logger)
}

func fallbackCredential(ctx context.Context, hist *history.Store, current, key string) string {
	if current != "" {
		return current
	}
	if v, ok, err := hist.Credential(ctx, key); err == nil && ok {
		return strings.TrimSpace(v)
	}
	return current
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting canonical history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// FeedOptions describe an operator-supplied observation.
type FeedOptions struct {
	Date     time.Time
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	Mid      decimal.Decimal
	GoldUSD  decimal.Decimal
	GoldZWG  decimal.Decimal
	GoldDate time.Time
	DryRun   bool
}
