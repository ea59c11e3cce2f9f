package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"rbz-rates-watcher/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	History   HistoryConfig   `mapstructure:"history"`
	Source    SourceConfig    `mapstructure:"source"`
	Documents DocumentsConfig `mapstructure:"documents"`
	Gold      GoldConfig      `mapstructure:"gold"`
	Holidays  HolidaysConfig  `mapstructure:"holidays"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the canonical
// rates store. An empty DSN falls back to the credential profile.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// HistoryConfig locates the local scrape-history database.
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// SourceConfig governs the live-page scrape of the central bank site.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	PacingMin      time.Duration `mapstructure:"pacing_min"`
	PacingMax      time.Duration `mapstructure:"pacing_max"`
}

// DocumentsConfig governs the published-document fallback.
type DocumentsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ListingPath    string        `mapstructure:"listing_path"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MinTextChars   int           `mapstructure:"min_text_chars"`
	OCREnabled     bool          `mapstructure:"ocr_enabled"`
	OCRWorkDir     string        `mapstructure:"ocr_work_dir"`
}

// GoldConfig controls derived gold computation.
type GoldConfig struct {
	DivisorField string `mapstructure:"divisor_field"`
}

// HolidaysConfig covers the public-holiday calendar source.
type HolidaysConfig struct {
	APIBase        string        `mapstructure:"api_base"`
	Country        string        `mapstructure:"country"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig governs watch-mode cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// NotifyConfig defines notification routing.
type NotifyConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig holds SMTP settings. Empty fields fall back to the
// credential profile (smtp_host, smtp_user, ...).
type EmailConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	From    string `mapstructure:"from"`
	To      string `mapstructure:"to"`
}

// TelegramConfig 描述 Telegram 通知参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// CacheConfig covers Redis invalidation of the downstream API cache.
type CacheConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	DB             int           `mapstructure:"db"`
	Password       string        `mapstructure:"password"`
	KeyPattern     string        `mapstructure:"key_pattern"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
// A local .env file, when present, is folded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RBZWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rbzwatcher")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "Africa/Harare")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("history.path", "rates_history.db")

	v.SetDefault("source.base_url", "https://www.rbz.co.zw")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("source.request_timeout", "60s")
	v.SetDefault("source.pacing_min", "500ms")
	v.SetDefault("source.pacing_max", "2s")

	v.SetDefault("documents.base_url", "https://www.rbz.co.zw/documents")
	v.SetDefault("documents.listing_path", "/mosi-oa-tunya-gold-coin")
	v.SetDefault("documents.request_timeout", "30s")
	v.SetDefault("documents.min_text_chars", 40)
	v.SetDefault("documents.ocr_enabled", false)

	v.SetDefault("gold.divisor_field", "mid")

	v.SetDefault("holidays.api_base", "https://date.nager.at/api/v3")
	v.SetDefault("holidays.country", "ZW")
	v.SetDefault("holidays.cache_ttl", "168h")
	v.SetDefault("holidays.request_timeout", "10s")

	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.channels", []string{"email"})
	v.SetDefault("notify.email.enabled", false)
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.request_timeout", "5s")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.PacingMin < 0 || c.Source.PacingMax < c.Source.PacingMin {
		return fmt.Errorf("source pacing window is invalid")
	}
	switch c.Gold.DivisorField {
	case "bid", "ask", "mid":
	default:
		return fmt.Errorf("gold.divisor_field must be one of bid, ask, mid")
	}
	if c.Holidays.Country == "" {
		return fmt.Errorf("holidays.country is required")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.BotToken == "" {
			return fmt.Errorf("notify.telegram.bot_token 必须配置")
		}
		if c.Notify.Telegram.ChatID == "" {
			return fmt.Errorf("notify.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
