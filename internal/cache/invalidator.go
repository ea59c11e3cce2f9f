package cache

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultKeyPattern matches the downstream API's rate endpoints when no
// pattern is configured.
const DefaultKeyPattern = "*/api/rates/fx-rates"

// Options 描述 Redis 连接与失效参数。
type Options struct {
	Addr       string
	DB         int
	Password   string
	KeyPattern string
	Timeout    time.Duration
}

// Invalidator 定义缓存失效接口。
type Invalidator interface {
	InvalidateForDate(ctx context.Context, day time.Time) (int, error)
}

// RedisInvalidator clears cached API responses that a fresh rate record
// makes stale. Keys are matched by pattern, then filtered by whether their
// query parameters concern the record's date.
type RedisInvalidator struct {
	client  *redis.Client
	pattern string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewRedisInvalidator(opts Options, logger zerolog.Logger) *RedisInvalidator {
	pattern := opts.KeyPattern
	if pattern == "" {
		pattern = DefaultKeyPattern
	}
	return &RedisInvalidator{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			DB:       opts.DB,
			Password: opts.Password,
		}),
		pattern: pattern,
		timeout: opts.Timeout,
		logger:  logger.With().Str("component", "cache").Logger(),
	}
}

// InvalidateForDate unlinks every matching key whose cached response covers
// day. Returns the number of keys cleared.
func (i *RedisInvalidator) InvalidateForDate(ctx context.Context, day time.Time) (int, error) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	// 配置的模式形如 */api/rates/fx-rates, 追加 * 以连带命中带查询串的键。
	search := i.pattern
	if !strings.HasSuffix(search, "*") {
		search += "*"
	}

	var stale []string
	iter := i.client.Scan(ctx, 0, search, 0).Iterator()
	for iter.Next(ctx) {
		if dateRelevant(iter.Val(), day) {
			stale = append(stale, iter.Val())
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}

	if len(stale) == 0 {
		i.logger.Debug().Str("pattern", search).Time("rate_date", day).Msg("无相关缓存键")
		return 0, nil
	}

	if err := i.client.Unlink(ctx, stale...).Err(); err != nil {
		return 0, fmt.Errorf("unlink cache keys: %w", err)
	}

	i.logger.Info().Int("keys", len(stale)).Time("rate_date", day).Msg("缓存已失效")
	return len(stale), nil
}

func (i *RedisInvalidator) Close() error {
	return i.client.Close()
}

var _ Invalidator = (*RedisInvalidator)(nil)

// dateRelevant reports whether a cached key's response can contain data for
// day. Keys without date parameters are assumed to serve "today" and are
// always stale; a day parameter must match exactly; a from/to pair must
// bracket the date. Unparseable parameters mean not relevant.
func dateRelevant(key string, day time.Time) bool {
	_, rawQuery, found := strings.Cut(key, "?")
	if !found {
		return true
	}
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return false
	}

	dayParam := params.Get("day")
	fromParam := params.Get("from")
	toParam := params.Get("to")
	if dayParam == "" && fromParam == "" && toParam == "" {
		return true
	}

	target := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	if dayParam != "" {
		if cached, err := time.Parse("2006-01-02", dayParam); err == nil && cached.Equal(target) {
			return true
		}
	}

	if fromParam != "" && toParam != "" {
		from, errFrom := time.Parse("2006-01-02", fromParam)
		to, errTo := time.Parse("2006-01-02", toParam)
		if errFrom == nil && errTo == nil && !target.Before(from) && !target.After(to) {
			return true
		}
	}

	return false
}
