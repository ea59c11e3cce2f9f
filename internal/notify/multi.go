package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Multi 把一条通知扇出到所有已配置的渠道。单个渠道失败只记日志,
// 其余渠道照常发送; 汇总错误交由调用方决定如何计数。
type Multi struct {
	notifiers []Notifier
	logger    zerolog.Logger
}

func NewMulti(logger zerolog.Logger, notifiers ...Notifier) *Multi {
	return &Multi{
		notifiers: notifiers,
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// Enabled reports whether any channel is configured at all.
func (m *Multi) Enabled() bool {
	return len(m.notifiers) > 0
}

func (m *Multi) Notify(ctx context.Context, note Notification) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, note); err != nil {
			m.logger.Error().Err(err).Time("rate_date", note.RateDate).Msg("渠道发送失败")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Notifier = (*Multi)(nil)
