package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"
)

// EmailOptions 描述 SMTP 发送参数。From/To 为空时退回到登录账号。
type EmailOptions struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

// Email 通过 SMTP (STARTTLS) 发送纯文本通知。
type Email struct {
	opts   EmailOptions
	logger zerolog.Logger
}

func NewEmail(opts EmailOptions, logger zerolog.Logger) *Email {
	if opts.Port <= 0 {
		opts.Port = 587
	}
	if opts.From == "" {
		opts.From = opts.User
	}
	if opts.To == "" {
		opts.To = opts.User
	}
	return &Email{
		opts:   opts,
		logger: logger.With().Str("component", "notify_email").Logger(),
	}
}

func (n *Email) Notify(_ context.Context, note Notification) error {
	msg := email.NewEmail()
	msg.From = n.opts.From
	msg.To = []string{n.opts.To}
	msg.Subject = renderSubject(note)
	msg.Text = []byte(renderBody(note))

	addr := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
	if err := msg.Send(addr, smtp.PlainAuth("", n.opts.User, n.opts.Pass, n.opts.Host)); err != nil {
		return fmt.Errorf("send rates email: %w", err)
	}

	n.logger.Info().Str("to", n.opts.To).Time("rate_date", note.RateDate).Msg("通知已发送 (Email)")
	return nil
}

var _ Notifier = (*Email)(nil)
