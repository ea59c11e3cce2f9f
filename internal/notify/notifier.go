package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Notification 封装一条已落库汇率记录的通知上下文。
type Notification struct {
	RateDate  time.Time
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Mid       decimal.Decimal
	GoldPrice *decimal.Decimal // derived figure as stored, nil when absent
	GoldUSD   decimal.Decimal  // published coin prices, zero when unseen
	GoldZWG   decimal.Decimal
	Source    string
	RecordID  int64
	RunAt     time.Time
}

// Notifier 定义通知输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Telegram 通过 Telegram Bot API 推送消息。
type Telegram struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegram 构造 Telegram 通知器。
func NewTelegram(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *Telegram {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *Telegram) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderBody(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Time("rate_date", note.RateDate).Msg("通知已发送 (Telegram)")
	return nil
}

func renderSubject(note Notification) string {
	return fmt.Sprintf("RBZ Rates Updated - %s", note.RateDate.Format("2006-01-02"))
}

func renderBody(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("RBZ rates stored for %s.\n\n", note.RateDate.Format("2006-01-02")))
	builder.WriteString("Exchange Rates:\n")
	builder.WriteString(fmt.Sprintf("  USD/ZWG Bid: %s\n", note.Bid))
	builder.WriteString(fmt.Sprintf("  USD/ZWG Ask: %s\n", note.Ask))
	builder.WriteString(fmt.Sprintf("  USD/ZWG Mid: %s\n", note.Mid))

	if !note.GoldUSD.IsZero() || !note.GoldZWG.IsZero() || note.GoldPrice != nil {
		builder.WriteString("\nGold Coin Prices (1oz):\n")
		if !note.GoldUSD.IsZero() {
			builder.WriteString(fmt.Sprintf("  USD: %s\n", note.GoldUSD.StringFixed(2)))
		}
		if !note.GoldZWG.IsZero() {
			builder.WriteString(fmt.Sprintf("  ZWG: %s\n", note.GoldZWG.StringFixed(2)))
		}
		if note.GoldPrice != nil {
			builder.WriteString(fmt.Sprintf("  Stored gold price: %s\n", note.GoldPrice))
		}
	}

	builder.WriteString(fmt.Sprintf("\nSource: %s\n", note.Source))
	if !note.RunAt.IsZero() {
		builder.WriteString(fmt.Sprintf("Recorded at: %s\n", note.RunAt.Format("2006-01-02 15:04:05 MST")))
	}
	return builder.String()
}

var _ Notifier = (*Telegram)(nil)
