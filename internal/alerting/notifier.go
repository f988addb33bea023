package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-threshold-alerts/internal/domain"
)

// Kind separates per-run alerts from periodic reports for routing.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindReport Kind = "report"
)

// Section is one titled block of a message. Direction is empty for
// sections that belong to no single direction.
type Section struct {
	Direction domain.Direction
	Heading   string
	Lines     []string
	// Placeholder is shown when Lines is empty.
	Placeholder string
}

// Message 封装一次推送的内容。
type Message struct {
	Kind     Kind
	Title    string
	At       time.Time
	Sections []Section
}

// Text renders the message as plain text.
func (m Message) Text() string {
	return renderText(m.Title, m.Sections)
}

// ForDirection returns a copy limited to the sections of dir.
func (m Message) ForDirection(dir domain.Direction) Message {
	out := m
	out.Sections = nil
	for _, s := range m.Sections {
		if s.Direction == dir {
			out.Sections = append(out.Sections, s)
		}
	}
	return out
}

func renderText(title string, sections []Section) string {
	builder := strings.Builder{}
	if title != "" {
		builder.WriteString(title)
		builder.WriteString("\n\n")
	}
	for _, s := range sections {
		if s.Heading != "" {
			builder.WriteString(s.Heading)
			builder.WriteString("\n")
		}
		if len(s.Lines) == 0 && s.Placeholder != "" {
			builder.WriteString(s.Placeholder)
			builder.WriteString("\n")
		}
		for _, line := range s.Lines {
			builder.WriteString("- ")
			builder.WriteString(line)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}
	return strings.TrimRight(builder.String(), "\n")
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// MultiNotifier delivers to every channel and joins their errors.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier skips nil notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	out := make([]Notifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return &MultiNotifier{notifiers: out}
}

// Len returns the number of channels.
func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}

func (m *MultiNotifier) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    msg.Text(),
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
		return statusError("telegram", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("kind", string(msg.Kind)).Msg("告警已发送 (Telegram)")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*MultiNotifier)(nil)
)
