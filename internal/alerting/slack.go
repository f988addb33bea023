package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-threshold-alerts/internal/domain"
)

// SlackOptions configure incoming-webhook delivery.
type SlackOptions struct {
	WebhookURL string
	// DownWebhookURL and UpWebhookURL receive per-direction sections when Split is set.
	DownWebhookURL string
	UpWebhookURL   string
	// ReportWebhookURL receives reports; WebhookURL is used when empty.
	ReportWebhookURL string
	Split            bool
	Username         string
	IconEmoji        string
	Timeout          time.Duration
}

// SlackNotifier posts block messages to Slack incoming webhooks.
type SlackNotifier struct {
	opts   SlackOptions
	client *http.Client
	logger zerolog.Logger
}

// NewSlackNotifier constructs a SlackNotifier.
func NewSlackNotifier(opts SlackOptions, logger zerolog.Logger) *SlackNotifier {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.Username == "" {
		opts.Username = "Stock-Alert-Bot"
	}
	if opts.IconEmoji == "" {
		opts.IconEmoji = ":bar_chart:"
	}
	return &SlackNotifier{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_slack").Logger(),
	}
}

// Notify routes msg. With Split, direction sections go to their own webhook;
// alerts send the remainder to the main webhook while reports always send the
// full message there.
func (s *SlackNotifier) Notify(ctx context.Context, msg Message) error {
	target := s.opts.WebhookURL
	if msg.Kind == KindReport && s.opts.ReportWebhookURL != "" {
		target = s.opts.ReportWebhookURL
	}

	if !s.opts.Split {
		return s.post(ctx, target, msg)
	}

	var errs []error
	routed := map[domain.Direction]bool{}
	for _, dir := range domain.Directions {
		url := s.directionURL(dir)
		if url == "" {
			continue
		}
		part := msg.ForDirection(dir)
		if len(part.Sections) == 0 {
			continue
		}
		routed[dir] = true
		part.Title = fmt.Sprintf("%s (%s)", msg.Title, strings.ToUpper(string(dir)))
		if err := s.post(ctx, url, part); err != nil {
			errs = append(errs, err)
		}
	}

	rest := msg
	if msg.Kind == KindAlert {
		rest.Sections = nil
		for _, sec := range msg.Sections {
			if !routed[sec.Direction] {
				rest.Sections = append(rest.Sections, sec)
			}
		}
	}
	if len(rest.Sections) > 0 {
		if err := s.post(ctx, target, rest); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *SlackNotifier) directionURL(dir domain.Direction) string {
	switch dir {
	case domain.DirectionDown:
		return s.opts.DownWebhookURL
	case domain.DirectionUp:
		return s.opts.UpWebhookURL
	default:
		return ""
	}
}

func (s *SlackNotifier) post(ctx context.Context, url string, msg Message) error {
	if url == "" {
		return errors.New("slack webhook url not configured")
	}

	body, err := json.Marshal(slackPayload{
		Username:  s.opts.Username,
		IconEmoji: s.opts.IconEmoji,
		Text:      msg.Title,
		Blocks:    slackBlocks(msg),
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError("slack", resp.StatusCode)
	}

	s.logger.Info().Str("kind", string(msg.Kind)).Int("sections", len(msg.Sections)).Msg("告警已发送 (Slack)")
	return nil
}

type slackPayload struct {
	Username  string       `json:"username,omitempty"`
	IconEmoji string       `json:"icon_emoji,omitempty"`
	Text      string       `json:"text,omitempty"`
	Blocks    []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func slackBlocks(msg Message) []slackBlock {
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: msg.Title, Emoji: true},
	}}
	for _, sec := range msg.Sections {
		var b strings.Builder
		if sec.Heading != "" {
			b.WriteString("*" + sec.Heading + "*\n")
		}
		if len(sec.Lines) == 0 && sec.Placeholder != "" {
			b.WriteString("_" + sec.Placeholder + "_")
		}
		for _, line := range sec.Lines {
			b.WriteString("• " + line + "\n")
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: strings.TrimRight(b.String(), "\n")},
		})
	}
	return blocks
}

var _ Notifier = (*SlackNotifier)(nil)
