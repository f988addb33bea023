package alerting

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stock-threshold-alerts/internal/domain"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func sampleDigest() Digest {
	return Digest{
		At: time.Date(2026, 10, 16, 1, 30, 0, 0, time.UTC),
		Breaches: []Breach{
			{Name: "삼성전자", Symbol: "005930.KS", Market: domain.MarketDomestic, Direction: domain.DirectionDown, Price: decimal.NewFromInt(69800), Threshold: decimal.NewFromInt(70000)},
			{Name: "Apple", Symbol: "AAPL", Market: domain.MarketForeign, Direction: domain.DirectionUp, Price: decimal.RequireFromString("1234.5"), Threshold: decimal.NewFromInt(1200)},
		},
		Issues: []Issue{{Name: "NAVER", Symbol: "035420.KS", Reason: "no_observation"}},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	msg := RenderAlerts(sampleDigest(), time.UTC)

	if err := notifier.Notify(context.Background(), msg); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "69,800 ≤ 70,000") {
		t.Fatalf("text 应包含下破行: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), RenderAlerts(sampleDigest(), time.UTC)); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestRenderAlertsOrderAndFormatting(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	msg := RenderAlerts(sampleDigest(), kst)

	require.Equal(t, KindAlert, msg.Kind)
	require.Contains(t, msg.Title, "2026-10-16 10:30:00 KST")
	require.Len(t, msg.Sections, 3)
	require.Equal(t, domain.DirectionUp, msg.Sections[0].Direction)
	require.Equal(t, []string{"Apple (AAPL): 1,234.50 ≥ 1,200.00"}, msg.Sections[0].Lines)
	require.Equal(t, domain.DirectionDown, msg.Sections[1].Direction)
	require.Equal(t, []string{"삼성전자 (005930.KS): 69,800 ≤ 70,000"}, msg.Sections[1].Lines)
	require.Equal(t, domain.Direction(""), msg.Sections[2].Direction)
}

func TestFormatPriceDomesticDropsFraction(t *testing.T) {
	require.Equal(t, "1,234,568", FormatPrice(domain.MarketDomestic, decimal.RequireFromString("1234567.5")))
	require.Equal(t, "0.50", FormatPrice(domain.MarketForeign, decimal.RequireFromString("0.5")))
}

type slackCapture struct {
	mu    sync.Mutex
	paths map[string][]slackPayload
}

func (c *slackCapture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p slackPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode slack payload: %v", err)
		}
		c.mu.Lock()
		c.paths[r.URL.Path] = append(c.paths[r.URL.Path], p)
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func TestSlackSplitRoutesDirections(t *testing.T) {
	capture := &slackCapture{paths: map[string][]slackPayload{}}
	srv := httptest.NewServer(capture.handler(t))
	defer srv.Close()

	notifier := NewSlackNotifier(SlackOptions{
		WebhookURL:     srv.URL + "/main",
		DownWebhookURL: srv.URL + "/down",
		Split:          true,
	}, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), RenderAlerts(sampleDigest(), time.UTC)))

	require.Len(t, capture.paths["/down"], 1)
	down := capture.paths["/down"][0]
	require.Len(t, down.Blocks, 2)
	require.Contains(t, down.Blocks[1].Text.Text, "005930.KS")

	// up has no dedicated webhook, so it stays on the main one with the errors
	require.Len(t, capture.paths["/main"], 1)
	rest := capture.paths["/main"][0]
	require.Len(t, rest.Blocks, 3)
	require.Contains(t, rest.Blocks[1].Text.Text, "AAPL")
	require.Equal(t, "Stock-Alert-Bot", rest.Username)
}

func TestSlackReportGoesToReportWebhookInFull(t *testing.T) {
	capture := &slackCapture{paths: map[string][]slackPayload{}}
	srv := httptest.NewServer(capture.handler(t))
	defer srv.Close()

	notifier := NewSlackNotifier(SlackOptions{
		WebhookURL:       srv.URL + "/main",
		ReportWebhookURL: srv.URL + "/report",
		UpWebhookURL:     srv.URL + "/up",
		Split:            true,
	}, testLogger())

	msg := Message{Kind: KindReport, Title: "Weekly", Sections: []Section{
		{Heading: "totals", Lines: []string{"3"}},
		{Direction: domain.DirectionUp, Heading: "up", Placeholder: "none"},
	}}
	require.NoError(t, notifier.Notify(context.Background(), msg))

	require.Len(t, capture.paths["/up"], 1)
	require.Len(t, capture.paths["/report"], 1)
	require.Len(t, capture.paths["/report"][0].Blocks, 3)
	require.Empty(t, capture.paths["/main"])
}

func TestRetryNotifierRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	slack := NewSlackNotifier(SlackOptions{WebhookURL: srv.URL}, testLogger())
	notifier := NewRetryNotifier(slack, RetryOptions{MaxRetries: 3, Base: time.Millisecond}, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), Message{Title: "t"}))
	require.Equal(t, int32(3), calls.Load())
}

func TestRetryNotifierStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	slack := NewSlackNotifier(SlackOptions{WebhookURL: srv.URL}, testLogger())
	notifier := NewRetryNotifier(slack, RetryOptions{MaxRetries: 3, Base: time.Millisecond}, testLogger())

	err := notifier.Notify(context.Background(), Message{Title: "t"})
	var status *StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusForbidden, status.Code)
	require.Equal(t, int32(1), calls.Load())
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(ctx context.Context, msg Message) error { return f.err }

type countingNotifier struct{ n int }

func (c *countingNotifier) Notify(ctx context.Context, msg Message) error {
	c.n++
	return nil
}

func TestMultiNotifierDeliversToAllAndJoins(t *testing.T) {
	boom := errors.New("smtp down")
	counter := &countingNotifier{}
	multi := NewMultiNotifier(failingNotifier{err: boom}, nil, counter)

	require.Equal(t, 2, multi.Len())
	err := multi.Notify(context.Background(), Message{})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, counter.n)
}

func TestBuildMailEncodesBody(t *testing.T) {
	msg := RenderAlerts(sampleDigest(), time.UTC)
	raw := string(buildMail("bot@example.com", []string{"a@example.com", "b@example.com"}, msg, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)))

	require.Contains(t, raw, "To: a@example.com, b@example.com\r\n")
	require.Contains(t, raw, "Subject: [Stock Alert] 2026-10-16")
	require.Contains(t, raw, "Content-Transfer-Encoding: base64\r\n")

	parts := strings.SplitN(raw, "\r\n\r\n", 2)
	require.Len(t, parts, 2)
	body, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(parts[1], "\r\n", ""))
	require.NoError(t, err)
	require.Equal(t, msg.Text(), string(body))
}
