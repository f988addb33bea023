package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/config"
	"stock-threshold-alerts/internal/decision"
	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/history"
	"stock-threshold-alerts/internal/resolver"
	"stock-threshold-alerts/internal/state"
)

// scriptedObserver returns the next scripted quote per symbol; an exhausted
// or empty script yields no observations.
type scriptedObserver struct {
	mu     sync.Mutex
	prices map[string][]string
	calls  int
}

func (o *scriptedObserver) Observe(ctx context.Context, inst domain.Instrument) resolver.Observations {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++

	obs := resolver.Observations{Quote: resolver.Absent(resolver.SourceQuote)}
	queue := o.prices[inst.Symbol]
	if len(queue) == 0 {
		return obs
	}
	o.prices[inst.Symbol] = queue[1:]
	obs.Quote = resolver.Present(resolver.SourceQuote, decimal.RequireFromString(queue[0]))
	return obs
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []alerting.Message
	err      error
}

func (n *recordingNotifier) Notify(ctx context.Context, msg alerting.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return n.err
}

type brokenStore struct {
	loadErr error
	saveErr error
	saves   int
}

func (b *brokenStore) Load(ctx context.Context) (*state.AlertState, error) {
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return state.New(), nil
}

func (b *brokenStore) Save(ctx context.Context, st *state.AlertState) error {
	b.saves++
	return b.saveErr
}

type heldLocker struct{ calls int }

func (h *heldLocker) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	h.calls++
	return nil, false, nil
}

func instrument(symbol, down, up string) domain.Instrument {
	inst := domain.Instrument{Symbol: symbol, Name: symbol, Market: domain.ClassifyMarket(symbol, nil)}
	if down != "" {
		inst.Down = decimal.NewNullDecimal(decimal.RequireFromString(down))
	}
	if up != "" {
		inst.Up = decimal.NewNullDecimal(decimal.RequireFromString(up))
	}
	return inst
}

func testConfig(insts ...domain.Instrument) *config.Config {
	cfg := &config.Config{
		Alerting: config.AlertingConfig{
			Enabled: true,
			Down:    config.PolicyConfig{Dedup: true},
			Up:      config.PolicyConfig{Dedup: true},
		},
		Runner: config.RunnerConfig{Workers: 3},
	}
	cfg.SetInstruments(insts)
	return cfg
}

func fixedClock() func() time.Time {
	var mu sync.Mutex
	at := time.Date(2026, 10, 16, 1, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		at = at.Add(time.Minute)
		return at
	}
}

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("evt-%d", n)
	}
}

func TestRunOnceCrossingRearmsDedup(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""))
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"105", "95", "105", "95", "94"}}}
	notifier := &recordingNotifier{}
	events := history.NewMemoryStore(0)

	svc := New(cfg, Dependencies{
		Observer: obs,
		State:    state.NewMemoryStore(nil),
		History:  events,
		Notifier: notifier,
		Now:      fixedClock(),
		NewID:    sequentialIDs(),
	}, zerolog.Nop())

	var fired []int
	for cycle := 1; cycle <= 5; cycle++ {
		report, err := svc.RunOnce(context.Background())
		require.NoError(t, err)
		if len(report.Events) > 0 {
			fired = append(fired, cycle)
		}
	}

	require.Equal(t, []int{2, 4}, fired)
	require.Len(t, notifier.messages, 2)
	require.Contains(t, notifier.messages[0].Text(), "AAPL")

	stored, err := events.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	require.Equal(t, "evt-2", stored[0].ID)
}

func TestRunOnceSaveFailureSuppressesDelivery(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""))
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"90"}}}
	notifier := &recordingNotifier{}
	events := history.NewMemoryStore(0)
	store := &brokenStore{saveErr: errors.New("disk full")}

	svc := New(cfg, Dependencies{Observer: obs, State: store, History: events, Notifier: notifier}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())

	require.ErrorContains(t, err, "persist alert state")
	require.Len(t, report.Events, 1)
	require.Empty(t, notifier.messages)
	stored, _ := events.Recent(context.Background(), 10)
	require.Empty(t, stored)
}

func TestRunOnceLoadFailureFallsBackToDefaultState(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""))
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"90"}}}
	store := &brokenStore{loadErr: state.ErrCorrupt}

	svc := New(cfg, Dependencies{Observer: obs, State: store}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())

	require.NoError(t, err)
	require.Len(t, report.Events, 1)
	require.Equal(t, 1, store.saves)
}

func TestRunOnceAbortedPersistsNothing(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""))
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"90"}}}
	store := &brokenStore{}
	notifier := &recordingNotifier{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := New(cfg, Dependencies{Observer: obs, State: store, Notifier: notifier}, zerolog.Nop())
	_, err := svc.RunOnce(ctx)

	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, store.saves)
	require.Empty(t, notifier.messages)
}

func TestRunOnceGlobalCapFollowsConfiguredOrder(t *testing.T) {
	cfg := testConfig(
		instrument("AAA", "", "10"),
		instrument("BBB", "", "10"),
		instrument("CCC", "", "10"),
	)
	cfg.Alerting.GlobalDailyCap = 2
	obs := &scriptedObserver{prices: map[string][]string{"AAA": {"11"}, "BBB": {"12"}, "CCC": {"13"}}}
	notifier := &recordingNotifier{}

	svc := New(cfg, Dependencies{Observer: obs, State: state.NewMemoryStore(nil), Notifier: notifier}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Events, 2)
	require.Equal(t, "AAA", report.Events[0].Symbol)
	require.Equal(t, "BBB", report.Events[1].Symbol)

	require.Len(t, report.Digest.Suppressed, 1)
	require.Equal(t, "CCC", report.Digest.Suppressed[0].Symbol)
	require.Equal(t, string(decision.LimitGlobalCap), report.Digest.Suppressed[0].Reason)
	require.Contains(t, notifier.messages[0].Text(), "[알림 제한]")
}

func TestRunOnceReportsPriceErrorsAlongsideAlerts(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""), instrument("MSFT", "100", ""))
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"90"}}}
	notifier := &recordingNotifier{}

	svc := New(cfg, Dependencies{Observer: obs, State: state.NewMemoryStore(nil), Notifier: notifier}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Digest.Issues, 1)
	require.Equal(t, "MSFT", report.Digest.Issues[0].Symbol)
	require.Equal(t, "no usable price", report.Digest.Issues[0].Reason)
	require.True(t, report.Notified)
	require.Contains(t, notifier.messages[0].Text(), "[가격 조회 오류]")
}

func TestRunOnceErrorsOnlyDoesNotNotify(t *testing.T) {
	cfg := testConfig(instrument("MSFT", "100", ""))
	notifier := &recordingNotifier{}

	svc := New(cfg, Dependencies{Observer: &scriptedObserver{prices: map[string][]string{}}, State: state.NewMemoryStore(nil), Notifier: notifier}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Digest.Issues, 1)
	require.False(t, report.Notified)
	require.Empty(t, notifier.messages)
}

func TestRunOnceDeliveryFailureIsNotFatal(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""))
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"90"}}}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	store := state.NewMemoryStore(nil)

	svc := New(cfg, Dependencies{Observer: obs, State: store, Notifier: notifier}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, report.Notified)

	st, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, st.GlobalCount)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	cfg := testConfig(instrument("AAPL", "100", ""))
	cfg.Scheduler.AdvisoryLockKey = 42
	obs := &scriptedObserver{prices: map[string][]string{"AAPL": {"90"}}}
	locker := &heldLocker{}

	svc := New(cfg, Dependencies{Observer: obs, State: state.NewMemoryStore(nil), Locker: locker}, zerolog.Nop())
	report, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Equal(t, 1, locker.calls)
	require.Zero(t, obs.calls)
}
