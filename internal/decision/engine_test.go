package decision

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/resolver"
	"stock-threshold-alerts/internal/state"
)

var kst = time.FixedZone("KST", 9*60*60)

func newTestEngine(down, up Policy, limits Limits) *Engine {
	seq := 0
	return NewEngine(Options{
		Down:     down,
		Up:       up,
		Limits:   limits,
		Location: kst,
		NewID: func() string {
			seq++
			return fmt.Sprintf("evt-%d", seq)
		},
	})
}

func instrument(down, up string) domain.Instrument {
	inst := domain.Instrument{Symbol: "005930.KS", Name: "Samsung Electronics", Market: domain.MarketDomestic}
	if down != "" {
		inst.Down = decimal.NewNullDecimal(decimal.RequireFromString(down))
	}
	if up != "" {
		inst.Up = decimal.NewNullDecimal(decimal.RequireFromString(up))
	}
	return inst
}

func resolved(v int64) resolver.Resolution {
	return resolver.Resolution{Price: decimal.NewNullDecimal(decimal.NewFromInt(v)), Source: resolver.SourceQuote}
}

// runSequence evaluates prices ten minutes apart and returns which cycles fired.
func runSequence(e *Engine, st *state.AlertState, inst domain.Instrument, prices []int64) []int {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, kst)
	var fired []int
	for i, p := range prices {
		out := e.Evaluate(st, inst, resolved(p), start.Add(time.Duration(i)*10*time.Minute))
		if len(out.Events()) > 0 {
			fired = append(fired, i+1)
		}
	}
	return fired
}

func TestCrossingRearmsDedup(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true}, Policy{Dedup: true}, Limits{})
	inst := instrument("100", "")

	fired := runSequence(e, state.New(), inst, []int64{105, 95, 105, 95})
	require.Equal(t, []int{2, 4}, fired)

	fired = runSequence(e, state.New(), inst, []int64{95, 94, 93})
	require.Equal(t, []int{1}, fired)
}

func TestCrossOnlySuppressesSustainedBreach(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true, CrossOnly: true}, Policy{}, Limits{})
	inst := instrument("100", "")

	fired := runSequence(e, state.New(), inst, []int64{95, 94, 93})
	require.Empty(t, fired)

	fired = runSequence(e, state.New(), inst, []int64{101, 99, 98, 102, 97})
	require.Equal(t, []int{2, 5}, fired)
}

func TestDedupDisabledFiresEveryBreach(t *testing.T) {
	e := newTestEngine(Policy{}, Policy{}, Limits{})
	inst := instrument("100", "")

	fired := runSequence(e, state.New(), inst, []int64{95, 94, 101, 93})
	require.Equal(t, []int{1, 2, 4}, fired)
}

func TestNoOpCyclesAreIdempotent(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true}, Policy{Dedup: true}, Limits{})
	inst := instrument("100", "200")
	st := state.New()

	fired := runSequence(e, st, inst, []int64{150, 150, 150, 150})
	require.Empty(t, fired)
	require.Zero(t, st.GlobalCount)
	require.True(t, st.LastPrice[inst.Symbol].Equal(decimal.NewFromInt(150)))
}

func TestUpDirectionAndEventShape(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true}, Policy{Dedup: true}, Limits{})
	inst := instrument("", "200")
	st := state.New()
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, kst)

	out := e.Evaluate(st, inst, resolved(200), now)
	events := out.Events()
	require.Len(t, events, 1)
	require.Equal(t, domain.DirectionUp, events[0].Direction)
	require.Equal(t, "evt-1", events[0].ID)
	require.Equal(t, "Samsung Electronics", events[0].Name)
	require.True(t, events[0].Threshold.Equal(decimal.NewFromInt(200)))
	require.Equal(t, StateAlertedToday, out.Directions[0].State)

	key := state.NewKey(inst.Symbol, domain.DirectionUp)
	require.Equal(t, 1, st.Counters[key])
	require.Equal(t, 1, st.GlobalCount)
	require.Equal(t, "2026-10-16", st.LastAlertDate[key])
	require.True(t, st.LastAlertAt[key].Equal(now))
}

func TestUnresolvedPriceLeavesStateUntouched(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true}, Policy{}, Limits{})
	inst := instrument("100", "")
	st := state.New()
	st.LastPrice[inst.Symbol] = decimal.NewFromInt(120)

	out := e.Evaluate(st, inst, resolver.Resolution{Err: resolver.ErrJumpRejected}, time.Now())
	require.ErrorIs(t, out.ObservationErr, resolver.ErrJumpRejected)
	require.Empty(t, out.Directions)
	require.True(t, st.LastPrice[inst.Symbol].Equal(decimal.NewFromInt(120)))

	out = e.Evaluate(st, inst, resolver.Resolution{}, time.Now())
	require.ErrorIs(t, out.ObservationErr, resolver.ErrNoObservation)
}

func TestRateLimitPriorityOrdering(t *testing.T) {
	limits := Limits{GlobalDaily: 2, PerInstrumentDaily: 1, MinInterval: 30 * time.Minute}
	e := newTestEngine(Policy{}, Policy{}, limits)
	inst := instrument("100", "")
	key := state.NewKey(inst.Symbol, domain.DirectionDown)
	now := time.Date(2026, 10, 16, 11, 0, 0, 0, kst)

	st := state.New()
	st.Roll("2026-10-16")
	st.GlobalCount = 2
	st.Counters[key] = 1
	st.LastAlertAt[key] = now.Add(-5 * time.Minute)

	out := e.Evaluate(st, inst, resolved(90), now)
	require.Empty(t, out.Events())
	require.Equal(t, LimitGlobalCap, out.Directions[0].Limited)
	require.Equal(t, StateRateLimited, out.Directions[0].State)
	require.True(t, out.Directions[0].Wanted)

	st.GlobalCount = 0
	out = e.Evaluate(st, inst, resolved(90), now)
	require.Equal(t, LimitInstrumentCap, out.Directions[0].Limited)

	st.Counters[key] = 0
	out = e.Evaluate(st, inst, resolved(90), now)
	require.Equal(t, LimitMinInterval, out.Directions[0].Limited)

	out = e.Evaluate(st, inst, resolved(90), now.Add(30*time.Minute))
	require.Equal(t, LimitNone, out.Directions[0].Limited)
	require.Len(t, out.Events(), 1)
}

func TestCountersResetOnNewDay(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true}, Policy{}, Limits{GlobalDaily: 1})
	inst := instrument("100", "")
	other := domain.Instrument{Symbol: "AAPL", Down: decimal.NewNullDecimal(decimal.NewFromInt(100))}
	st := state.New()
	day1 := time.Date(2026, 10, 16, 9, 0, 0, 0, kst)

	require.Len(t, e.Evaluate(st, inst, resolved(90), day1).Events(), 1)

	out := e.Evaluate(st, other, resolved(90), day1.Add(time.Minute))
	require.Equal(t, LimitGlobalCap, out.Directions[0].Limited)

	// Dates are computed in the engine timezone: 15:30 UTC is already the next KST day.
	day2 := time.Date(2026, 10, 16, 15, 30, 0, 0, time.UTC)
	out = e.Evaluate(st, other, resolved(90), day2)
	require.Len(t, out.Events(), 1)
	require.Equal(t, "2026-10-17", st.Date)
	require.Equal(t, 1, st.GlobalCount)

	// Dedup re-arms on the new day even without a crossing.
	st2 := state.New()
	e2 := newTestEngine(Policy{Dedup: true}, Policy{}, Limits{})
	require.Len(t, e2.Evaluate(st2, inst, resolved(90), day1).Events(), 1)
	require.Empty(t, e2.Evaluate(st2, inst, resolved(89), day1.Add(time.Hour)).Events())
	require.Len(t, e2.Evaluate(st2, inst, resolved(88), day1.Add(24*time.Hour)).Events(), 1)
}

func TestBothDirectionsIndependent(t *testing.T) {
	e := newTestEngine(Policy{Dedup: true}, Policy{Dedup: true}, Limits{})
	inst := instrument("100", "100")

	out := e.Evaluate(state.New(), inst, resolved(100), time.Date(2026, 10, 16, 9, 0, 0, 0, kst))
	require.Len(t, out.Directions, 2)
	require.Len(t, out.Events(), 2)
}
