package decision

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/resolver"
	"stock-threshold-alerts/internal/state"
)

// Policy controls when a breach turns into an alert for one direction.
type Policy struct {
	// Dedup allows one alert per instrument and direction per day, re-armed by a crossing.
	Dedup bool
	// CrossOnly fires solely when the price crosses the threshold between runs.
	CrossOnly bool
}

// Options configures the Engine.
type Options struct {
	Down     Policy
	Up       Policy
	Limits   Limits
	Location *time.Location
	// NewID overrides event id generation in tests.
	NewID func() string
}

// DirectionState is the per-(instrument, direction) state after evaluation.
type DirectionState string

const (
	StateNeverAlerted DirectionState = "never-alerted"
	StateAlertedToday DirectionState = "alerted-today"
	StateRateLimited  DirectionState = "rate-limited"
)

// DirectionOutcome describes the decision for a single direction.
type DirectionOutcome struct {
	Direction domain.Direction
	Threshold decimal.Decimal
	Breached  bool
	Crossed   bool
	// Wanted is the fire decision before the rate-limit gate.
	Wanted  bool
	Limited LimitReason
	State   DirectionState
	Event   *domain.AlertEvent
}

// Fired reports whether an event was committed.
func (o DirectionOutcome) Fired() bool {
	return o.Event != nil
}

// Outcome is the decision for one instrument in one run.
type Outcome struct {
	Instrument domain.Instrument
	Price      decimal.NullDecimal
	Previous   decimal.NullDecimal
	// ObservationErr is set when the price could not be resolved.
	ObservationErr error
	Directions     []DirectionOutcome
}

// Events returns the committed events in direction order.
func (o Outcome) Events() []domain.AlertEvent {
	var events []domain.AlertEvent
	for _, d := range o.Directions {
		if d.Event != nil {
			events = append(events, *d.Event)
		}
	}
	return events
}

// Engine turns resolved prices into alert events.
type Engine struct {
	opts    Options
	limiter *RateLimiter
}

// NewEngine constructs an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Engine{opts: opts, limiter: NewRateLimiter(opts.Limits)}
}

// Day returns the state date key for t in the engine's timezone.
func (e *Engine) Day(t time.Time) string {
	return t.In(e.opts.Location).Format(state.DateLayout)
}

func (e *Engine) policy(dir domain.Direction) Policy {
	if dir == domain.DirectionUp {
		return e.opts.Up
	}
	return e.opts.Down
}

// Evaluate applies the breach, crossing, fire and rate-limit rules for inst
// and mutates st in place. The caller must serialise calls sharing st.
func (e *Engine) Evaluate(st *state.AlertState, inst domain.Instrument, res resolver.Resolution, now time.Time) Outcome {
	today := e.Day(now)
	st.Roll(today)

	out := Outcome{Instrument: inst, Previous: st.PreviousPrice(inst.Symbol)}
	if !res.OK() {
		out.ObservationErr = res.Err
		if out.ObservationErr == nil {
			out.ObservationErr = resolver.ErrNoObservation
		}
		return out
	}

	price := res.Price.Decimal
	out.Price = res.Price

	for _, dir := range domain.Directions {
		threshold := inst.Threshold(dir)
		if !threshold.Valid {
			continue
		}
		out.Directions = append(out.Directions, e.evaluateDirection(st, inst, dir, threshold.Decimal, price, out.Previous, now, today))
	}

	st.LastPrice[inst.Symbol] = price
	return out
}

func (e *Engine) evaluateDirection(
	st *state.AlertState,
	inst domain.Instrument,
	dir domain.Direction,
	threshold, price decimal.Decimal,
	previous decimal.NullDecimal,
	now time.Time,
	today string,
) DirectionOutcome {
	key := state.NewKey(inst.Symbol, dir)
	out := DirectionOutcome{Direction: dir, Threshold: threshold}

	out.Breached = Breaches(dir, price, threshold)
	out.Crossed = out.Breached && previous.Valid && !Breaches(dir, previous.Decimal, threshold)

	alertedToday := st.AlertedOn(key, today)
	if out.Breached {
		policy := e.policy(dir)
		switch {
		case policy.CrossOnly:
			out.Wanted = out.Crossed
		case policy.Dedup:
			out.Wanted = !alertedToday || out.Crossed
		default:
			out.Wanted = true
		}
	}

	if out.Wanted {
		out.Limited = e.limiter.Check(st, key, now)
		if out.Limited == LimitNone {
			st.RecordAlert(key, now, today)
			out.Event = &domain.AlertEvent{
				ID:        e.opts.NewID(),
				At:        now,
				Symbol:    inst.Symbol,
				Name:      inst.DisplayName(),
				Direction: dir,
				Price:     price,
				Threshold: threshold,
			}
			alertedToday = true
		}
	}

	switch {
	case out.Limited != LimitNone:
		out.State = StateRateLimited
	case alertedToday:
		out.State = StateAlertedToday
	default:
		out.State = StateNeverAlerted
	}
	return out
}

// Breaches reports whether price is on the alerting side of threshold.
func Breaches(dir domain.Direction, price, threshold decimal.Decimal) bool {
	if dir == domain.DirectionUp {
		return price.GreaterThanOrEqual(threshold)
	}
	return price.LessThanOrEqual(threshold)
}
