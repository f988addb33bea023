package decision

import (
	"time"

	"stock-threshold-alerts/internal/state"
)

// LimitReason explains why a would-be alert was suppressed.
type LimitReason string

const (
	LimitNone          LimitReason = ""
	LimitGlobalCap     LimitReason = "global_daily_cap"
	LimitInstrumentCap LimitReason = "instrument_daily_cap"
	LimitMinInterval   LimitReason = "min_interval"
)

// Limits bound the number and frequency of alerts. A cap of zero or less
// disables that check.
type Limits struct {
	GlobalDaily        int
	PerInstrumentDaily int
	MinInterval        time.Duration
}

// RateLimiter gates alerts against the counters in AlertState.
type RateLimiter struct {
	limits Limits
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(limits Limits) *RateLimiter {
	return &RateLimiter{limits: limits}
}

// Check returns the first failing reason, in priority order: global cap,
// per-instrument cap, minimum interval. st must already be rolled to today.
func (l *RateLimiter) Check(st *state.AlertState, key state.Key, now time.Time) LimitReason {
	if l.limits.GlobalDaily > 0 && st.GlobalCount >= l.limits.GlobalDaily {
		return LimitGlobalCap
	}
	if l.limits.PerInstrumentDaily > 0 && st.Counters[key] >= l.limits.PerInstrumentDaily {
		return LimitInstrumentCap
	}
	if l.limits.MinInterval > 0 {
		if last, ok := st.LastAlertAt[key]; ok {
			elapsed := now.Sub(last).Minutes()
			if elapsed < l.limits.MinInterval.Minutes() {
				return LimitMinInterval
			}
		}
	}
	return LimitNone
}
