package resolver

import (
	"errors"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
)

var (
	// ErrNoObservation means every eligible source was absent.
	ErrNoObservation = errors.New("resolver: no usable price observation")
	// ErrJumpRejected means the price deviated too far from the previous close.
	ErrJumpRejected = errors.New("resolver: price rejected by jump filter")
)

var one = decimal.NewFromInt(1)

// Source tags where an observation came from.
type Source string

const (
	SourceFast       Source = "fast"
	SourceQuote      Source = "quote"
	SourceIntraday   Source = "intraday"
	SourceDailyPrior Source = "daily-prior"
	SourceNone       Source = ""
)

// Observation is a single optional price reading.
type Observation struct {
	Source Source
	Value  decimal.NullDecimal
}

// Present builds an observation; non-positive prices are treated as absent.
func Present(src Source, v decimal.Decimal) Observation {
	if !v.IsPositive() {
		return Absent(src)
	}
	return Observation{Source: src, Value: decimal.NewNullDecimal(v)}
}

// Absent builds a missing observation for src.
func Absent(src Source) Observation {
	return Observation{Source: src}
}

// OK reports whether the observation carries a price.
func (o Observation) OK() bool {
	return o.Value.Valid
}

// Observations is everything the adapter gathered for one instrument.
type Observations struct {
	Fast     Observation
	Quote    Observation
	Intraday Observation
	// PreviousClose comes from the quote document.
	PreviousClose Observation
	// DailyPrior is the second-to-last close of a two-session daily lookback.
	DailyPrior Observation
}

// Reference picks the previous-close reference, preferring the quote document.
func (o Observations) Reference() Observation {
	if o.PreviousClose.OK() {
		return o.PreviousClose
	}
	return o.DailyPrior
}

// PriceSource selects which observations may act as primary candidates.
type PriceSource string

const (
	PriceSourceAuto    PriceSource = "auto"
	PriceSourceHistory PriceSource = "history"
)

// Options tune the resolution hierarchy.
type Options struct {
	PairTolerance     decimal.Decimal
	IntradayTolerance decimal.Decimal
	JumpThreshold     decimal.Decimal
	PriceSource       PriceSource
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		PairTolerance:     decimal.RequireFromString("0.03"),
		IntradayTolerance: decimal.RequireFromString("0.02"),
		JumpThreshold:     decimal.RequireFromString("0.20"),
		PriceSource:       PriceSourceAuto,
	}
}

// Resolution is the outcome of resolving one instrument.
type Resolution struct {
	Price  decimal.NullDecimal
	Source Source
	// Reference is the previous close the jump filter compared against, if any.
	Reference decimal.NullDecimal
	// Deviation is the relative move against Reference.
	Deviation decimal.Decimal
	Err       error
}

// OK reports whether a price was resolved.
func (r Resolution) OK() bool {
	return r.Price.Valid && r.Err == nil
}

// Resolver combines unreliable observations into one price.
type Resolver struct {
	opts Options
}

// New constructs a Resolver.
func New(opts Options) *Resolver {
	def := DefaultOptions()
	if !opts.PairTolerance.IsPositive() {
		opts.PairTolerance = def.PairTolerance
	}
	if !opts.IntradayTolerance.IsPositive() {
		opts.IntradayTolerance = def.IntradayTolerance
	}
	if !opts.JumpThreshold.IsPositive() {
		opts.JumpThreshold = def.JumpThreshold
	}
	if opts.PriceSource == "" {
		opts.PriceSource = PriceSourceAuto
	}
	return &Resolver{opts: opts}
}

// Options returns the effective options.
func (r *Resolver) Options() Options {
	return r.opts
}

// Resolve runs the two-stage hierarchy, then the domestic sanity filter and quantization.
func (r *Resolver) Resolve(market domain.Market, obs Observations) Resolution {
	fast, quote := obs.Fast, obs.Quote
	if market == domain.MarketDomestic {
		fast = Absent(SourceFast)
	}
	if r.opts.PriceSource == PriceSourceHistory {
		fast = Absent(SourceFast)
		quote = Absent(SourceQuote)
	}

	primary := CrossValidate(fast, quote, r.opts.PairTolerance)
	chosen := CrossValidate(primary, obs.Intraday, r.opts.IntradayTolerance)
	if !chosen.OK() {
		return Resolution{Err: ErrNoObservation}
	}

	res := Resolution{Price: chosen.Value, Source: chosen.Source}
	if market != domain.MarketDomestic {
		return res
	}

	ref := obs.Reference()
	if ref.OK() {
		res.Reference = ref.Value
		res.Deviation = RelativeDiff(chosen.Value.Decimal, ref.Value.Decimal, ref.Value.Decimal)
		if res.Deviation.GreaterThan(r.opts.JumpThreshold) {
			res.Price = decimal.NullDecimal{}
			res.Err = ErrJumpRejected
			return res
		}
	}

	res.Price = decimal.NewNullDecimal(chosen.Value.Decimal.Round(0))
	return res
}

// CrossValidate keeps primary when it agrees with secondary within tol, and
// trusts secondary when they diverge. A lone observation wins by default.
func CrossValidate(primary, secondary Observation, tol decimal.Decimal) Observation {
	switch {
	case primary.OK() && secondary.OK():
		s := secondary.Value.Decimal
		if RelativeDiff(primary.Value.Decimal, s, s).GreaterThan(tol) {
			return secondary
		}
		return primary
	case primary.OK():
		return primary
	case secondary.OK():
		return secondary
	default:
		return Absent(SourceNone)
	}
}

// RelativeDiff returns |a-b| / max(denom, 1).
func RelativeDiff(a, b, denom decimal.Decimal) decimal.Decimal {
	if denom.LessThan(one) {
		denom = one
	}
	return a.Sub(b).Abs().Div(denom)
}
