package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/resolver"
)

// ObserverOptions tune the per-source behaviour of Observer.
type ObserverOptions struct {
	// SourceTimeout bounds every individual provider call.
	SourceTimeout time.Duration
	// SkipFast avoids the fast call entirely when it can never be used.
	SkipFast bool
}

// Observer gathers independently sourced observations for one instrument.
type Observer struct {
	provider QuoteProvider
	opts     ObserverOptions
	logger   zerolog.Logger
}

// NewObserver constructs an Observer.
func NewObserver(provider QuoteProvider, opts ObserverOptions, logger zerolog.Logger) *Observer {
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = 8 * time.Second
	}
	return &Observer{
		provider: provider,
		opts:     opts,
		logger:   logger.With().Str("component", "observer").Logger(),
	}
}

// Observe queries every source concurrently. Failures and timeouts become
// absent observations; Observe itself never fails.
func (o *Observer) Observe(ctx context.Context, inst domain.Instrument) resolver.Observations {
	obs := resolver.Observations{
		Fast:          resolver.Absent(resolver.SourceFast),
		Quote:         resolver.Absent(resolver.SourceQuote),
		Intraday:      resolver.Absent(resolver.SourceIntraday),
		PreviousClose: resolver.Absent(resolver.SourceQuote),
		DailyPrior:    resolver.Absent(resolver.SourceDailyPrior),
	}
	logger := o.logger.With().Str("symbol", inst.Symbol).Logger()
	domestic := inst.Market == domain.MarketDomestic

	var g errgroup.Group
	if !domestic && !o.opts.SkipFast {
		g.Go(func() error {
			price, err := withTimeout(ctx, o.opts.SourceTimeout, func(ctx context.Context) (decimal.Decimal, error) {
				return o.provider.FastPrice(ctx, inst.Symbol)
			})
			if o.absorb(logger, resolver.SourceFast, err) {
				obs.Fast = resolver.Present(resolver.SourceFast, price)
			}
			return nil
		})
	}
	g.Go(func() error {
		doc, err := withTimeout(ctx, o.opts.SourceTimeout, func(ctx context.Context) (QuoteDocument, error) {
			return o.provider.Quote(ctx, inst.Symbol)
		})
		if o.absorb(logger, resolver.SourceQuote, err) {
			if doc.Price.Valid {
				obs.Quote = resolver.Present(resolver.SourceQuote, doc.Price.Decimal)
			}
			if doc.PreviousClose.Valid {
				obs.PreviousClose = resolver.Present(resolver.SourceQuote, doc.PreviousClose.Decimal)
			}
		}
		return nil
	})
	g.Go(func() error {
		price, err := withTimeout(ctx, o.opts.SourceTimeout, func(ctx context.Context) (decimal.Decimal, error) {
			return o.lastIntradayClose(ctx, logger, inst.Symbol)
		})
		if o.absorb(logger, resolver.SourceIntraday, err) {
			obs.Intraday = resolver.Present(resolver.SourceIntraday, price)
		}
		return nil
	})
	if domestic {
		g.Go(func() error {
			price, err := withTimeout(ctx, o.opts.SourceTimeout, func(ctx context.Context) (decimal.Decimal, error) {
				return o.priorDailyClose(ctx, inst.Symbol)
			})
			if o.absorb(logger, resolver.SourceDailyPrior, err) {
				obs.DailyPrior = resolver.Present(resolver.SourceDailyPrior, price)
			}
			return nil
		})
	}
	_ = g.Wait()

	return obs
}

// lastIntradayClose prefers 1m bars and falls back to 5m bars.
func (o *Observer) lastIntradayClose(ctx context.Context, logger zerolog.Logger, symbol string) (decimal.Decimal, error) {
	for _, interval := range []string{"1m", "5m"} {
		candles, err := o.provider.Candles(ctx, symbol, "1d", interval)
		if err != nil {
			if ctx.Err() != nil {
				return decimal.Decimal{}, ctx.Err()
			}
			logger.Debug().Err(err).Str("interval", interval).Msg("intraday candles unavailable")
			continue
		}
		if len(candles) > 0 {
			return candles[len(candles)-1].Close, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("intraday close for %s: %w", symbol, ErrNoData)
}

// priorDailyClose is the second-to-last close of a two-session daily lookback.
func (o *Observer) priorDailyClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	candles, err := o.provider.Candles(ctx, symbol, "2d", "1d")
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(candles) < 2 {
		return decimal.Decimal{}, fmt.Errorf("prior daily close for %s: %w", symbol, ErrNoData)
	}
	return candles[len(candles)-2].Close, nil
}

// absorb logs a failed source and reports whether the value is usable.
func (o *Observer) absorb(logger zerolog.Logger, src resolver.Source, err error) bool {
	if err == nil {
		return true
	}
	event := logger.Debug()
	if errors.Is(err, context.DeadlineExceeded) {
		event = logger.Warn()
	}
	event.Err(err).Str("source", string(src)).Msg("observation absent")
	return false
}

// withTimeout runs fn under its own deadline and returns as soon as the
// deadline passes, even if fn ignores its context.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("provider panic: %v", p)
			}
			done <- r
		}()
		r.value, r.err = fn(ctx)
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
