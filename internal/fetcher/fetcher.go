package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoData signals that the provider answered but had no value for the field.
var ErrNoData = errors.New("fetcher: no data")

// QuoteDocument is the fuller quote payload. Either field may be absent.
type QuoteDocument struct {
	Price         decimal.NullDecimal
	PreviousClose decimal.NullDecimal
}

// Candle is one historical bar; only the close is consumed.
type Candle struct {
	Time  time.Time
	Close decimal.Decimal
}

// QuoteProvider is the external quote source. Every call may fail on its own.
//
//go:generate mockgen -package=fetcher -destination=mock_provider_test.go -source=fetcher.go QuoteProvider
type QuoteProvider interface {
	FastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Quote(ctx context.Context, symbol string) (QuoteDocument, error)
	Candles(ctx context.Context, symbol, period, interval string) ([]Candle, error)
}
