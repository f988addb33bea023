package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market classifies an instrument by the exchange it trades on.
type Market int

const (
	// MarketForeign covers every symbol without a domestic suffix.
	MarketForeign Market = iota
	// MarketDomestic covers KRX listings, which trade in whole won ticks.
	MarketDomestic
)

func (m Market) String() string {
	if m == MarketDomestic {
		return "domestic"
	}
	return "foreign"
}

// DefaultDomesticSuffixes are the KOSPI and KOSDAQ symbol suffixes.
var DefaultDomesticSuffixes = []string{".KS", ".KQ"}

// ClassifyMarket derives the market from the symbol suffix.
func ClassifyMarket(symbol string, domesticSuffixes []string) Market {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	for _, suffix := range domesticSuffixes {
		if suffix != "" && strings.HasSuffix(upper, strings.ToUpper(suffix)) {
			return MarketDomestic
		}
	}
	return MarketForeign
}

// Direction is the side of a threshold breach.
type Direction string

const (
	DirectionDown Direction = "down"
	DirectionUp   Direction = "up"
)

// Directions lists every direction in evaluation order.
var Directions = []Direction{DirectionDown, DirectionUp}

// Instrument is one watched ticker with its alert thresholds.
type Instrument struct {
	Symbol string
	Name   string
	Market Market
	Down   decimal.NullDecimal
	Up     decimal.NullDecimal
}

// Threshold returns the configured threshold for a direction.
func (i Instrument) Threshold(dir Direction) decimal.NullDecimal {
	switch dir {
	case DirectionDown:
		return i.Down
	case DirectionUp:
		return i.Up
	default:
		return decimal.NullDecimal{}
	}
}

// DisplayName falls back to the symbol when no name is configured.
func (i Instrument) DisplayName() string {
	if strings.TrimSpace(i.Name) == "" {
		return i.Symbol
	}
	return i.Name
}

// AlertEvent is an immutable record of an alert that passed every gate.
type AlertEvent struct {
	ID        string          `json:"id"`
	At        time.Time       `json:"ts"`
	Symbol    string          `json:"ticker"`
	Name      string          `json:"name"`
	Direction Direction       `json:"dir"`
	Price     decimal.Decimal `json:"price"`
	Threshold decimal.Decimal `json:"threshold"`
}
