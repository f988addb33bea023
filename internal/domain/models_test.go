package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestClassifyMarket(t *testing.T) {
	cases := map[string]Market{
		"005930.KS": MarketDomestic,
		"035720.kq": MarketDomestic,
		"AAPL":      MarketForeign,
		"7203.T":    MarketForeign,
		"":          MarketForeign,
	}
	for symbol, want := range cases {
		if got := ClassifyMarket(symbol, DefaultDomesticSuffixes); got != want {
			t.Fatalf("%q: want %s, got %s", symbol, want, got)
		}
	}
}

func TestInstrumentThreshold(t *testing.T) {
	inst := Instrument{Symbol: "AAPL", Down: decimal.NewNullDecimal(decimal.NewFromInt(150))}
	if !inst.Threshold(DirectionDown).Valid {
		t.Fatal("down threshold should be set")
	}
	if inst.Threshold(DirectionUp).Valid {
		t.Fatal("up threshold should be absent")
	}
	if inst.DisplayName() != "AAPL" {
		t.Fatalf("display name should fall back to symbol, got %q", inst.DisplayName())
	}
}
