package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
)

var requiredColumns = []string{"company_name", "ticker", "price_down", "price_up"}

// LoadInstruments reads the CSV file (if any) followed by the inline items.
// Symbols must be unique.
func LoadInstruments(cfg InstrumentsConfig, domesticSuffixes []string) ([]domain.Instrument, error) {
	var items []InstrumentItem
	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open instruments file: %w", err)
		}
		defer f.Close()

		fromFile, err := ParseInstrumentsCSV(f)
		if err != nil {
			return nil, fmt.Errorf("instruments file %s: %w", cfg.File, err)
		}
		items = append(items, fromFile...)
	}
	items = append(items, cfg.Items...)

	seen := make(map[string]bool, len(items))
	out := make([]domain.Instrument, 0, len(items))
	for i, item := range items {
		symbol := strings.ToUpper(strings.TrimSpace(item.Ticker))
		if symbol == "" {
			return nil, fmt.Errorf("instrument %d: ticker is required", i+1)
		}
		if seen[symbol] {
			return nil, fmt.Errorf("instrument %s: duplicate ticker", symbol)
		}
		seen[symbol] = true

		down, err := ParseThreshold(item.Down)
		if err != nil {
			return nil, fmt.Errorf("instrument %s price_down: %w", symbol, err)
		}
		up, err := ParseThreshold(item.Up)
		if err != nil {
			return nil, fmt.Errorf("instrument %s price_up: %w", symbol, err)
		}

		out = append(out, domain.Instrument{
			Symbol: symbol,
			Name:   strings.TrimSpace(item.Name),
			Market: domain.ClassifyMarket(symbol, domesticSuffixes),
			Down:   down,
			Up:     up,
		})
	}
	return out, nil
}

// ParseInstrumentsCSV reads rows with the company_name,ticker,price_down,price_up header.
func ParseInstrumentsCSV(r io.Reader) ([]InstrumentItem, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	field := func(rec []string, col string) string {
		i := index[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var items []InstrumentItem
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		items = append(items, InstrumentItem{
			Name:   field(rec, "company_name"),
			Ticker: field(rec, "ticker"),
			Down:   field(rec, "price_down"),
			Up:     field(rec, "price_up"),
		})
	}
	return items, nil
}

// ParseThreshold treats blank, "none", "nan" and non-positive values as absent.
func ParseThreshold(raw string) (decimal.NullDecimal, error) {
	v := strings.TrimSpace(raw)
	switch strings.ToLower(v) {
	case "", "none", "nan", "null":
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid threshold %q: %w", raw, err)
	}
	if !d.IsPositive() {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(d), nil
}
