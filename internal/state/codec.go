package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
)

// legacyTimeLayout is the naive local timestamp format of schema v1.
const legacyTimeLayout = "2006-01-02 15:04:05"

// Encode serialises st at the current schema version.
func Encode(st *AlertState) ([]byte, error) {
	if st == nil {
		return nil, fmt.Errorf("state: encode nil state")
	}
	out := st.Clone()
	out.Version = SchemaVersion
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode alert state: %w", err)
	}
	return data, nil
}

// Decode parses a stored payload, migrating older schema versions. loc
// interprets the naive timestamps of v1 payloads. A payload that fails at
// any point yields no state at all.
func Decode(data []byte, loc *time.Location) (*AlertState, error) {
	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	version := 1
	if probe.Version != nil {
		version = *probe.Version
	}

	switch version {
	case 1:
		var legacy legacyV1
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("%w: v1: %v", ErrCorrupt, err)
		}
		return migrateV1(legacy, loc)
	case SchemaVersion:
		var st AlertState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("%w: v%d: %v", ErrCorrupt, version, err)
		}
		st.ensureMaps()
		return &st, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
}

// legacyV1 is the unversioned layout with "SYMBOL_direction" keys.
type legacyV1 struct {
	LastPrice      map[string]decimal.Decimal `json:"last_price"`
	LastAlertDate  map[string]string          `json:"last_alert_date"`
	LastAlertTS    map[string]string          `json:"last_alert_ts"`
	DailyCount     map[string]int             `json:"daily_count"`
	DailyCountDate string                     `json:"daily_count_date"`
	GlobalCount    struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	} `json:"global_count"`
}

// migrateV1 converts a v1 document into the current schema.
func migrateV1(legacy legacyV1, loc *time.Location) (*AlertState, error) {
	if loc == nil {
		loc = time.UTC
	}
	st := New()
	st.Date = legacy.DailyCountDate
	if st.Date == "" {
		st.Date = legacy.GlobalCount.Date
	}
	if legacy.GlobalCount.Date == st.Date {
		st.GlobalCount = legacy.GlobalCount.Count
	}

	for symbol, price := range legacy.LastPrice {
		st.LastPrice[symbol] = price
	}
	for raw, day := range legacy.LastAlertDate {
		key, err := parseLegacyKey(raw)
		if err != nil {
			return nil, err
		}
		st.LastAlertDate[key] = day
	}
	for raw, ts := range legacy.LastAlertTS {
		key, err := parseLegacyKey(raw)
		if err != nil {
			return nil, err
		}
		at, err := time.ParseInLocation(legacyTimeLayout, ts, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: v1 timestamp %q: %v", ErrCorrupt, ts, err)
		}
		st.LastAlertAt[key] = at
	}
	for raw, n := range legacy.DailyCount {
		key, err := parseLegacyKey(raw)
		if err != nil {
			return nil, err
		}
		st.Counters[key] = n
	}
	return st, nil
}

func parseLegacyKey(raw string) (Key, error) {
	idx := strings.LastIndex(raw, "_")
	if idx <= 0 {
		return Key{}, fmt.Errorf("%w: v1 key %q", ErrCorrupt, raw)
	}
	dir := domain.Direction(strings.ToLower(raw[idx+1:]))
	if dir != domain.DirectionDown && dir != domain.DirectionUp {
		return Key{}, fmt.Errorf("%w: v1 key %q", ErrCorrupt, raw)
	}
	return NewKey(raw[:idx], dir), nil
}
