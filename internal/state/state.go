package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
)

// SchemaVersion is the version written by Encode.
const SchemaVersion = 2

// DateLayout formats the per-day keys stored in AlertState.
const DateLayout = "2006-01-02"

var (
	// ErrCorrupt marks a stored state that could not be decoded.
	ErrCorrupt = errors.New("state: corrupt payload")
	// ErrUnsupportedVersion marks a payload newer than this binary understands.
	ErrUnsupportedVersion = errors.New("state: unsupported schema version")
)

// Store loads and saves the process-wide alert state.
type Store interface {
	Load(ctx context.Context) (*AlertState, error)
	Save(ctx context.Context, st *AlertState) error
}

// Key addresses per-instrument, per-direction entries.
type Key struct {
	Symbol    string
	Direction domain.Direction
}

// NewKey builds a Key.
func NewKey(symbol string, dir domain.Direction) Key {
	return Key{Symbol: symbol, Direction: dir}
}

func (k Key) String() string {
	return k.Symbol + "|" + string(k.Direction)
}

// MarshalText encodes the key as "SYMBOL|direction" for JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	if k.Symbol == "" || k.Direction == "" {
		return nil, fmt.Errorf("state: incomplete key %q", k.String())
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses "SYMBOL|direction".
func (k *Key) UnmarshalText(text []byte) error {
	raw := string(text)
	idx := strings.LastIndex(raw, "|")
	if idx <= 0 || idx == len(raw)-1 {
		return fmt.Errorf("state: malformed key %q", raw)
	}
	dir := domain.Direction(raw[idx+1:])
	if dir != domain.DirectionDown && dir != domain.DirectionUp {
		return fmt.Errorf("state: unknown direction in key %q", raw)
	}
	k.Symbol = raw[:idx]
	k.Direction = dir
	return nil
}

// AlertState is the persisted memory of previous runs.
type AlertState struct {
	Version       int                        `json:"version"`
	Date          string                     `json:"date"`
	LastPrice     map[string]decimal.Decimal `json:"last_price"`
	LastAlertDate map[Key]string             `json:"last_alert_date"`
	LastAlertAt   map[Key]time.Time          `json:"last_alert_ts"`
	Counters      map[Key]int                `json:"per_instrument_counter"`
	GlobalCount   int                        `json:"global_counter"`
}

// New returns an empty state at the current schema version.
func New() *AlertState {
	st := &AlertState{Version: SchemaVersion}
	st.ensureMaps()
	return st
}

func (s *AlertState) ensureMaps() {
	if s.LastPrice == nil {
		s.LastPrice = make(map[string]decimal.Decimal)
	}
	if s.LastAlertDate == nil {
		s.LastAlertDate = make(map[Key]string)
	}
	if s.LastAlertAt == nil {
		s.LastAlertAt = make(map[Key]time.Time)
	}
	if s.Counters == nil {
		s.Counters = make(map[Key]int)
	}
}

// Roll resets the daily counters when day differs from the stored date.
func (s *AlertState) Roll(day string) {
	s.ensureMaps()
	if s.Date == day {
		return
	}
	s.Date = day
	s.GlobalCount = 0
	s.Counters = make(map[Key]int)
}

// PreviousPrice returns the remembered price for symbol.
func (s *AlertState) PreviousPrice(symbol string) decimal.NullDecimal {
	if p, ok := s.LastPrice[symbol]; ok {
		return decimal.NewNullDecimal(p)
	}
	return decimal.NullDecimal{}
}

// AlertedOn reports whether key fired on day.
func (s *AlertState) AlertedOn(key Key, day string) bool {
	return s.LastAlertDate[key] == day
}

// RecordAlert commits an accepted alert for key.
func (s *AlertState) RecordAlert(key Key, at time.Time, day string) {
	s.ensureMaps()
	s.Counters[key]++
	s.GlobalCount++
	s.LastAlertAt[key] = at
	s.LastAlertDate[key] = day
}

// Clone returns a deep copy.
func (s *AlertState) Clone() *AlertState {
	out := &AlertState{Version: s.Version, Date: s.Date, GlobalCount: s.GlobalCount}
	out.ensureMaps()
	for k, v := range s.LastPrice {
		out.LastPrice[k] = v
	}
	for k, v := range s.LastAlertDate {
		out.LastAlertDate[k] = v
	}
	for k, v := range s.LastAlertAt {
		out.LastAlertAt[k] = v
	}
	for k, v := range s.Counters {
		out.Counters[k] = v
	}
	return out
}
