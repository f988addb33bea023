package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/state"
)

// legacyTimeLayout matches timestamps like "2025-03-04 09:12:00 KST".
const legacyTimeLayout = "2006-01-02 15:04:05"

// FileStore keeps the history as one JSON array, rewritten atomically on append.
type FileStore struct {
	mu        sync.Mutex
	path      string
	retention int
	loc       *time.Location
}

// NewFileStore constructs a FileStore. loc interprets legacy zone-less timestamps.
func NewFileStore(path string, retention int, loc *time.Location) *FileStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if loc == nil {
		loc = time.UTC
	}
	return &FileStore{path: path, retention: retention, loc: loc}
}

// Append adds events and drops the oldest beyond retention.
func (f *FileStore) Append(ctx context.Context, events []domain.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.read()
	if err != nil {
		return err
	}
	merged := trim(append(existing, events...), f.retention)

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := state.WriteFileAtomic(f.path, data); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}

func (f *FileStore) Recent(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events, err := f.read()
	if err != nil {
		return nil, err
	}
	return recent(events, limit), nil
}

func (f *FileStore) Between(ctx context.Context, from, to time.Time) ([]domain.AlertEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events, err := f.read()
	if err != nil {
		return nil, err
	}
	return between(events, from, to), nil
}

func (f *FileStore) read() ([]domain.AlertEvent, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var records []fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	events := make([]domain.AlertEvent, 0, len(records))
	for _, rec := range records {
		at, err := parseTimestamp(rec.TS, f.loc)
		if err != nil {
			// unreadable rows are skipped, not fatal
			continue
		}
		events = append(events, domain.AlertEvent{
			ID:        rec.ID,
			At:        at,
			Symbol:    rec.Ticker,
			Name:      rec.Name,
			Direction: domain.Direction(rec.Dir),
			Price:     rec.Price,
			Threshold: rec.Threshold,
		})
	}
	return events, nil
}

// fileRecord accepts both current rows and the older {ts,name,ticker,dir} rows.
type fileRecord struct {
	ID        string          `json:"id"`
	TS        string          `json:"ts"`
	Name      string          `json:"name"`
	Ticker    string          `json:"ticker"`
	Dir       string          `json:"dir"`
	Price     decimal.Decimal `json:"price"`
	Threshold decimal.Decimal `json:"threshold"`
}

func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
	}
	return time.ParseInLocation(legacyTimeLayout, fields[0]+" "+fields[1], loc)
}

var _ Store = (*FileStore)(nil)
