package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"stock-threshold-alerts/internal/domain"
)

// DefaultRetention is the number of most recent events kept by bounded stores.
const DefaultRetention = 5000

// Sink accepts committed alert events in order.
type Sink interface {
	Append(ctx context.Context, events []domain.AlertEvent) error
}

// Reader queries stored alert events.
type Reader interface {
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]domain.AlertEvent, error)
	// Between returns events with from <= At < to, oldest first.
	Between(ctx context.Context, from, to time.Time) ([]domain.AlertEvent, error)
}

// Store is a bounded, ordered event history.
type Store interface {
	Sink
	Reader
}

// MultiSink fans events out to every sink and joins their errors.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink ignores nil sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

// Append writes to every sink even when an earlier one fails.
func (m *MultiSink) Append(ctx context.Context, events []domain.AlertEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryStore keeps events in process for dry runs and simulations.
type MemoryStore struct {
	mu        sync.Mutex
	events    []domain.AlertEvent
	retention int
}

// NewMemoryStore constructs a MemoryStore bounded to retention events.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryStore{retention: retention}
}

func (m *MemoryStore) Append(ctx context.Context, events []domain.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = trim(append(m.events, events...), m.retention)
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]domain.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return recent(m.events, limit), nil
}

func (m *MemoryStore) Between(ctx context.Context, from, to time.Time) ([]domain.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return between(m.events, from, to), nil
}

// trim keeps the last n events.
func trim(events []domain.AlertEvent, n int) []domain.AlertEvent {
	if n <= 0 || len(events) <= n {
		return events
	}
	kept := make([]domain.AlertEvent, n)
	copy(kept, events[len(events)-n:])
	return kept
}

func recent(events []domain.AlertEvent, limit int) []domain.AlertEvent {
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	out := make([]domain.AlertEvent, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	return out
}

func between(events []domain.AlertEvent, from, to time.Time) []domain.AlertEvent {
	out := make([]domain.AlertEvent, 0)
	for _, ev := range events {
		if ev.At.Before(from) || !ev.At.Before(to) {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Sink  = (*MultiSink)(nil)
)
