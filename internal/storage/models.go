package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/domain"
)

// eventRecord mirrors one alert_events row; numerics travel as text.
type eventRecord struct {
	ID        string
	TS        time.Time
	Ticker    string
	Name      string
	Direction string
	Price     string
	Threshold string
}

func newEventRecord(ev domain.AlertEvent) eventRecord {
	return eventRecord{
		ID:        ev.ID,
		TS:        ev.At.UTC(),
		Ticker:    ev.Symbol,
		Name:      ev.Name,
		Direction: string(ev.Direction),
		Price:     ev.Price.String(),
		Threshold: ev.Threshold.String(),
	}
}

func (r eventRecord) toEvent() (domain.AlertEvent, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return domain.AlertEvent{}, fmt.Errorf("parse price: %w", err)
	}
	threshold, err := decimal.NewFromString(r.Threshold)
	if err != nil {
		return domain.AlertEvent{}, fmt.Errorf("parse threshold: %w", err)
	}
	return domain.AlertEvent{
		ID:        r.ID,
		At:        r.TS,
		Symbol:    r.Ticker,
		Name:      r.Name,
		Direction: domain.Direction(r.Direction),
		Price:     price,
		Threshold: threshold,
	}, nil
}
