package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/domain"
)

// Show prints the most recent alert events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	b, err := a.openBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	limit := opts.Limit
	ticker := strings.ToUpper(strings.TrimSpace(opts.Ticker))
	if ticker != "" {
		limit = 0
	}
	events, err := b.history.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if ticker != "" {
		events = filterTicker(events, ticker, opts.Limit)
	}
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no alerts found")
		return nil
	}

	loc := a.Config.Location()
	suffixes := a.Config.Market.DomesticSuffixes
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Time (%s)\tTicker\tName\tDir\tPrice\tThreshold\n", loc)

	for _, ev := range events {
		market := domain.ClassifyMarket(ev.Symbol, suffixes)
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.At.In(loc).Format("2006-01-02 15:04:05"),
			ev.Symbol,
			ev.Name,
			ev.Direction,
			formatPrice(market, ev),
			alerting.FormatPrice(market, ev.Threshold),
		)
	}

	return writer.Flush()
}

func formatPrice(market domain.Market, ev domain.AlertEvent) string {
	if ev.Price.IsZero() {
		return "-"
	}
	return alerting.FormatPrice(market, ev.Price)
}

func filterTicker(events []domain.AlertEvent, ticker string, limit int) []domain.AlertEvent {
	out := events[:0]
	for _, ev := range events {
		if ev.Symbol != ticker {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
