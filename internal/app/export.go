package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"stock-threshold-alerts/internal/domain"
)

// DailyCount is the number of alerts fired on one market day.
type DailyCount struct {
	Day  time.Time
	Down int
	Up   int
}

// Total returns down plus up.
func (d DailyCount) Total() int {
	return d.Down + d.Up
}

// Export renders daily alert counts as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	b, err := a.openBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	to := time.Now()
	if opts.To != nil {
		to = *opts.To
	}

	from := to.AddDate(0, 0, -opts.MaxPoints)
	if opts.From != nil {
		from = *opts.From
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	events, err := b.history.Between(ctx, from, to)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	counts := dailyCounts(events, from, to, a.Config.Location())
	downsampled := downsampleCounts(counts, opts.MaxPoints)
	a.Logger.Info().Int("events", len(events)).Int("days", len(counts)).Int("exported", len(downsampled)).Msg("exporting alert counts")

	if opts.CSVPath != "" {
		if err := writeCountsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeCountsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// dailyCounts buckets events by market day and fills empty days in [from, to).
func dailyCounts(events []domain.AlertEvent, from, to time.Time, loc *time.Location) []DailyCount {
	startOfDay := func(t time.Time) time.Time {
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}

	var counts []DailyCount
	index := map[string]int{}
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		index[day.Format("2006-01-02")] = len(counts)
		counts = append(counts, DailyCount{Day: day})
	}

	for _, ev := range events {
		i, ok := index[startOfDay(ev.At).Format("2006-01-02")]
		if !ok {
			continue
		}
		switch ev.Direction {
		case domain.DirectionDown:
			counts[i].Down++
		case domain.DirectionUp:
			counts[i].Up++
		}
	}
	return counts
}

func downsampleCounts(counts []DailyCount, max int) []DailyCount {
	if max <= 0 || len(counts) <= max {
		return counts
	}
	if max == 1 {
		return counts[len(counts)-1:]
	}

	result := make([]DailyCount, 0, max)
	step := float64(len(counts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(counts) {
			idx = len(counts) - 1
		}
		result = append(result, counts[idx])
	}
	return result
}

func writeCountsCSV(path string, counts []DailyCount) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"date", "down", "up", "total"}); err != nil {
		return err
	}

	for _, c := range counts {
		record := []string{
			c.Day.Format("2006-01-02"),
			strconv.Itoa(c.Down),
			strconv.Itoa(c.Up),
			strconv.Itoa(c.Total()),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeCountsPNG(path string, counts []DailyCount) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(counts))
	down := make([]float64, len(counts))
	up := make([]float64, len(counts))

	for i, c := range counts {
		x[i] = c.Day
		down[i] = float64(c.Down)
		up[i] = float64(c.Up)
	}

	countFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Alerts per day",
			ValueFormatter: countFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Down",
				XValues: x,
				YValues: down,
			},
			chart.TimeSeries{
				Name:    "Up",
				XValues: x,
				YValues: up,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
