package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock-threshold-alerts/internal/report"
)

// Report summarises the alert history of the last N days and either prints
// or delivers it.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	days := opts.Days
	if days <= 0 {
		days = a.Config.Report.WindowDays
	}

	b, err := a.openBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	loc := a.Config.ReportLocation()
	from, to := report.Window(time.Now(), days, loc)
	events, err := b.history.Between(ctx, from, to)
	if err != nil {
		return fmt.Errorf("read alert history: %w", err)
	}

	sum := report.Aggregate(events, from, to)
	msg := report.Render(sum, loc)
	a.Logger.Info().Int("events", sum.Total).Int("days", days).Msg("weekly report built")

	if !opts.Send {
		fmt.Fprint(a.Out, msg.Text())
		return nil
	}

	notifier := a.newNotifier(a.Config.Report.Split)
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}
	if err := notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("deliver report: %w", err)
	}
	return nil
}
