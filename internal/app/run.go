package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/service"
	"stock-threshold-alerts/internal/state"
)

// Run executes one batch over every configured instrument.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	b, err := a.openBackends(ctx, !opts.DryRun)
	if err != nil {
		return err
	}
	defer b.Close()

	deps := service.Dependencies{
		Observer: a.newObserver(a.newProvider()),
		State:    b.state,
		History:  b.sink,
		Notifier: a.newNotifier(a.Config.Alerting.Slack.Split),
	}
	if opts.DryRun {
		deps.State = a.seededMemoryState(ctx, b.state)
		deps.History = nil
		deps.Notifier = nil
	} else {
		deps.Locker = b.locker
	}

	svc := service.New(a.Config, deps, a.Logger)
	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	if report.Skipped {
		fmt.Fprintln(a.Out, "run skipped: advisory lock held by another process")
		return nil
	}

	writeResults(a.Out, report, a.Config.Location().String())
	if opts.DryRun && report.Digest.HasAlerts() {
		fmt.Fprintln(a.Out)
		fmt.Fprint(a.Out, alerting.RenderAlerts(report.Digest, a.Config.Location()).Text())
	}
	return nil
}

// seededMemoryState copies the persisted state into memory so that a dry run
// sees real history without writing it back.
func (a *App) seededMemoryState(ctx context.Context, store state.Store) *state.MemoryStore {
	st, err := store.Load(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("failed to load state for dry run; starting empty")
		st = nil
	}
	return state.NewMemoryStore(st)
}

func writeResults(out io.Writer, report service.RunReport, zone string) {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Run at %s (%s)\n", report.At.Format("2006-01-02 15:04:05"), zone)
	fmt.Fprintln(writer, "Ticker\tName\tPrice\tSource\tDown\tUp\tAlerts")

	for _, r := range report.Results {
		price := "-"
		if r.Resolution.OK() {
			price = r.Resolution.Price.Decimal.String()
		}
		source := string(r.Resolution.Source)
		if r.Outcome.ObservationErr != nil {
			source = "error"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Instrument.Symbol,
			r.Instrument.Name,
			price,
			source,
			thresholdText(r.Instrument, domain.DirectionDown),
			thresholdText(r.Instrument, domain.DirectionUp),
			firedText(r),
		)
	}
	writer.Flush()
	fmt.Fprintf(out, "alerts: %d, price errors: %d, suppressed: %d\n",
		len(report.Events), len(report.Digest.Issues), len(report.Digest.Suppressed))
}

func thresholdText(inst domain.Instrument, dir domain.Direction) string {
	t := inst.Threshold(dir)
	if !t.Valid {
		return "-"
	}
	return t.Decimal.String()
}

func firedText(r service.Result) string {
	var parts []string
	for _, d := range r.Outcome.Directions {
		switch {
		case d.Fired():
			parts = append(parts, string(d.Direction))
		case d.Limited != "":
			parts = append(parts, fmt.Sprintf("%s(%s)", d.Direction, d.Limited))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ",")
}
