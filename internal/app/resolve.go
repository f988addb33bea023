package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/resolver"
	"stock-threshold-alerts/internal/service"
)

// Resolve prints every observation and the resolved price for symbols.
// Unconfigured symbols are classified by suffix.
func (a *App) Resolve(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return fmt.Errorf("at least one ticker is required")
	}

	observer := a.newObserver(a.newProvider())
	res := resolver.New(service.ResolverOptions(a.Config))

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Ticker\tMarket\tFast\tQuote\tIntraday\tPrevClose\tDailyPrior\tResolved\tSource\tError")
	for _, symbol := range symbols {
		inst, ok := a.findInstrument(symbol)
		if !ok {
			sym := strings.ToUpper(strings.TrimSpace(symbol))
			inst = domain.Instrument{Symbol: sym, Market: domain.ClassifyMarket(sym, a.Config.Market.DomesticSuffixes)}
		}

		obs := observer.Observe(ctx, inst)
		r := res.Resolve(inst.Market, obs)

		resolved, errText := "-", ""
		if r.OK() {
			resolved = r.Price.Decimal.String()
		}
		if r.Err != nil {
			errText = r.Err.Error()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inst.Symbol,
			inst.Market,
			observationText(obs.Fast),
			observationText(obs.Quote),
			observationText(obs.Intraday),
			observationText(obs.PreviousClose),
			observationText(obs.DailyPrior),
			resolved,
			r.Source,
			errText,
		)
	}
	return writer.Flush()
}

func observationText(o resolver.Observation) string {
	if !o.OK() {
		return "-"
	}
	return o.Value.Decimal.String()
}
