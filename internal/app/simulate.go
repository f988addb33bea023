package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/fetcher"
	"stock-threshold-alerts/internal/service"
)

// SimulateAlert 使用给定价格走一遍完整的告警流程，状态只保存在内存中。
func (a *App) SimulateAlert(ctx context.Context, symbol string, price decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	inst, ok := a.findInstrument(symbol)
	if !ok {
		return fmt.Errorf("ticker %s is not configured", strings.ToUpper(symbol))
	}

	b, err := a.openBackends(ctx, false)
	if err != nil {
		return err
	}
	defer b.Close()

	notifier := a.newNotifier(a.Config.Alerting.Slack.Split)
	provider := &staticProvider{price: price}

	cfg := *a.Config
	cfg.SetInstruments([]domain.Instrument{inst})
	svc := service.New(&cfg, service.Dependencies{
		Observer: a.newObserver(provider),
		State:    a.seededMemoryState(ctx, b.state),
		Notifier: notifier,
	}, a.Logger)

	report, err := svc.RunOnce(ctx)
	if err != nil {
		return err
	}
	writeResults(a.Out, report, a.Config.Location().String())

	if !report.Digest.HasAlerts() {
		fmt.Fprintln(a.Out, "no alert would fire for this price")
		return nil
	}
	if notifier == nil {
		fmt.Fprintln(a.Out, "未配置任何告警通道; rendered message:")
		fmt.Fprint(a.Out, alerting.RenderAlerts(report.Digest, a.Config.Location()).Text())
	}
	return nil
}

func (a *App) findInstrument(symbol string) (domain.Instrument, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, inst := range a.Config.Instruments() {
		if inst.Symbol == symbol {
			return inst, true
		}
	}
	return domain.Instrument{}, false
}

// staticProvider answers every source with the same price and no history.
type staticProvider struct {
	price decimal.Decimal
}

func (s *staticProvider) FastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.price, nil
}

func (s *staticProvider) Quote(ctx context.Context, symbol string) (fetcher.QuoteDocument, error) {
	return fetcher.QuoteDocument{Price: decimal.NewNullDecimal(s.price)}, nil
}

func (s *staticProvider) Candles(ctx context.Context, symbol, period, interval string) ([]fetcher.Candle, error) {
	return nil, fetcher.ErrNoData
}

var _ fetcher.QuoteProvider = (*staticProvider)(nil)
