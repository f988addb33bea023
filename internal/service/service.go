package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/config"
	"stock-threshold-alerts/internal/decision"
	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/fetcher"
	"stock-threshold-alerts/internal/history"
	"stock-threshold-alerts/internal/resolver"
	"stock-threshold-alerts/internal/scheduler"
	"stock-threshold-alerts/internal/state"
	"stock-threshold-alerts/internal/storage"
)

// Observer gathers the raw observations of one instrument.
type Observer interface {
	Observe(ctx context.Context, inst domain.Instrument) resolver.Observations
}

var _ Observer = (*fetcher.Observer)(nil)

// Dependencies are the collaborators of a Service. Nil History or Notifier
// disables that step.
type Dependencies struct {
	Scheduler *scheduler.Scheduler
	Observer  Observer
	State     state.Store
	History   history.Sink
	Notifier  alerting.Notifier
	Locker    storage.AdvisoryLocker

	// Now and NewID override the clock and event ids in tests.
	Now   func() time.Time
	NewID func() string
}

// Result is everything computed for one instrument in one run.
type Result struct {
	Instrument   domain.Instrument
	Observations resolver.Observations
	Resolution   resolver.Resolution
	Outcome      decision.Outcome
}

// RunReport summarises one batch.
type RunReport struct {
	At       time.Time
	Results  []Result
	Events   []domain.AlertEvent
	Digest   alerting.Digest
	Skipped  bool
	Notified bool
}

// Service orchestrates observation, resolution, decisions, persistence and delivery.
type Service struct {
	scheduler *scheduler.Scheduler
	observer  Observer
	resolver  *resolver.Resolver
	engine    *decision.Engine
	state     state.Store
	history   history.Sink
	notifier  alerting.Notifier
	logger    zerolog.Logger

	instruments []domain.Instrument
	workers     int
	location    *time.Location
	alertsOn    bool
	locker      storage.AdvisoryLocker
	lockKey     int64
	now         func() time.Time
}

// ResolverOptions derives resolver tuning from configuration.
func ResolverOptions(cfg *config.Config) resolver.Options {
	return resolver.Options{
		PairTolerance:     decimal.NewFromFloat(cfg.Resolution.PairTolerance),
		IntradayTolerance: decimal.NewFromFloat(cfg.Resolution.IntradayTolerance),
		JumpThreshold:     decimal.NewFromFloat(cfg.Resolution.JumpThreshold),
		PriceSource:       resolver.PriceSource(cfg.Resolution.PriceSource),
	}
}

// EngineOptions derives decision policies and limits from configuration.
func EngineOptions(cfg *config.Config) decision.Options {
	return decision.Options{
		Down: decision.Policy{Dedup: cfg.Alerting.Down.Dedup, CrossOnly: cfg.Alerting.Down.CrossOnly},
		Up:   decision.Policy{Dedup: cfg.Alerting.Up.Dedup, CrossOnly: cfg.Alerting.Up.CrossOnly},
		Limits: decision.Limits{
			GlobalDaily:        cfg.Alerting.GlobalDailyCap,
			PerInstrumentDaily: cfg.Alerting.PerInstrumentDailyCap,
			MinInterval:        cfg.Alerting.MinInterval,
		},
		Location: cfg.Location(),
	}
}

// New constructs the alert service.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Service {
	engineOpts := EngineOptions(cfg)
	engineOpts.NewID = deps.NewID

	workers := cfg.Runner.Workers
	if workers <= 0 {
		workers = 1
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	locker := deps.Locker
	if locker == nil {
		if l, ok := deps.State.(storage.AdvisoryLocker); ok {
			locker = l
		}
	}

	return &Service{
		scheduler:   deps.Scheduler,
		observer:    deps.Observer,
		resolver:    resolver.New(ResolverOptions(cfg)),
		engine:      decision.NewEngine(engineOpts),
		state:       deps.State,
		history:     deps.History,
		notifier:    deps.Notifier,
		logger:      logger.With().Str("component", "service").Logger(),
		instruments: cfg.Instruments(),
		workers:     workers,
		location:    cfg.Location(),
		alertsOn:    cfg.Alerting.Enabled,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
		now:         now,
	}
}

// Run begins the scheduled loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick 执行一次定时批处理。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	report, err := s.RunOnce(ctx)
	if err != nil {
		return err
	}
	if report.Skipped {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
	}
	return nil
}

// RunOnce processes every instrument once. State is written exactly once
// after all decisions; a cancelled run writes nothing.
func (s *Service) RunOnce(ctx context.Context) (RunReport, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return RunReport{}, err
	}
	if !proceed {
		return RunReport{At: s.now(), Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}
	return s.execute(ctx, s.now())
}

func (s *Service) execute(ctx context.Context, now time.Time) (RunReport, error) {
	report := RunReport{At: now}

	st, err := s.state.Load(ctx)
	if err != nil || st == nil {
		s.logger.Warn().Err(err).Msg("加载告警状态失败，使用默认状态")
		st = state.New()
	}

	results := s.observe(ctx)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run aborted: %w", err)
	}

	for i := range results {
		r := &results[i]
		r.Outcome = s.engine.Evaluate(st, r.Instrument, r.Resolution, now)
		report.Events = append(report.Events, r.Outcome.Events()...)
	}
	report.Results = results

	if err := s.state.Save(ctx, st); err != nil {
		return report, fmt.Errorf("persist alert state: %w", err)
	}

	if s.history != nil && len(report.Events) > 0 {
		if err := s.history.Append(ctx, report.Events); err != nil {
			s.logger.Error().Err(err).Int("events", len(report.Events)).Msg("failed to append alert history")
		}
	}

	report.Digest = buildDigest(now, results)
	if s.alertsOn && s.notifier != nil && report.Digest.HasAlerts() {
		msg := alerting.RenderAlerts(report.Digest, s.location)
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch alert")
		} else {
			report.Notified = true
		}
	}

	s.logger.Info().
		Int("instruments", len(results)).
		Int("alerts", len(report.Events)).
		Int("price_errors", len(report.Digest.Issues)).
		Int("suppressed", len(report.Digest.Suppressed)).
		Msg("run complete")
	return report, nil
}

// observe resolves every instrument in parallel, bounded by the worker count.
// Results keep the configured order.
func (s *Service) observe(ctx context.Context) []Result {
	results := make([]Result, len(s.instruments))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, inst := range s.instruments {
		i, inst := i, inst
		g.Go(func() error {
			obs := s.observer.Observe(ctx, inst)
			res := s.resolver.Resolve(inst.Market, obs)
			results[i] = Result{Instrument: inst, Observations: obs, Resolution: res}

			logger := s.logger.With().Str("symbol", inst.Symbol).Logger()
			if res.OK() {
				logger.Debug().Str("price", res.Price.Decimal.String()).Str("source", string(res.Source)).Msg("price resolved")
			} else {
				logger.Warn().Err(res.Err).Msg("price unresolved")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func buildDigest(at time.Time, results []Result) alerting.Digest {
	d := alerting.Digest{At: at}
	for _, r := range results {
		inst := r.Instrument
		if r.Outcome.ObservationErr != nil {
			d.Issues = append(d.Issues, alerting.Issue{
				Name:   inst.DisplayName(),
				Symbol: inst.Symbol,
				Reason: issueReason(r.Resolution, r.Outcome.ObservationErr),
			})
			continue
		}
		for _, dir := range r.Outcome.Directions {
			switch {
			case dir.Event != nil:
				d.Breaches = append(d.Breaches, alerting.Breach{
					Name:      dir.Event.Name,
					Symbol:    inst.Symbol,
					Market:    inst.Market,
					Direction: dir.Direction,
					Price:     dir.Event.Price,
					Threshold: dir.Event.Threshold,
				})
			case dir.Limited != decision.LimitNone:
				d.Suppressed = append(d.Suppressed, alerting.Note{
					Name:      inst.DisplayName(),
					Symbol:    inst.Symbol,
					Direction: dir.Direction,
					Reason:    string(dir.Limited),
				})
			}
		}
	}
	return d
}

func issueReason(res resolver.Resolution, err error) string {
	switch {
	case errors.Is(err, resolver.ErrJumpRejected):
		return fmt.Sprintf("jump filter rejected price (%s%% vs previous close)", res.Deviation.Mul(decimal.NewFromInt(100)).StringFixed(1))
	case errors.Is(err, resolver.ErrNoObservation):
		return "no usable price"
	default:
		return err.Error()
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
