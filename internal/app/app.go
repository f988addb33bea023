package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stock-threshold-alerts/internal/alerting"
	"stock-threshold-alerts/internal/config"
	"stock-threshold-alerts/internal/fetcher"
	"stock-threshold-alerts/internal/history"
	"stock-threshold-alerts/internal/resolver"
	"stock-threshold-alerts/internal/scheduler"
	"stock-threshold-alerts/internal/service"
	"stock-threshold-alerts/internal/state"
	"stock-threshold-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newProvider() *fetcher.Yahoo {
	p := a.Config.Provider
	return fetcher.NewYahoo(fetcher.YahooOptions{
		BaseURL:           p.BaseURL,
		Timeout:           p.RequestTimeout,
		UserAgent:         p.UserAgent,
		RequestsPerSecond: p.RequestsPerSecond,
		Burst:             p.Burst,
	}, a.Logger)
}

func (a *App) newObserver(provider fetcher.QuoteProvider) *fetcher.Observer {
	return fetcher.NewObserver(provider, fetcher.ObserverOptions{
		SourceTimeout: a.Config.Provider.SourceTimeout,
		SkipFast:      a.Config.Resolution.PriceSource == string(resolver.PriceSourceHistory),
	}, a.Logger)
}

// newNotifier fans out to every configured channel, each with retries.
// split controls per-direction Slack routing. Nil means no channel.
func (a *App) newNotifier(split bool) alerting.Notifier {
	cfg := a.Config.Alerting
	var notifiers []alerting.Notifier
	for _, ch := range cfg.Channels {
		var n alerting.Notifier
		switch ch {
		case "slack":
			n = alerting.NewSlackNotifier(alerting.SlackOptions{
				WebhookURL:       cfg.Slack.WebhookURL,
				DownWebhookURL:   cfg.Slack.DownWebhookURL,
				UpWebhookURL:     cfg.Slack.UpWebhookURL,
				ReportWebhookURL: cfg.Slack.ReportWebhookURL,
				Split:            split,
				Username:         cfg.Slack.Username,
				IconEmoji:        cfg.Slack.IconEmoji,
			}, a.Logger)
		case "telegram":
			n = alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger)
		case "email":
			n = alerting.NewEmailNotifier(alerting.EmailOptions{
				Host:     cfg.Email.Host,
				Port:     cfg.Email.Port,
				Username: cfg.Email.Username,
				Password: cfg.Email.Password,
				From:     cfg.Email.From,
				To:       cfg.Email.To,
				StartTLS: cfg.Email.StartTLS,
			}, a.Logger)
		default:
			a.Logger.Warn().Str("channel", ch).Msg("unknown alert channel ignored")
			continue
		}
		notifiers = append(notifiers, alerting.NewRetryNotifier(n, alerting.RetryOptions{
			MaxRetries: cfg.Retry.MaxRetries,
			Base:       cfg.Retry.Base,
		}, a.Logger))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewMultiNotifier(notifiers...)
}

// backends bundles the persistence layer selected by configuration.
type backends struct {
	state   state.Store
	history history.Store
	sink    history.Sink
	locker  storage.AdvisoryLocker
	closers []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the state and history stores. publish adds the
// Kafka sink when enabled.
func (a *App) openBackends(ctx context.Context, publish bool) (*backends, error) {
	cfg := a.Config
	loc := cfg.Location()
	b := &backends{}

	var pg *storage.Store
	if cfg.State.Backend == "postgres" || cfg.History.Backend == "postgres" {
		pool, err := storage.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		applied, err := storage.ApplyMigrations(ctx, pool, cfg.Database.MigrationsPath)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.Logger.Debug().Strs("migrations", applied).Msg("database schema ensured")
		pg = storage.NewStore(pool, storage.StoreOptions{Retention: cfg.History.Retention, Location: loc})
		b.closers = append(b.closers, pg.Close)
		b.locker = pg
	}

	switch cfg.State.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.state = state.NewRedisStore(client, cfg.State.Key, loc)
	case "postgres":
		b.state = pg
	default:
		b.state = state.NewFileStore(cfg.State.Path, loc)
	}

	switch cfg.History.Backend {
	case "postgres":
		b.history = pg
	default:
		b.history = history.NewFileStore(cfg.History.Path, cfg.History.Retention, loc)
	}
	b.sink = b.history

	if publish && cfg.History.Kafka.Enabled {
		writer := history.NewKafkaWriter(history.KafkaOptions{
			Brokers: cfg.History.Kafka.Brokers,
			Topic:   cfg.History.Kafka.Topic,
		})
		kafkaSink := history.NewKafkaSink(writer, cfg.History.Kafka.Topic, a.Logger)
		b.closers = append(b.closers, func() {
			if err := kafkaSink.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close kafka writer")
			}
		})
		b.sink = history.NewMultiSink(b.history, kafkaSink)
	}
	return b, nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	sc := a.Config.Scheduler
	window, err := scheduler.ParseWindow(sc.Window.Start, sc.Window.End, sc.Window.Weekdays, a.Config.Location())
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Options{
		Interval:     sc.Interval,
		AlignToStart: sc.AlignToBucket,
		StartupDelay: sc.StartupDelay,
		Window:       window,
	}, a.Logger)
}

// Watch executes the long-running scheduled service.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b, err := a.openBackends(ctx, true)
	if err != nil {
		return err
	}
	defer b.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	notifier := a.newNotifier(a.Config.Alerting.Slack.Split)
	if notifier == nil && a.Config.Alerting.Enabled {
		a.Logger.Warn().Msg("alerting enabled but no channel configured; alerts will only be recorded")
	}

	svc := service.New(a.Config, service.Dependencies{
		Scheduler: sched,
		Observer:  a.newObserver(a.newProvider()),
		State:     b.state,
		History:   b.sink,
		Notifier:  notifier,
		Locker:    b.locker,
	}, a.Logger)

	a.Logger.Info().Int("instruments", len(a.Config.Instruments())).Msg("starting alert service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert service stopped")
	return nil
}

// RunOptions configure a single batch.
type RunOptions struct {
	// DryRun keeps state in memory and prints instead of delivering.
	DryRun bool
}

// ExportOptions hold parameters for exporting alert history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	// Ticker restricts the listing to one symbol.
	Ticker string
}

// ReportOptions configure the report command.
type ReportOptions struct {
	Days int
	Send bool
}
