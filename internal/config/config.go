package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"stock-threshold-alerts/internal/domain"
	"stock-threshold-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App              AppConfig         `mapstructure:"app"`
	Logging          logging.Config    `mapstructure:"logging"`
	Market           MarketConfig      `mapstructure:"market"`
	InstrumentSource InstrumentsConfig `mapstructure:"instruments"`
	Provider         ProviderConfig    `mapstructure:"provider"`
	Resolution       ResolutionConfig  `mapstructure:"resolution"`
	Alerting         AlertingConfig    `mapstructure:"alerting"`
	State            StateConfig       `mapstructure:"state"`
	History          HistoryConfig     `mapstructure:"history"`
	Redis            RedisConfig       `mapstructure:"redis"`
	Database         DatabaseConfig    `mapstructure:"database"`
	Scheduler        SchedulerConfig   `mapstructure:"scheduler"`
	Runner           RunnerConfig      `mapstructure:"runner"`
	Report           ReportConfig      `mapstructure:"report"`
	Export           ExportConfig      `mapstructure:"export"`

	location    *time.Location
	instruments []domain.Instrument
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig sets the trading calendar timezone and domestic symbol suffixes.
type MarketConfig struct {
	Timezone         string   `mapstructure:"timezone"`
	DomesticSuffixes []string `mapstructure:"domestic_suffixes"`
}

// InstrumentsConfig lists the watched tickers from a CSV file and/or inline.
type InstrumentsConfig struct {
	File  string           `mapstructure:"file"`
	Items []InstrumentItem `mapstructure:"items"`
}

// InstrumentItem mirrors one CSV row. Thresholds are strings so that blank
// and "none" stay distinguishable from numbers.
type InstrumentItem struct {
	Name   string `mapstructure:"company_name"`
	Ticker string `mapstructure:"ticker"`
	Down   string `mapstructure:"price_down"`
	Up     string `mapstructure:"price_up"`
}

// ProviderConfig covers the quote provider HTTP client.
type ProviderConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	SourceTimeout     time.Duration `mapstructure:"source_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// ResolutionConfig tunes price reconciliation.
type ResolutionConfig struct {
	PairTolerance     float64 `mapstructure:"pair_tolerance"`
	IntradayTolerance float64 `mapstructure:"intraday_tolerance"`
	JumpThreshold     float64 `mapstructure:"jump_threshold"`
	PriceSource       string  `mapstructure:"price_source"`
}

// PolicyConfig is the firing policy of one direction.
type PolicyConfig struct {
	Dedup     bool `mapstructure:"dedup"`
	CrossOnly bool `mapstructure:"cross_only"`
}

// AlertingConfig defines alert policies, limits and routing.
type AlertingConfig struct {
	Enabled               bool           `mapstructure:"enabled"`
	Down                  PolicyConfig   `mapstructure:"down"`
	Up                    PolicyConfig   `mapstructure:"up"`
	PerInstrumentDailyCap int            `mapstructure:"per_instrument_daily_cap"`
	GlobalDailyCap        int            `mapstructure:"global_daily_cap"`
	MinInterval           time.Duration  `mapstructure:"min_interval"`
	Channels              []string       `mapstructure:"channels"`
	Retry                 RetryConfig    `mapstructure:"retry"`
	Slack                 SlackConfig    `mapstructure:"slack"`
	Telegram              TelegramConfig `mapstructure:"telegram"`
	Email                 EmailConfig    `mapstructure:"email"`
}

// RetryConfig bounds redelivery.
type RetryConfig struct {
	MaxRetries uint64        `mapstructure:"max_retries"`
	Base       time.Duration `mapstructure:"base"`
}

// SlackConfig 描述 Slack webhook 参数。
type SlackConfig struct {
	WebhookURL       string `mapstructure:"webhook_url"`
	DownWebhookURL   string `mapstructure:"webhook_down"`
	UpWebhookURL     string `mapstructure:"webhook_up"`
	ReportWebhookURL string `mapstructure:"webhook_report"`
	Split            bool   `mapstructure:"split"`
	Username         string `mapstructure:"username"`
	IconEmoji        string `mapstructure:"icon_emoji"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EmailConfig 描述 SMTP 参数。
type EmailConfig struct {
	Host     string   `mapstructure:"smtp_host"`
	Port     int      `mapstructure:"smtp_port"`
	Username string   `mapstructure:"smtp_user"`
	Password string   `mapstructure:"smtp_pass"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	StartTLS bool     `mapstructure:"starttls"`
}

// StateConfig selects the alert state backend.
type StateConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	Key     string `mapstructure:"key"`
}

// HistoryConfig selects the alert history backend.
type HistoryConfig struct {
	Backend   string      `mapstructure:"backend"`
	Path      string      `mapstructure:"path"`
	Retention int         `mapstructure:"retention"`
	Kafka     KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig enables publication of alert events.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs run cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Window          WindowConfig  `mapstructure:"window"`
}

// WindowConfig is the active trading window in the market timezone.
type WindowConfig struct {
	Start    string   `mapstructure:"start"`
	End      string   `mapstructure:"end"`
	Weekdays []string `mapstructure:"weekdays"`
}

// RunnerConfig bounds per-run parallelism.
type RunnerConfig struct {
	Workers int `mapstructure:"workers"`
}

// ReportConfig tunes the periodic summary.
type ReportConfig struct {
	WindowDays int    `mapstructure:"window_days"`
	Split      bool   `mapstructure:"split"`
	Timezone   string `mapstructure:"timezone"`
}

// ExportConfig sets CLI export behaviour. MaxDataPoints is in days.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, .env, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("STOCKALERT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	instruments, err := LoadInstruments(cfg.InstrumentSource, cfg.Market.DomesticSuffixes)
	if err != nil {
		return nil, err
	}
	cfg.instruments = instruments

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockalert")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("market.timezone", "Asia/Seoul")
	v.SetDefault("market.domestic_suffixes", domain.DefaultDomesticSuffixes)

	v.SetDefault("instruments.file", "")

	v.SetDefault("provider.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("provider.source_timeout", "8s")
	v.SetDefault("provider.request_timeout", "10s")
	v.SetDefault("provider.requests_per_second", 5.0)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("provider.user_agent", "Mozilla/5.0 (compatible; stockalert/1.0)")

	v.SetDefault("resolution.pair_tolerance", 0.03)
	v.SetDefault("resolution.intraday_tolerance", 0.02)
	v.SetDefault("resolution.jump_threshold", 0.20)
	v.SetDefault("resolution.price_source", "auto")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.down.dedup", true)
	v.SetDefault("alerting.down.cross_only", false)
	v.SetDefault("alerting.up.dedup", true)
	v.SetDefault("alerting.up.cross_only", false)
	v.SetDefault("alerting.per_instrument_daily_cap", 3)
	v.SetDefault("alerting.global_daily_cap", 50)
	v.SetDefault("alerting.min_interval", "30m")
	v.SetDefault("alerting.channels", []string{})
	v.SetDefault("alerting.retry.max_retries", 3)
	v.SetDefault("alerting.retry.base", "500ms")
	v.SetDefault("alerting.slack.username", "Stock-Alert-Bot")
	v.SetDefault("alerting.slack.icon_emoji", ":bar_chart:")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.smtp_port", 587)
	v.SetDefault("alerting.email.starttls", true)

	v.SetDefault("state.backend", "file")
	v.SetDefault("state.path", "data/state.json")
	v.SetDefault("state.key", "stockalert:state")

	v.SetDefault("history.backend", "file")
	v.SetDefault("history.path", "data/history.json")
	v.SetDefault("history.retention", 5000)
	v.SetDefault("history.kafka.enabled", false)
	v.SetDefault("history.kafka.topic", "stock-alerts")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x53544b41))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.window.start", "09:00")
	v.SetDefault("scheduler.window.end", "15:30")
	v.SetDefault("scheduler.window.weekdays", []string{"mon", "tue", "wed", "thu", "fri"})

	v.SetDefault("runner.workers", 4)

	v.SetDefault("report.window_days", 7)
	v.SetDefault("report.split", false)

	v.SetDefault("export.max_data_points", 365)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var (
	stateBackends   = map[string]bool{"file": true, "redis": true, "postgres": true}
	historyBackends = map[string]bool{"file": true, "postgres": true}
	channelNames    = map[string]bool{"slack": true, "telegram": true, "email": true}
)

// Validate performs sanity checks and resolves the market timezone.
func (c *Config) Validate() error {
	loc, err := time.LoadLocation(c.Market.Timezone)
	if err != nil {
		return fmt.Errorf("market.timezone %q: %w", c.Market.Timezone, err)
	}
	c.location = loc

	if c.Report.Timezone != "" {
		if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
			return fmt.Errorf("report.timezone %q: %w", c.Report.Timezone, err)
		}
	}

	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Runner.Workers <= 0 {
		return fmt.Errorf("runner.workers must be greater than zero")
	}
	if c.Provider.SourceTimeout <= 0 {
		return fmt.Errorf("provider.source_timeout must be greater than zero")
	}

	for name, v := range map[string]float64{
		"resolution.pair_tolerance":     c.Resolution.PairTolerance,
		"resolution.intraday_tolerance": c.Resolution.IntradayTolerance,
		"resolution.jump_threshold":     c.Resolution.JumpThreshold,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be greater than zero", name)
		}
	}
	switch c.Resolution.PriceSource {
	case "auto", "history":
	default:
		return fmt.Errorf("resolution.price_source must be auto or history, got %q", c.Resolution.PriceSource)
	}

	if c.Alerting.MinInterval < 0 {
		return fmt.Errorf("alerting.min_interval cannot be negative")
	}

	if !stateBackends[c.State.Backend] {
		return fmt.Errorf("state.backend must be file, redis or postgres, got %q", c.State.Backend)
	}
	if !historyBackends[c.History.Backend] {
		return fmt.Errorf("history.backend must be file or postgres, got %q", c.History.Backend)
	}
	if (c.State.Backend == "postgres" || c.History.Backend == "postgres") && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for the postgres backend")
	}
	if c.State.Backend == "file" && c.State.Path == "" {
		return fmt.Errorf("state.path is required for the file backend")
	}
	if c.History.Backend == "file" && c.History.Path == "" {
		return fmt.Errorf("history.path is required for the file backend")
	}
	if c.History.Kafka.Enabled && (len(c.History.Kafka.Brokers) == 0 || c.History.Kafka.Topic == "") {
		return fmt.Errorf("history.kafka.brokers and history.kafka.topic are required when kafka is enabled")
	}

	for _, ch := range c.Alerting.Channels {
		if !channelNames[ch] {
			return fmt.Errorf("alerting.channels: unknown channel %q", ch)
		}
		if err := c.validateChannel(ch); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateChannel(ch string) error {
	switch ch {
	case "slack":
		if c.Alerting.Slack.WebhookURL == "" && c.Alerting.Slack.ReportWebhookURL == "" &&
			c.Alerting.Slack.DownWebhookURL == "" && c.Alerting.Slack.UpWebhookURL == "" {
			return fmt.Errorf("alerting.slack.webhook_url 必须配置")
		}
	case "telegram":
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	case "email":
		if c.Alerting.Email.Host == "" || c.Alerting.Email.From == "" || len(c.Alerting.Email.To) == 0 {
			return fmt.Errorf("alerting.email.smtp_host, from and to 必须配置")
		}
	}
	return nil
}

// Location returns the market timezone resolved by Validate.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// ReportLocation returns report.timezone, falling back to the market timezone.
func (c *Config) ReportLocation() *time.Location {
	if c.Report.Timezone != "" {
		if loc, err := time.LoadLocation(c.Report.Timezone); err == nil {
			return loc
		}
	}
	return c.Location()
}

// Instruments returns the watched instruments in configured order.
func (c *Config) Instruments() []domain.Instrument {
	return c.instruments
}

// SetInstruments replaces the instrument list.
func (c *Config) SetInstruments(items []domain.Instrument) {
	c.instruments = items
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
