// Package config loads platform configuration from a YAML file, applies
// DB-backed runtime overrides, and lets environment variables win last.
// Reads are lock-free snapshots; the override refresh job swaps the
// snapshot atomically so in-flight readers never block.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level baked configuration, loaded once at startup from
// YAML + environment. DB-backed overrides are layered on top at runtime by
// Store (see store.go) and never mutate this struct directly.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Universe UniverseConfig `mapstructure:"universe"`
	Trades   TradesConfig   `mapstructure:"trades"`
	Arb      ArbConfig      `mapstructure:"arb"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" | "text"
}

// StorageConfig points at the relational store.
type StorageConfig struct {
	DSN string `mapstructure:"dsn"` // e.g. "file:data/polymarket.db?_pragma=journal_mode(WAL)"
}

// UpstreamConfig holds the three REST surfaces and the market WS endpoint.
type UpstreamConfig struct {
	GammaBaseURL   string        `mapstructure:"gamma_base_url"`
	ClobBaseURL    string        `mapstructure:"clob_base_url"`
	DataBaseURL    string        `mapstructure:"data_base_url"`
	WSMarketURL    string        `mapstructure:"ws_market_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// UniverseConfig tunes which markets get tracked (spec §4.G sync_universe).
type UniverseConfig struct {
	MinGammaVolume     float64  `mapstructure:"min_gamma_volume"`
	MinLiquidity       float64  `mapstructure:"min_liquidity"`
	MinOpenInterest    float64  `mapstructure:"min_open_interest"`
	MaxTrackedMarkets  int      `mapstructure:"max_tracked_markets"`
	ManualIncludeSlugs []string `mapstructure:"manual_include_slugs"`
	ManualExcludeSlugs []string `mapstructure:"manual_exclude_slugs"`
}

// TradesConfig tunes the large-trade ingestion job (spec §4.G sync_large_trades, §4.H).
type TradesConfig struct {
	SafetyWindowSeconds   int     `mapstructure:"safety_window_seconds"`
	MaxPages              int     `mapstructure:"max_pages"`
	InitialLookbackHours  int     `mapstructure:"initial_lookback_hours"`
	LargeTradeNotionalUSD float64 `mapstructure:"large_trade_notional_usd"`
	NewWalletMaxAgeHours  int     `mapstructure:"new_wallet_max_age_hours"`
	DormantMinIdleDays    int     `mapstructure:"dormant_min_idle_days"`
}

// ArbConfig tunes the binary-arbitrage evaluator (spec §4.I).
type ArbConfig struct {
	FeeBps              int           `mapstructure:"fee_bps"`
	MinEdge             float64       `mapstructure:"min_edge"`
	MaxBookAge          time.Duration `mapstructure:"max_book_age"`
	CooldownPerMarket   time.Duration `mapstructure:"cooldown_per_market"`
	MinExecutableShares float64       `mapstructure:"min_executable_shares"`
	MaxSharesToEvaluate float64       `mapstructure:"max_shares_to_evaluate"`
}

// AlertsConfig selects and tunes the dispatcher's channel drivers (§4.J).
type AlertsConfig struct {
	DedupeWindow     time.Duration `mapstructure:"dedupe_window"`
	Channels         []string      `mapstructure:"channels"` // "log", "slack", "telegram", "email"
	SlackWebhookURL  string        `mapstructure:"slack_webhook_url"`
	TelegramBotToken string        `mapstructure:"telegram_bot_token"`
	TelegramChatID   string        `mapstructure:"telegram_chat_id"`
	SMTP             SMTPConfig    `mapstructure:"smtp"`
}

// SMTPConfig configures the email channel driver.
type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// Load reads config from a YAML file with POLY_* environment overrides,
// matching the precedence the teacher's internal/config applies for
// sensitive fields, generalized to every field via SetEnvKeyReplacer +
// AutomaticEnv rather than a manual per-field list.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if dsn := os.Getenv("POLY_STORAGE_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("storage.dsn", "file:polymarket.db?_pragma=journal_mode(WAL)")
	v.SetDefault("upstream.gamma_base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("upstream.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("upstream.data_base_url", "https://data-api.polymarket.com")
	v.SetDefault("upstream.ws_market_url", "wss://ws-subscriptions-clob.polymarket.com/ws/market")
	v.SetDefault("upstream.request_timeout", 10*time.Second)
	v.SetDefault("upstream.max_concurrency", 10)
	v.SetDefault("universe.min_gamma_volume", 10000.0)
	v.SetDefault("universe.min_liquidity", 5000.0)
	v.SetDefault("universe.min_open_interest", 1000.0)
	v.SetDefault("universe.max_tracked_markets", 400)
	v.SetDefault("trades.safety_window_seconds", 30)
	v.SetDefault("trades.max_pages", 20)
	v.SetDefault("trades.initial_lookback_hours", 24)
	v.SetDefault("trades.large_trade_notional_usd", 5000.0)
	v.SetDefault("trades.new_wallet_max_age_hours", 24)
	v.SetDefault("trades.dormant_min_idle_days", 30)
	v.SetDefault("arb.fee_bps", 0)
	v.SetDefault("arb.min_edge", 0.01)
	v.SetDefault("arb.max_book_age", 30*time.Second)
	v.SetDefault("arb.cooldown_per_market", 5*time.Minute)
	v.SetDefault("arb.min_executable_shares", 50.0)
	v.SetDefault("arb.max_shares_to_evaluate", 5000.0)
	v.SetDefault("alerts.dedupe_window", 15*time.Minute)
	v.SetDefault("alerts.channels", []string{"log"})
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Upstream.GammaBaseURL == "" {
		return fmt.Errorf("upstream.gamma_base_url is required")
	}
	if c.Upstream.ClobBaseURL == "" {
		return fmt.Errorf("upstream.clob_base_url is required")
	}
	if c.Upstream.DataBaseURL == "" {
		return fmt.Errorf("upstream.data_base_url is required")
	}
	if c.Upstream.MaxConcurrency <= 0 {
		return fmt.Errorf("upstream.max_concurrency must be > 0")
	}
	if c.Universe.MaxTrackedMarkets <= 0 {
		return fmt.Errorf("universe.max_tracked_markets must be > 0")
	}
	if c.Trades.SafetyWindowSeconds <= 0 {
		return fmt.Errorf("trades.safety_window_seconds must be > 0")
	}
	if c.Arb.MinEdge <= 0 || c.Arb.MinEdge > 0.05 {
		return fmt.Errorf("arb.min_edge must be in (0, 0.05]")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	for _, ch := range c.Alerts.Channels {
		switch ch {
		case "log", "slack", "telegram", "email":
		default:
			return fmt.Errorf("alerts.channels: unknown channel %q", ch)
		}
	}
	return nil
}
