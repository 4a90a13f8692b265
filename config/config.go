package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kleberhub/binance-futures-bot/internal/model"
)

type Config struct {
	Bot        BotConfig        `yaml:"bot"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Trading    TradingConfig    `yaml:"trading"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Orders     OrdersConfig     `yaml:"orders"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type BotConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ExchangeConfig struct {
	BaseURL        string               `yaml:"base_url"`
	APIKey         string               `yaml:"api_key"`
	APISecret      string               `yaml:"api_secret"`
	RecvWindow     int64                `yaml:"recv_window"`
	// TimeOffset corrects a skewed local clock relative to exchange time.
	// Candle open times are absolute instants, so this stays zero unless the
	// host clock is known to drift.
	TimeOffset     time.Duration        `yaml:"time_offset"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
	Timeout        time.Duration        `yaml:"timeout"`
}

type MarketDataConfig struct {
	Venue        string `yaml:"venue"`
	BybitBaseURL string `yaml:"bybit_base_url"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type TradingConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Symbols         []string `yaml:"symbols"`
	DiscoverSymbols bool     `yaml:"discover_symbols"`
	Timeframe       string   `yaml:"timeframe"`
	Volume          float64  `yaml:"volume"`
	StopLossPct     float64  `yaml:"stop_loss_pct"`
	TakeProfitPct   float64  `yaml:"take_profit_pct"`
	Leverage        int      `yaml:"leverage"`
	MarginType      string   `yaml:"margin_type"`
	MaxPositions    int      `yaml:"max_positions"`
	CriticalBalance float64  `yaml:"critical_balance"`
}

type StrategyConfig struct {
	ROCPeriod     int     `yaml:"roc_period"`
	ROCThreshold  float64 `yaml:"roc_threshold"`
	VolumePeriod  int     `yaml:"volume_period"`
	VolumeFactor  float64 `yaml:"volume_factor"`
	HistoryCandle int     `yaml:"history_candles"`
}

type ScannerConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	SafetyMargin time.Duration `yaml:"safety_margin"`
}

type OrdersConfig struct {
	EntryType         string        `yaml:"entry_type"`
	FreshnessAttempts int           `yaml:"freshness_attempts"`
	FreshnessDelay    time.Duration `yaml:"freshness_delay"`
	SubmitPause       time.Duration `yaml:"submit_pause"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	MaxAge     int    `yaml:"max_age"`
	CloudWatch bool   `yaml:"cloudwatch"`
	AWSRegion  string `yaml:"aws_region"`
	Namespace  string `yaml:"namespace"`
}

// TimeframeDuration resolves the configured timeframe to its bucket length.
func (c *Config) TimeframeDuration() time.Duration {
	return model.TimeframeDurations[c.Trading.Timeframe]
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Exchange: ExchangeConfig{
			RecvWindow: 6000,
			Timeout:    10 * time.Second,
			RateLimit:  RateLimitConfig{RequestsPerSecond: 5, BurstSize: 10},
		},
		MarketData: MarketDataConfig{Venue: "binance"},
		Orders: OrdersConfig{
			EntryType:         "LIMIT",
			FreshnessAttempts: 5,
			FreshnessDelay:    time.Second,
			SubmitPause:       500 * time.Millisecond,
		},
		Scanner: ScannerConfig{MaxWorkers: 8, SafetyMargin: 30 * time.Second},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// API credentials come from the environment, never from the file on disk.
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		config.Exchange.APIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		config.Exchange.APISecret = strings.TrimSpace(v)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Name == "" {
		return fmt.Errorf("bot.name is required")
	}
	if cfg.Bot.Version == "" {
		return fmt.Errorf("bot.version is required")
	}

	if _, ok := model.TimeframeDurations[cfg.Trading.Timeframe]; !ok {
		return fmt.Errorf("trading.timeframe '%s' is not supported", cfg.Trading.Timeframe)
	}
	if len(cfg.Trading.Symbols) == 0 && !cfg.Trading.DiscoverSymbols {
		return fmt.Errorf("trading.symbols must not be empty unless trading.discover_symbols is set")
	}
	if cfg.Trading.Volume <= 0 {
		return fmt.Errorf("trading.volume must be greater than 0")
	}
	if cfg.Trading.StopLossPct <= 0 || cfg.Trading.TakeProfitPct <= 0 {
		return fmt.Errorf("trading.stop_loss_pct and trading.take_profit_pct must be greater than 0")
	}
	if cfg.Trading.MaxPositions <= 0 {
		return fmt.Errorf("trading.max_positions must be greater than 0")
	}
	if cfg.Trading.Leverage <= 0 {
		return fmt.Errorf("trading.leverage must be greater than 0")
	}
	switch strings.ToUpper(cfg.Trading.MarginType) {
	case "ISOLATED", "CROSSED":
	default:
		return fmt.Errorf("trading.margin_type must be ISOLATED or CROSSED")
	}

	if cfg.Strategy.ROCPeriod <= 0 {
		return fmt.Errorf("strategy.roc_period must be greater than 0")
	}
	if cfg.Strategy.ROCThreshold <= 0 {
		return fmt.Errorf("strategy.roc_threshold must be greater than 0")
	}
	if cfg.Strategy.VolumePeriod <= 0 {
		return fmt.Errorf("strategy.volume_period must be greater than 0")
	}
	if cfg.Strategy.VolumeFactor <= 0 {
		return fmt.Errorf("strategy.volume_factor must be greater than 0")
	}
	if cfg.Strategy.HistoryCandle <= cfg.Strategy.ROCPeriod+cfg.Strategy.VolumePeriod {
		return fmt.Errorf("strategy.history_candles must exceed roc_period + volume_period")
	}

	if cfg.Scanner.MaxWorkers <= 0 {
		return fmt.Errorf("scanner.max_workers must be greater than 0")
	}
	if cfg.Scanner.SafetyMargin < 0 {
		return fmt.Errorf("scanner.safety_margin must not be negative")
	}
	if cfg.Scanner.SafetyMargin >= cfg.TimeframeDuration() {
		return fmt.Errorf("scanner.safety_margin must be shorter than the timeframe")
	}

	switch strings.ToUpper(cfg.Orders.EntryType) {
	case "LIMIT", "MARKET":
	default:
		return fmt.Errorf("orders.entry_type must be LIMIT or MARKET")
	}
	if cfg.Orders.FreshnessAttempts <= 0 {
		return fmt.Errorf("orders.freshness_attempts must be greater than 0")
	}

	switch cfg.MarketData.Venue {
	case "binance", "bybit":
	default:
		return fmt.Errorf("market_data.venue must be binance or bybit")
	}

	return nil
}
