package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/jwaldner/wheelhouse/internal/capital"
	"github.com/jwaldner/wheelhouse/internal/health"
	"github.com/jwaldner/wheelhouse/internal/pipeline"
	"github.com/jwaldner/wheelhouse/internal/roll"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// DefaultPath is read when no --config flag is given
const DefaultPath = "config.yaml"

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Format   string `yaml:"format"` // text or json
}

// ProviderConfig selects and tunes the market data source
type ProviderConfig struct {
	Kind              string       `yaml:"kind"` // fixture, clickhouse or alpaca
	FixtureDir        string       `yaml:"fixture_dir"`
	ClickHouseDSN     string       `yaml:"clickhouse_dsn"`
	ClickHouseTable   string       `yaml:"clickhouse_table"`
	FactorTable       string       `yaml:"factor_table"`
	Alpaca            AlpacaConfig `yaml:"alpaca"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	Burst             int          `yaml:"burst"`
	TimeoutSeconds    int          `yaml:"timeout_seconds"`
	SlowRequestMillis int          `yaml:"slow_request_ms"`
}

// AlpacaConfig represents Alpaca API configuration
type AlpacaConfig struct {
	APIKey     string `yaml:"api_key"`
	SecretKey  string `yaml:"secret_key"`
	DataURL    string `yaml:"data_url"`
	TradingURL string `yaml:"trading_url"`
}

// Timeout is the per-request deadline
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p ProviderConfig) SlowRequest() time.Duration {
	return time.Duration(p.SlowRequestMillis) * time.Millisecond
}

type PortfolioConfig struct {
	File string `yaml:"file"`
}

// JournalConfig represents recommendation journal configuration
type JournalConfig struct {
	Dir            string `yaml:"dir"`
	KeepDays       int    `yaml:"keep_days"`
	FilenameFormat string `yaml:"filename_format"`
}

type WatchlistConfig struct {
	Tickers []string `yaml:"tickers"`
	File    string   `yaml:"file"` // CSV or one ticker per line
	Preset  string   `yaml:"preset"`
}

type ScanConfig struct {
	Workers int `yaml:"workers"`
	// Value held positions from the live chain mid instead of the decay proxy
	QuoteValuation bool `yaml:"quote_valuation"`
	// Record every scan and review in the journal
	Journal bool `yaml:"journal"`
}

// Settings holds every decision-engine threshold
type Settings struct {
	Capital     capital.Settings           `yaml:"capital"`
	CSP         pipeline.Params            `yaml:"csp"`
	CoveredCall pipeline.CoveredCallParams `yaml:"covered_call"`
	Wheel       pipeline.WheelParams       `yaml:"wheel"`
	Health      health.Settings            `yaml:"health"`
	Roll        roll.Settings              `yaml:"roll"`
}

type Config struct {
	// Server settings
	Port string `yaml:"port"`

	Logging   LoggingConfig   `yaml:"logging"`
	Provider  ProviderConfig  `yaml:"provider"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Journal   JournalConfig   `yaml:"journal"`
	Watchlist WatchlistConfig `yaml:"watchlist"`
	Scan      ScanConfig      `yaml:"scan"`
	Settings  Settings        `yaml:"settings"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Port: "8080",
		Logging: LoggingConfig{
			LogLevel: "info",
			LogFile:  "wheelhouse.log",
			Format:   "text",
		},
		Provider: ProviderConfig{
			Kind:              "fixture",
			FixtureDir:        "data/market",
			ClickHouseTable:   "option_quotes",
			FactorTable:       "factor_snapshots",
			RequestsPerSecond: 5,
			Burst:             5,
			TimeoutSeconds:    30,
			SlowRequestMillis: 5000,
		},
		Portfolio: PortfolioConfig{File: "data/portfolio.yaml"},
		Journal: JournalConfig{
			Dir:            "data/journal",
			KeepDays:       30,
			FilenameFormat: "{strategy}_{timestamp}_{id}.json",
		},
		Watchlist: WatchlistConfig{Preset: "default"},
		Scan:      ScanConfig{Workers: 4, Journal: true},
		Settings: Settings{
			Capital:     capital.DefaultSettings(),
			CSP:         pipeline.DefaultCSPParams(),
			CoveredCall: pipeline.DefaultCoveredCallParams(),
			Wheel:       pipeline.DefaultWheelParams(),
			Health:      health.DefaultSettings(),
			Roll:        roll.DefaultSettings(),
		},
	}
}

// Load layers defaults, then the YAML file at path (a missing file is not an
// error), then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Logging.LogLevel = getEnv("LOG_LEVEL", cfg.Logging.LogLevel)
	cfg.Logging.LogFile = getEnv("LOG_FILE", cfg.Logging.LogFile)
	cfg.Provider.Kind = getEnv("PROVIDER", cfg.Provider.Kind)
	cfg.Provider.FixtureDir = getEnv("FIXTURE_DIR", cfg.Provider.FixtureDir)
	cfg.Provider.ClickHouseDSN = getEnv("CLICKHOUSE_DSN", cfg.Provider.ClickHouseDSN)
	cfg.Provider.Alpaca.APIKey = getEnv("ALPACA_API_KEY", cfg.Provider.Alpaca.APIKey)
	cfg.Provider.Alpaca.SecretKey = getEnv("ALPACA_SECRET_KEY", cfg.Provider.Alpaca.SecretKey)
	cfg.Portfolio.File = getEnv("PORTFOLIO_FILE", cfg.Portfolio.File)
	cfg.Journal.Dir = getEnv("JOURNAL_DIR", cfg.Journal.Dir)
	cfg.Watchlist.Tickers = getEnvStringSlice("DEFAULT_STOCKS", cfg.Watchlist.Tickers)
	cfg.Watchlist.File = getEnv("WATCHLIST_FILE", cfg.Watchlist.File)
	cfg.Scan.Workers = getEnvInt("SCAN_WORKERS", cfg.Scan.Workers)

	c := &cfg.Settings.Capital
	c.AvailableCash = getEnvFloat("AVAILABLE_CASH", c.AvailableCash)
	c.MaxCashPerPosition = getEnvFloat("MAX_CASH_PER_POSITION", c.MaxCashPerPosition)
	c.ReserveCash = getEnvFloat("RESERVE_CASH", c.ReserveCash)
	c.MaxPositions = getEnvInt("MAX_POSITIONS", c.MaxPositions)
}

// Validate checks every section and wraps failures in ErrInvalid
func (c *Config) Validate() error {
	switch c.Provider.Kind {
	case "fixture":
	case "clickhouse":
		if c.Provider.ClickHouseDSN == "" {
			return fmt.Errorf("%w: clickhouse provider needs clickhouse_dsn", ErrInvalid)
		}
	case "alpaca":
		if c.Provider.Alpaca.APIKey == "" || c.Provider.Alpaca.SecretKey == "" {
			return fmt.Errorf("%w: alpaca provider needs ALPACA_API_KEY and ALPACA_SECRET_KEY", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown provider kind %q", ErrInvalid, c.Provider.Kind)
	}
	if c.Provider.RequestsPerSecond < 0 || c.Provider.Burst < 0 || c.Provider.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: provider limits must not be negative", ErrInvalid)
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("%w: scan.workers must be at least 1", ErrInvalid)
	}
	if c.Journal.KeepDays < 0 {
		return fmt.Errorf("%w: journal.keep_days must not be negative", ErrInvalid)
	}

	s := c.Settings
	checks := []struct {
		section string
		err     error
	}{
		{"capital", s.Capital.Validate()},
		{"csp", s.CSP.Validate()},
		{"covered_call", s.CoveredCall.Validate()},
		{"wheel", s.Wheel.Validate()},
		{"health", s.Health.Validate()},
		{"roll", s.Roll.Validate()},
	}
	for _, chk := range checks {
		if chk.err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, chk.section, chk.err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, strings.ToUpper(s))
			}
		}
		return out
	}
	return defaultValue
}
