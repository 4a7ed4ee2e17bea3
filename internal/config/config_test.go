package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwaldner/wheelhouse/internal/pipeline"
	"github.com/jwaldner/wheelhouse/internal/roll"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 38000.0, cfg.Settings.Capital.AvailableCash)
	assert.Equal(t, 4, cfg.Settings.Capital.MaxPositions)
	assert.Equal(t, 20, cfg.Settings.CSP.MinDays)
	assert.Equal(t, 0.95, cfg.Settings.CoveredCall.MinStrikePct)
	assert.Equal(t, 5.0, cfg.Settings.Wheel.TargetEntryDiscount)
	assert.Equal(t, 21, cfg.Settings.Health.ForceCloseDTE)
	assert.Equal(t, roll.DefaultSettings(), cfg.Settings.Roll)
	assert.Equal(t, "fixture", cfg.Provider.Kind)
}

func TestYAMLOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "9090"
logging:
  log_level: debug
settings:
  capital:
    available_cash: 50000
  csp:
    min_premium: 1.25
    max_delta: -0.25
  covered_call:
    max_days: 30
    max_strike_pct: 1.2
  roll:
    top_n: 2
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.Logging.LogLevel)
	assert.Equal(t, "wheelhouse.log", cfg.Logging.LogFile)
	assert.Equal(t, 50000.0, cfg.Settings.Capital.AvailableCash)
	assert.Equal(t, 30000.0, cfg.Settings.Capital.MaxCashPerPosition)
	assert.Equal(t, 1.25, cfg.Settings.CSP.MinPremium)
	require.NotNil(t, cfg.Settings.CSP.MaxDelta)
	assert.Equal(t, -0.25, *cfg.Settings.CSP.MaxDelta)
	assert.Equal(t, 60, cfg.Settings.CSP.MaxDays)
	assert.Equal(t, 30, cfg.Settings.CoveredCall.MaxDays)
	assert.Equal(t, 1.2, cfg.Settings.CoveredCall.MaxStrikePct)
	assert.Equal(t, 2, cfg.Settings.Roll.TopN)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "port: \"9090\"\n")
	t.Setenv("PORT", "7070")
	t.Setenv("DEFAULT_STOCKS", "aapl, msft,,ko")
	t.Setenv("AVAILABLE_CASH", "12500.50")
	t.Setenv("WATCHLIST_FILE", "data/sp500.csv")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, []string{"AAPL", "MSFT", "KO"}, cfg.Watchlist.Tickers)
	assert.Equal(t, 12500.50, cfg.Settings.Capital.AvailableCash)
	assert.Equal(t, "data/sp500.csv", cfg.Watchlist.File)
}

func TestInvalidConfigFailsFast(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("CLICKHOUSE_DSN", "")
	cases := map[string]string{
		"negative top_n":    "settings:\n  csp:\n    top_n: -1\n",
		"unknown provider":  "provider:\n  kind: carrier-pigeon\n",
		"clickhouse no dsn": "provider:\n  kind: clickhouse\n",
		"alpaca no keys":    "provider:\n  kind: alpaca\n",
		"zero workers":      "scan:\n  workers: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(writeConfig(t, "settings:\n  csp:\n    top_n: -1\n"))
	assert.ErrorIs(t, err, pipeline.ErrInvalidTopN)
}

func TestMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "port: [unterminated\n"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalid)
}
