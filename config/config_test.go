package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeguard/internal/adapters/logger"
	"tradeguard/internal/domain"
)

// setRequiredEnv sets the keys without which every load fails.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BINANCE_API_KEY", "test-key")
	t.Setenv("BINANCE_API_SECRET", "test-secret")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.True(t, cfg.IsTestnet)
	assert.InDelta(t, 0.30, cfg.MaxDailyDrawdown, 1e-9)
	assert.InDelta(t, 0.20, cfg.MaxIntradayDrawdown, 1e-9)
	assert.Equal(t, domain.KillModeStopOpening, cfg.KillSwitchMode)
	assert.Equal(t, domain.ClockTime{}, cfg.DrawdownResetTime)
	assert.True(t, cfg.EnableAlerts)
	assert.True(t, cfg.RestoreRiskSession)
	assert.Equal(t, 5, cfg.MaxConcurrentPositions)
	assert.Equal(t, 2, cfg.MaxPositionsPerSymbol)
	assert.True(t, cfg.SessionsEnabled)
	assert.True(t, cfg.AutoMarketHours)
	assert.True(t, cfg.CryptoWeekends)
	assert.InDelta(t, 2.0, cfg.SpreadThreshold, 1e-9)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "LTCUSDT"}, cfg.Symbols)
	assert.Equal(t, 60*time.Second, cfg.UpdateInterval)
	assert.Equal(t, "USDT", cfg.QuoteAsset)
	assert.Equal(t, "./data/tradeguard.db", cfg.DBPath)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 10, cfg.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.QuoteCacheTTL)
	assert.True(t, cfg.APIEnabled)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "tradeguard.cycle", cfg.NATSSubject)

	require.Len(t, cfg.SessionWindows, 6)
	byName := make(map[string]domain.SessionWindow, len(cfg.SessionWindows))
	for _, w := range cfg.SessionWindows {
		byName[w.Name] = w
	}
	assert.Equal(t, domain.ClockTime{Hour: 22}, byName["FOREX_ASIA"].Start)
	assert.Equal(t, domain.ClockTime{Hour: 8}, byName["FOREX_ASIA"].End)
	assert.Equal(t, domain.CategoryCrypto, byName["CRYPTO_24_7"].Category)
	assert.Equal(t, []string{"XAUUSD"}, byName["COMMODITY_GOLD"].Symbols)

	assert.InDelta(t, 0.1, cfg.PointSizes["BTCUSDT"], 1e-9)
	assert.InDelta(t, 0.00001, cfg.PointSizes["EURUSD"], 1e-9)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_DAILY_DRAWDOWN_PERCENT", "12.5")
	t.Setenv("KILL_SWITCH_MODE", "emergency_close")
	t.Setenv("DRAWDOWN_RESET_TIME", "21:45")
	t.Setenv("TRADE_SYMBOLS", " BTCUSDT , EURUSD ")
	t.Setenv("UPDATE_INTERVAL_SECONDS", "15")
	t.Setenv("FOREX_EUROPE_SESSION_START", "06:30")
	t.Setenv("POINT_SIZES", "BTCUSDT:0.5,DOGEUSDT:0.0001")
	t.Setenv("QUOTE_CACHE_TTL_SECONDS", "0")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.InDelta(t, 0.125, cfg.MaxDailyDrawdown, 1e-9)
	assert.Equal(t, domain.KillModeEmergencyClose, cfg.KillSwitchMode)
	assert.Equal(t, domain.ClockTime{Hour: 21, Minute: 45}, cfg.DrawdownResetTime)
	assert.Equal(t, []string{"BTCUSDT", "EURUSD"}, cfg.Symbols)
	assert.Equal(t, 15*time.Second, cfg.UpdateInterval)
	assert.Equal(t, time.Duration(0), cfg.QuoteCacheTTL)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)

	var europe domain.SessionWindow
	for _, w := range cfg.SessionWindows {
		if w.Name == "FOREX_EUROPE" {
			europe = w
		}
	}
	assert.Equal(t, domain.ClockTime{Hour: 6, Minute: 30}, europe.Start)

	assert.InDelta(t, 0.5, cfg.PointSizes["BTCUSDT"], 1e-9)
	assert.InDelta(t, 0.0001, cfg.PointSizes["DOGEUSDT"], 1e-9)
	assert.InDelta(t, 0.01, cfg.PointSizes["ETHUSDT"], 1e-9) // untouched default
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing api key",
			env:     map[string]string{"BINANCE_API_KEY": ""},
			wantErr: "BINANCE_API_KEY must be set",
		},
		{
			name:    "missing api secret",
			env:     map[string]string{"BINANCE_API_SECRET": ""},
			wantErr: "BINANCE_API_SECRET must be set",
		},
		{
			name:    "daily drawdown not a number",
			env:     map[string]string{"MAX_DAILY_DRAWDOWN_PERCENT": "lots"},
			wantErr: "invalid MAX_DAILY_DRAWDOWN_PERCENT",
		},
		{
			name:    "daily drawdown zero",
			env:     map[string]string{"MAX_DAILY_DRAWDOWN_PERCENT": "0"},
			wantErr: "MAX_DAILY_DRAWDOWN_PERCENT must be between",
		},
		{
			name:    "daily drawdown above 100",
			env:     map[string]string{"MAX_DAILY_DRAWDOWN_PERCENT": "100.1"},
			wantErr: "MAX_DAILY_DRAWDOWN_PERCENT must be between",
		},
		{
			name:    "intraday drawdown negative",
			env:     map[string]string{"MAX_INTRADAY_DRAWDOWN_PERCENT": "-5"},
			wantErr: "MAX_INTRADAY_DRAWDOWN_PERCENT must be between",
		},
		{
			name:    "unknown kill switch mode",
			env:     map[string]string{"KILL_SWITCH_MODE": "HALT"},
			wantErr: "invalid KILL_SWITCH_MODE",
		},
		{
			name:    "malformed reset time",
			env:     map[string]string{"DRAWDOWN_RESET_TIME": "25:00"},
			wantErr: "invalid DRAWDOWN_RESET_TIME",
		},
		{
			name:    "zero concurrent positions",
			env:     map[string]string{"MAX_CONCURRENT_POSITIONS": "0"},
			wantErr: "MAX_CONCURRENT_POSITIONS must be at least 1",
		},
		{
			name:    "zero per-symbol positions",
			env:     map[string]string{"MAX_POSITIONS_PER_SYMBOL": "0"},
			wantErr: "MAX_POSITIONS_PER_SYMBOL must be at least 1",
		},
		{
			name:    "non-positive spread threshold",
			env:     map[string]string{"LIQUIDITY_MIN_SPREAD_THRESHOLD": "0"},
			wantErr: "LIQUIDITY_MIN_SPREAD_THRESHOLD must be positive",
		},
		{
			name:    "malformed session window override",
			env:     map[string]string{"FOREX_ASIA_SESSION_START": "sometime"},
			wantErr: "invalid FOREX_ASIA_SESSION_START",
		},
		{
			name:    "blank symbol list",
			env:     map[string]string{"TRADE_SYMBOLS": " , "},
			wantErr: "TRADE_SYMBOLS must list at least one symbol",
		},
		{
			name:    "update interval below floor",
			env:     map[string]string{"UPDATE_INTERVAL_SECONDS": "4"},
			wantErr: "UPDATE_INTERVAL_SECONDS must be at least 5",
		},
		{
			name:    "update interval not a number",
			env:     map[string]string{"UPDATE_INTERVAL_SECONDS": "soon"},
			wantErr: "invalid UPDATE_INTERVAL_SECONDS",
		},
		{
			name:    "zero reconnect delay",
			env:     map[string]string{"RECONNECT_DELAY_SECONDS": "0"},
			wantErr: "RECONNECT_DELAY_SECONDS must be positive",
		},
		{
			name:    "negative reconnect attempts",
			env:     map[string]string{"MAX_RECONNECT_ATTEMPTS": "-1"},
			wantErr: "MAX_RECONNECT_ATTEMPTS cannot be negative",
		},
		{
			name:    "negative quote cache ttl",
			env:     map[string]string{"QUOTE_CACHE_TTL_SECONDS": "-1"},
			wantErr: "QUOTE_CACHE_TTL_SECONDS cannot be negative",
		},
		{
			name:    "point size entry without size",
			env:     map[string]string{"POINT_SIZES": "BTCUSDT"},
			wantErr: "want SYMBOL:SIZE",
		},
		{
			name:    "point size not a number",
			env:     map[string]string{"POINT_SIZES": "BTCUSDT:tiny"},
			wantErr: "invalid POINT_SIZES entry",
		},
		{
			name:    "non-positive point size",
			env:     map[string]string{"POINT_SIZES": "BTCUSDT:0"},
			wantErr: "size must be positive",
		},
		{
			name:    "api port zero",
			env:     map[string]string{"API_PORT": "0"},
			wantErr: "API_PORT must be between 1 and 65535",
		},
		{
			name:    "api port above range",
			env:     map[string]string{"API_PORT": "70000"},
			wantErr: "API_PORT must be between 1 and 65535",
		},
		{
			name:    "missing sessions file",
			env:     map[string]string{"SESSIONS_FILE": "/nonexistent/sessions.yaml"},
			wantErr: "invalid SESSIONS_FILE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), "configuration validation failed")
		})
	}
}

func TestLoadConfig_SessionsFile(t *testing.T) {
	setRequiredEnv(t)

	catalog := `
sessions:
  - name: CRYPTO_24_7
    category: CRYPTO
    start: "00:00"
    end: "00:00"
    symbols: [BTCUSDT]
  - name: METALS_LONDON
    category: COMMODITY
    start: "08:00"
    end: "17:00"
    symbols: [XPTUSD]
`
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))
	t.Setenv("SESSIONS_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	// Same-named windows replace built-ins, new ones append.
	require.Len(t, cfg.SessionWindows, 7)
	byName := make(map[string]domain.SessionWindow, len(cfg.SessionWindows))
	for _, w := range cfg.SessionWindows {
		byName[w.Name] = w
	}
	assert.Equal(t, []string{"BTCUSDT"}, byName["CRYPTO_24_7"].Symbols)
	require.Contains(t, byName, "METALS_LONDON")
	assert.Equal(t, domain.CategoryCommodity, byName["METALS_LONDON"].Category)
	assert.Equal(t, domain.ClockTime{Hour: 8}, byName["METALS_LONDON"].Start)
}

func TestLoadConfig_SessionsFileRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		wantErr string
	}{
		{
			name: "unnamed session",
			catalog: `
sessions:
  - category: CRYPTO
    start: "00:00"
    end: "00:00"
    symbols: [BTCUSDT]
`,
			wantErr: "name must be set",
		},
		{
			name: "unknown category",
			catalog: `
sessions:
  - name: BONDS
    category: FIXED_INCOME
    start: "08:00"
    end: "17:00"
    symbols: [US10Y]
`,
			wantErr: "unrecognized market category",
		},
		{
			name: "no symbols",
			catalog: `
sessions:
  - name: EMPTY
    category: FOREX
    start: "08:00"
    end: "17:00"
    symbols: []
`,
			wantErr: "symbols must list at least one symbol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			path := filepath.Join(t.TempDir(), "sessions.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.catalog), 0o600))
			t.Setenv("SESSIONS_FILE", path)

			cfg, err := LoadConfig()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), "invalid SESSIONS_FILE")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
