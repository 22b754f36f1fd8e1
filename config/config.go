package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradeguard/internal/adapters/logger" // Import the logger package for LogLevel
	"tradeguard/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Drawdown Limits
	MaxDailyDrawdown    float64 // Fraction of session start equity (e.g. 0.30 for 30%)
	MaxIntradayDrawdown float64 // Fraction of session peak equity (e.g. 0.20 for 20%)
	KillSwitchMode      domain.KillSwitchMode
	DrawdownResetTime   domain.ClockTime // UTC time of day after which a new session may begin
	EnableAlerts        bool
	RestoreRiskSession  bool // Rehydrate same-day state from the database on startup

	// Position Ceilings
	MaxConcurrentPositions int
	MaxPositionsPerSymbol  int

	// Trading Sessions
	SessionsEnabled  bool
	AutoMarketHours  bool    // Use live spreads to detect low-liquidity periods
	SpreadThreshold  float64 // Max acceptable spread in points
	CryptoWeekends   bool
	SessionWindows   []domain.SessionWindow
	SessionsFilePath string

	// Supervisor
	Symbols        []string
	UpdateInterval time.Duration
	QuoteAsset     string

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Connection Settings (Binance client)
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	QuoteCacheTTL        time.Duration
	PointSizes           map[string]float64 // Per-symbol point size overrides

	// HTTP API
	APIEnabled bool
	APIPort    int

	// NATS Publishing (disabled when URL is empty)
	NATSURL     string
	NATSSubject string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Drawdown Limits. Limits are given in percent and stored as fractions.
	maxDailyPct, err := getEnvAsFloatRequired("MAX_DAILY_DRAWDOWN_PERCENT", 30.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_DRAWDOWN_PERCENT: %v", err))
	} else if maxDailyPct <= 0 || maxDailyPct > 100 {
		errs = append(errs, "MAX_DAILY_DRAWDOWN_PERCENT must be between 0 (exclusive) and 100 (inclusive)")
	}
	cfg.MaxDailyDrawdown = maxDailyPct / 100.0

	maxIntradayPct, err := getEnvAsFloatRequired("MAX_INTRADAY_DRAWDOWN_PERCENT", 20.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_INTRADAY_DRAWDOWN_PERCENT: %v", err))
	} else if maxIntradayPct <= 0 || maxIntradayPct > 100 {
		errs = append(errs, "MAX_INTRADAY_DRAWDOWN_PERCENT must be between 0 (exclusive) and 100 (inclusive)")
	}
	cfg.MaxIntradayDrawdown = maxIntradayPct / 100.0

	cfg.KillSwitchMode, err = domain.ParseKillSwitchMode(getEnv("KILL_SWITCH_MODE", string(domain.KillModeStopOpening)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid KILL_SWITCH_MODE: %v", err))
	}

	cfg.DrawdownResetTime, err = domain.ParseClockTime(getEnv("DRAWDOWN_RESET_TIME", "00:00"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DRAWDOWN_RESET_TIME: %v", err))
	}

	cfg.EnableAlerts = getEnvAsBool("ENABLE_DRAWDOWN_ALERTS", true)
	cfg.RestoreRiskSession = getEnvAsBool("RESTORE_RISK_SESSION", true)

	// Position Ceilings
	cfg.MaxConcurrentPositions, err = getEnvAsIntRequired("MAX_CONCURRENT_POSITIONS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_CONCURRENT_POSITIONS: %v", err))
	} else if cfg.MaxConcurrentPositions < 1 {
		errs = append(errs, "MAX_CONCURRENT_POSITIONS must be at least 1")
	}

	cfg.MaxPositionsPerSymbol, err = getEnvAsIntRequired("MAX_POSITIONS_PER_SYMBOL", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITIONS_PER_SYMBOL: %v", err))
	} else if cfg.MaxPositionsPerSymbol < 1 {
		errs = append(errs, "MAX_POSITIONS_PER_SYMBOL must be at least 1")
	}

	// Trading Sessions
	cfg.SessionsEnabled = getEnvAsBool("ENABLE_TRADING_SESSIONS", true)
	cfg.AutoMarketHours = getEnvAsBool("ENABLE_AUTO_MARKET_HOURS_DETECTION", true)
	cfg.CryptoWeekends = getEnvAsBool("CRYPTO_TRADE_WEEKENDS", true)

	cfg.SpreadThreshold, err = getEnvAsFloatRequired("LIQUIDITY_MIN_SPREAD_THRESHOLD", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIQUIDITY_MIN_SPREAD_THRESHOLD: %v", err))
	} else if cfg.SpreadThreshold <= 0 {
		errs = append(errs, "LIQUIDITY_MIN_SPREAD_THRESHOLD must be positive")
	}

	cfg.SessionsFilePath = getEnv("SESSIONS_FILE", "")
	cfg.SessionWindows = loadSessionWindows(cfg.SessionsFilePath, &errs)

	// Supervisor
	cfg.Symbols = splitList(getEnv("TRADE_SYMBOLS", "BTCUSDT,ETHUSDT,LTCUSDT"))
	if len(cfg.Symbols) == 0 {
		errs = append(errs, "TRADE_SYMBOLS must list at least one symbol")
	}

	updateIntervalSeconds, err := getEnvAsIntRequired("UPDATE_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid UPDATE_INTERVAL_SECONDS: %v", err))
	} else if updateIntervalSeconds < 5 {
		errs = append(errs, "UPDATE_INTERVAL_SECONDS must be at least 5")
	}
	cfg.UpdateInterval = time.Duration(updateIntervalSeconds) * time.Second

	cfg.QuoteAsset = getEnv("QUOTE_ASSET", "USDT")
	if cfg.QuoteAsset == "" {
		errs = append(errs, "QUOTE_ASSET must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/tradeguard.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	quoteCacheTTLSeconds := getEnvAsInt("QUOTE_CACHE_TTL_SECONDS", 5)
	if quoteCacheTTLSeconds < 0 {
		errs = append(errs, "QUOTE_CACHE_TTL_SECONDS cannot be negative")
	}
	cfg.QuoteCacheTTL = time.Duration(quoteCacheTTLSeconds) * time.Second

	cfg.PointSizes = loadPointSizes(getEnv("POINT_SIZES", ""), &errs)

	// HTTP API
	cfg.APIEnabled = getEnvAsBool("API_ENABLED", true)
	cfg.APIPort, err = getEnvAsIntRequired("API_PORT", 8080)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid API_PORT: %v", err))
	} else if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		errs = append(errs, "API_PORT must be between 1 and 65535")
	}

	// NATS Publishing
	cfg.NATSURL = getEnv("NATS_URL", "")
	cfg.NATSSubject = getEnv("NATS_SUBJECT", "tradeguard.cycle")
	if cfg.NATSURL != "" && cfg.NATSSubject == "" {
		errs = append(errs, "NATS_SUBJECT must be set when NATS_URL is set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// splitList splits a comma-separated value, trimming blanks.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadPointSizes parses "SYMBOL:SIZE,SYMBOL:SIZE" overrides on top of the built-in table.
func loadPointSizes(value string, errs *[]string) map[string]float64 {
	sizes := make(map[string]float64, len(defaultPointSizes))
	for symbol, size := range defaultPointSizes {
		sizes[symbol] = size
	}
	for _, entry := range splitList(value) {
		symbol, sizeStr, found := strings.Cut(entry, ":")
		if !found {
			*errs = append(*errs, fmt.Sprintf("invalid POINT_SIZES entry %q: want SYMBOL:SIZE", entry))
			continue
		}
		size, err := strconv.ParseFloat(strings.TrimSpace(sizeStr), 64)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("invalid POINT_SIZES entry %q: %v", entry, err))
			continue
		}
		if size <= 0 {
			*errs = append(*errs, fmt.Sprintf("invalid POINT_SIZES entry %q: size must be positive", entry))
			continue
		}
		sizes[strings.TrimSpace(symbol)] = size
	}
	return sizes
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
