package domain

import "time"

// RiskSummary is a point-in-time view of the Drawdown Guard's state.
// Percent fields are expressed as percentages (0-100), not fractions.
type RiskSummary struct {
	TradingDay             string         `json:"trading_day"`
	StartEquity            float64        `json:"session_start_equity"`
	PeakEquity             float64        `json:"session_peak_equity"`
	CurrentEquity          float64        `json:"current_equity"`
	DailyDrawdownPct       float64        `json:"daily_drawdown_percent"`
	IntradayDrawdownPct    float64        `json:"intraday_drawdown_percent"`
	DailyLimitPct          float64        `json:"max_daily_drawdown_limit"`
	IntradayLimitPct       float64        `json:"max_intraday_drawdown_limit"`
	KillSwitchActive       bool           `json:"kill_switch_active"`
	KillSwitchMode         KillSwitchMode `json:"kill_switch_mode"`
	MaxConcurrentPositions int            `json:"max_concurrent_positions"`
	MaxPositionsPerSymbol  int            `json:"max_positions_per_symbol"`
	FiredAlerts            []string       `json:"fired_alerts,omitempty"`
}

// RiskEvent is a journaled risk occurrence (alert, kill switch, reset).
type RiskEvent struct {
	ID                  string        `json:"id"`          // ULID, time-sortable
	TradingDay          string        `json:"trading_day"` // YYYY-MM-DD in UTC
	Type                RiskEventType `json:"type"`
	Symbol              string        `json:"symbol,omitempty"`
	Message             string        `json:"message"`
	DailyDrawdownPct    float64       `json:"daily_drawdown_percent"`
	IntradayDrawdownPct float64       `json:"intraday_drawdown_percent"`
	Equity              float64       `json:"equity"`
	At                  time.Time     `json:"at"`
}

// EquitySnapshot is one per-cycle equity observation.
type EquitySnapshot struct {
	ID                  int64     `json:"id"`
	TradingDay          string    `json:"trading_day"`
	Equity              float64   `json:"equity"`
	PeakEquity          float64   `json:"peak_equity"`
	DailyDrawdownPct    float64   `json:"daily_drawdown_percent"`
	IntradayDrawdownPct float64   `json:"intraday_drawdown_percent"`
	OpenPositions       int       `json:"open_positions"`
	At                  time.Time `json:"at"`
}

// RiskSession is the persisted Drawdown Guard baseline for one trading day.
// It lets a same-day restart rehydrate the guard instead of silently clearing
// a latched kill switch.
type RiskSession struct {
	ID          int64     // Unique identifier (from DB)
	TradingDay  string    // YYYY-MM-DD in UTC
	StartEquity float64   // Equity at session initialization
	PeakEquity  float64   // Highest equity seen in the session
	KillSwitch  bool      // Whether the kill switch is latched
	KillReason  string    // Why it latched (empty when not latched)
	FiredAlerts []string  // Alert ratchet keys already fired this session
	StartedAt   time.Time // When the session was initialized
	UpdatedAt   time.Time // Last persisted update
}
