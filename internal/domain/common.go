package domain

import (
	"fmt"
	"strings"
)

// KillSwitchMode controls what happens to trading once a drawdown limit is breached.
// The mode is fixed at startup; unrecognized configuration values are rejected there.
type KillSwitchMode string

const (
	// KillModeStopOpening blocks new opens; existing positions keep their normal management.
	KillModeStopOpening KillSwitchMode = "STOP_OPENING"
	// KillModePauseTrading blocks new opens and freezes management of existing positions.
	KillModePauseTrading KillSwitchMode = "PAUSE_TRADING"
	// KillModeEmergencyClose blocks new opens and demands a one-time closure of all positions.
	KillModeEmergencyClose KillSwitchMode = "EMERGENCY_CLOSE"
)

// ParseKillSwitchMode maps free-form configuration text onto the closed mode set.
func ParseKillSwitchMode(s string) (KillSwitchMode, error) {
	switch KillSwitchMode(strings.ToUpper(strings.TrimSpace(s))) {
	case KillModeStopOpening:
		return KillModeStopOpening, nil
	case KillModePauseTrading:
		return KillModePauseTrading, nil
	case KillModeEmergencyClose:
		return KillModeEmergencyClose, nil
	default:
		return "", fmt.Errorf("unrecognized kill switch mode %q (want STOP_OPENING, PAUSE_TRADING or EMERGENCY_CLOSE)", s)
	}
}

// FreezesManagement reports whether existing positions must be left untouched too.
func (m KillSwitchMode) FreezesManagement() bool {
	return m == KillModePauseTrading
}

// ForcesClose reports whether activation demands closing all open positions.
func (m KillSwitchMode) ForcesClose() bool {
	return m == KillModeEmergencyClose
}

// MarketCategory classifies an instrument by the market it trades on.
type MarketCategory string

const (
	CategoryForex     MarketCategory = "FOREX"
	CategoryCommodity MarketCategory = "COMMODITY"
	CategoryCrypto    MarketCategory = "CRYPTO"
)

// AlwaysOpen reports whether the category trades around the clock, including weekends.
func (c MarketCategory) AlwaysOpen() bool {
	return c == CategoryCrypto
}

// ParseMarketCategory maps free-form configuration text onto the closed category set.
func ParseMarketCategory(s string) (MarketCategory, error) {
	switch MarketCategory(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryForex:
		return CategoryForex, nil
	case CategoryCommodity:
		return CategoryCommodity, nil
	case CategoryCrypto:
		return CategoryCrypto, nil
	default:
		return "", fmt.Errorf("unrecognized market category %q (want FOREX, COMMODITY or CRYPTO)", s)
	}
}

// RiskEventType classifies journaled risk occurrences.
type RiskEventType string

const (
	EventAlert          RiskEventType = "alert"
	EventKillSwitch     RiskEventType = "kill_switch"
	EventEmergencyClose RiskEventType = "emergency_close"
	EventSessionReset   RiskEventType = "session_reset"
)
