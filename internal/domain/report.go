package domain

import "time"

// GateDecision is the Session Gate verdict for a single symbol.
type GateDecision struct {
	Symbol       string   `json:"symbol"`
	Tradeable    bool     `json:"tradeable"`
	Reason       string   `json:"reason"`
	Session      string   `json:"session,omitempty"`       // Matching window name, when one applied
	SpreadPoints *float64 `json:"spread_points,omitempty"` // Observed spread, when a quote was read
}

// CycleReport is the full outcome of one supervisor cycle, consumed by the
// status API and published for downstream signal/execution collaborators.
type CycleReport struct {
	ID                string         `json:"id"`    // ULID, correlates logs, journal and publishes
	Cycle             int64          `json:"cycle"` // Monotonic cycle number since process start
	At                time.Time      `json:"at"`
	Equity            float64        `json:"equity"`
	Risk              RiskSummary    `json:"risk"`
	OpenAllowed       bool           `json:"open_allowed"`
	OpenReason        string         `json:"open_reason"`
	Decisions         []GateDecision `json:"decisions"`
	Tradeable         []string       `json:"tradeable"`
	OpenPositions     int            `json:"open_positions"`
	PositionsBySymbol map[string]int `json:"positions_by_symbol,omitempty"`
	Duration          time.Duration  `json:"duration_ns"`
}
