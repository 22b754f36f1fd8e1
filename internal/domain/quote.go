package domain

import "time"

// Quote is a best bid/ask snapshot for a symbol.
type Quote struct {
	Symbol string    // Trading symbol (e.g., "BTCUSDT")
	Bid    float64   // Best bid price
	Ask    float64   // Best ask price
	Point  float64   // Minimal price increment for the symbol
	Time   time.Time // Time the quote was read
}

// SpreadPoints returns the bid/ask spread expressed in points.
// Returns 0 when the point size is not set.
func (q *Quote) SpreadPoints() float64 {
	if q.Point <= 0 {
		return 0
	}
	return (q.Ask - q.Bid) / q.Point
}

// PositionCounts is the per-cycle open position census supplied by the broker.
// It is ephemeral: recomputed every cycle, never persisted by this core.
type PositionCounts struct {
	Total     int            // All open positions across symbols
	PerSymbol map[string]int // Open positions keyed by symbol
}

// For returns the open count for a single symbol (0 when none).
func (c PositionCounts) For(symbol string) int {
	return c.PerSymbol[symbol]
}
