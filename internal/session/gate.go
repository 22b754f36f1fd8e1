package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"tradeguard/internal/domain"
	"tradeguard/internal/ports"
)

// Config holds configuration and collaborators for the Session Gate.
type Config struct {
	Enabled         bool
	AutoMarketHours bool    // Cross-check windows against live spreads
	SpreadThreshold float64 // Max acceptable spread in points
	CryptoWeekends  bool
	Windows         []domain.SessionWindow

	Logger ports.Logger
	Quotes ports.QuoteProvider // Required only when AutoMarketHours is on
}

// Gate decides, per symbol, whether the current wall-clock time falls inside a
// configured trading window, optionally cross-checked against live liquidity.
// Every evaluation is stateless given now; the Gate holds no memory of past
// decisions.
type Gate struct {
	config Config
}

// New creates a Session Gate.
func New(config Config) (*Gate, error) {
	if config.Logger == nil {
		return nil, errors.New("session gate requires a non-nil Logger")
	}
	if config.AutoMarketHours && config.Quotes == nil {
		return nil, errors.New("session gate requires a QuoteProvider when market hours detection is enabled")
	}
	if config.AutoMarketHours && config.SpreadThreshold <= 0 {
		return nil, errors.New("session gate requires a positive spread threshold")
	}
	return &Gate{config: config}, nil
}

// IsTradeable evaluates the full gate chain for one symbol at the given time.
// A failing quote lookup is a soft failure: the session-window verdict stands
// rather than blocking the symbol on an optional enrichment signal.
func (g *Gate) IsTradeable(ctx context.Context, symbol string, now time.Time) domain.GateDecision {
	decision := domain.GateDecision{Symbol: symbol}

	if !g.config.Enabled {
		decision.Tradeable = true
		decision.Reason = "sessions disabled"
		return decision
	}

	window := g.activeWindow(symbol, now)
	if window == nil {
		decision.Reason = "outside session"
		return decision
	}
	decision.Session = window.Name

	if window.Category.AlwaysOpen() && isWeekend(now) && !g.config.CryptoWeekends {
		decision.Reason = "weekend disabled for this instrument class"
		return decision
	}

	if g.config.AutoMarketHours {
		quote, err := g.config.Quotes.GetQuote(ctx, symbol)
		if err != nil {
			g.config.Logger.Warn(ctx, "Market hours check unavailable, using session window verdict", map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			})
			decision.Tradeable = true
			decision.Reason = "active session"
			return decision
		}
		spread := quote.SpreadPoints()
		decision.SpreadPoints = &spread
		if spread > g.config.SpreadThreshold {
			decision.Reason = "low liquidity"
			return decision
		}
	}

	decision.Tradeable = true
	decision.Reason = "active session"
	return decision
}

// FilterTradeable returns the order-preserving subset of symbols whose gate
// decision is tradeable at the given time.
func (g *Gate) FilterTradeable(ctx context.Context, symbols []string, now time.Time) []string {
	tradeable := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if decision := g.IsTradeable(ctx, symbol, now); decision.Tradeable {
			tradeable = append(tradeable, symbol)
		}
	}
	return tradeable
}

// Decisions evaluates the gate for every symbol, preserving input order.
func (g *Gate) Decisions(ctx context.Context, symbols []string, now time.Time) []domain.GateDecision {
	decisions := make([]domain.GateDecision, 0, len(symbols))
	for _, symbol := range symbols {
		decisions = append(decisions, g.IsTradeable(ctx, symbol, now))
	}
	return decisions
}

// Upcoming describes the next opening window for a symbol.
type Upcoming struct {
	Session  string `json:"session"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Symbol   string `json:"symbol"`
	Tomorrow bool   `json:"tomorrow,omitempty"`
}

// NextWindow returns the next window that opens for the symbol after now, or
// nil when no window lists the symbol. A window already underway does not
// count; the result is the next future opening, wrapping to tomorrow's first
// window when today has none left.
func (g *Gate) NextWindow(symbol string, now time.Time) *Upcoming {
	relevant := make([]domain.SessionWindow, 0, len(g.config.Windows))
	for _, window := range g.config.Windows {
		if window.HasSymbol(symbol) {
			relevant = append(relevant, window)
		}
	}
	if len(relevant) == 0 {
		return nil
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Start.TotalMinutes() < relevant[j].Start.TotalMinutes()
	})

	nowUTC := now.UTC()
	nowMinutes := nowUTC.Hour()*60 + nowUTC.Minute()
	for _, window := range relevant {
		if window.Start.TotalMinutes() > nowMinutes {
			return &Upcoming{
				Session: window.Name,
				Start:   window.Start.String(),
				End:     window.End.String(),
				Symbol:  symbol,
			}
		}
	}
	first := relevant[0]
	return &Upcoming{
		Session:  first.Name,
		Start:    first.Start.String(),
		End:      first.End.String(),
		Symbol:   symbol,
		Tomorrow: true,
	}
}

// WeekendTradeable returns the symbols eligible for weekend trading, sorted.
// Commodity windows always qualify; crypto windows qualify only while the
// weekend toggle is on.
func (g *Gate) WeekendTradeable() []string {
	seen := make(map[string]bool)
	for _, window := range g.config.Windows {
		switch window.Category {
		case domain.CategoryCommodity:
		case domain.CategoryCrypto:
			if !g.config.CryptoWeekends {
				continue
			}
		default:
			continue
		}
		for _, symbol := range window.Symbols {
			seen[symbol] = true
		}
	}
	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// WindowStatus is one catalog row of the session summary.
type WindowStatus struct {
	Name     string                `json:"name"`
	Category domain.MarketCategory `json:"category"`
	Start    string                `json:"start"`
	End      string                `json:"end"`
	Symbols  []string              `json:"symbols"`
	Active   bool                  `json:"active"`
}

// Summary describes the gate configuration and current window activity.
type Summary struct {
	Enabled          bool           `json:"trading_sessions_enabled"`
	AutoMarketHours  bool           `json:"auto_market_hours_enabled"`
	CryptoWeekends   bool           `json:"crypto_weekend_trading"`
	SpreadThreshold  float64        `json:"liquidity_spread_threshold"`
	Sessions         []WindowStatus `json:"sessions"`
	WeekendTradeable []string       `json:"weekend_tradeable"`
}

// Summary reports the configured windows and which of them contain now.
func (g *Gate) Summary(now time.Time) Summary {
	sessions := make([]WindowStatus, 0, len(g.config.Windows))
	for _, window := range g.config.Windows {
		sessions = append(sessions, WindowStatus{
			Name:     window.Name,
			Category: window.Category,
			Start:    window.Start.String(),
			End:      window.End.String(),
			Symbols:  window.Symbols,
			Active:   window.Contains(now),
		})
	}
	return Summary{
		Enabled:          g.config.Enabled,
		AutoMarketHours:  g.config.AutoMarketHours,
		CryptoWeekends:   g.config.CryptoWeekends,
		SpreadThreshold:  g.config.SpreadThreshold,
		Sessions:         sessions,
		WeekendTradeable: g.WeekendTradeable(),
	}
}

// activeWindow returns the first window listing the symbol that contains now.
func (g *Gate) activeWindow(symbol string, now time.Time) *domain.SessionWindow {
	for i := range g.config.Windows {
		window := &g.config.Windows[i]
		if window.HasSymbol(symbol) && window.Contains(now) {
			return window
		}
	}
	return nil
}

func isWeekend(now time.Time) bool {
	weekday := now.UTC().Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}
