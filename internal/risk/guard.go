package risk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"tradeguard/internal/domain"
	"tradeguard/internal/ports"
	"tradeguard/internal/utils"
)

// dayLayout is the trading-day key format (UTC calendar date).
const dayLayout = "2006-01-02"

// alertLevels are the drawdown alert thresholds as percent of each limit,
// checked highest first so a single update fires at most one alert per limit.
var alertLevels = []int{75, 50, 25}

// Config holds configuration and collaborators for the Drawdown Guard.
// Limits are fractions of equity (0.30 means 30%).
type Config struct {
	MaxDailyDrawdown      float64
	MaxIntradayDrawdown   float64
	KillSwitchMode        domain.KillSwitchMode
	MaxOpenPositions      int
	MaxPositionsPerSymbol int
	EnableAlerts          bool
	ResetTime             domain.ClockTime // UTC time of day after which a new session may begin

	Logger   ports.Logger
	Journal  ports.RiskEventRepository // Optional; nil disables journaling
	Notifier ports.Notifier            // Optional; nil disables notifications
}

// Guard tracks session equity drawdowns and latches a kill switch when a
// configured limit is reached. It is not safe for concurrent use; the
// supervisor serializes all access.
type Guard struct {
	config Config

	initialized  bool
	tradingDay   string // YYYY-MM-DD in UTC
	startEquity  float64
	peakEquity   float64
	killSwitch   bool
	killReason   string
	pendingClose bool
	firedAlerts  map[string]bool
	startedAt    time.Time
}

// NewGuard creates a Drawdown Guard. The guard starts uninitialized; callers
// must Initialize (or Restore) it before the first Update.
func NewGuard(config Config) (*Guard, error) {
	if config.Logger == nil {
		return nil, errors.New("risk guard requires a non-nil Logger")
	}
	if config.MaxDailyDrawdown <= 0 || config.MaxDailyDrawdown > 1 {
		return nil, fmt.Errorf("max daily drawdown %f out of range (0, 1]", config.MaxDailyDrawdown)
	}
	if config.MaxIntradayDrawdown <= 0 || config.MaxIntradayDrawdown > 1 {
		return nil, fmt.Errorf("max intraday drawdown %f out of range (0, 1]", config.MaxIntradayDrawdown)
	}
	if _, err := domain.ParseKillSwitchMode(string(config.KillSwitchMode)); err != nil {
		return nil, err
	}
	if config.MaxOpenPositions < 1 {
		return nil, fmt.Errorf("max open positions must be at least 1, got %d", config.MaxOpenPositions)
	}
	if config.MaxPositionsPerSymbol < 1 {
		return nil, fmt.Errorf("max positions per symbol must be at least 1, got %d", config.MaxPositionsPerSymbol)
	}
	return &Guard{
		config:      config,
		firedAlerts: make(map[string]bool),
	}, nil
}

// Initialize starts a fresh session: start and peak equity are set to
// startEquity, the kill switch and fired alerts are cleared, and a
// session_reset event is journaled.
func (g *Guard) Initialize(ctx context.Context, startEquity float64, now time.Time) error {
	if startEquity <= 0 {
		return fmt.Errorf("session start equity must be positive, got %f", startEquity)
	}

	g.initialized = true
	g.tradingDay = now.UTC().Format(dayLayout)
	g.startEquity = startEquity
	g.peakEquity = startEquity
	g.killSwitch = false
	g.killReason = ""
	g.pendingClose = false
	g.firedAlerts = make(map[string]bool)
	g.startedAt = now.UTC()

	g.config.Logger.Info(ctx, "Risk session initialized", map[string]interface{}{
		"tradingDay":     g.tradingDay,
		"startEquity":    startEquity,
		"dailyLimit":     g.config.MaxDailyDrawdown,
		"intradayLimit":  g.config.MaxIntradayDrawdown,
		"killSwitchMode": g.config.KillSwitchMode,
	})
	g.emit(ctx, domain.EventSessionReset, "",
		fmt.Sprintf("risk session initialized with start equity %.2f", startEquity),
		0, 0, startEquity, now)
	return nil
}

// Restore rehydrates the guard from a persisted same-day session so a process
// restart cannot silently clear a latched kill switch. A pending emergency
// close is not re-armed; the latched state alone keeps new opens blocked.
func (g *Guard) Restore(ctx context.Context, s *domain.RiskSession) error {
	if s == nil {
		return errors.New("cannot restore from a nil session")
	}
	if s.StartEquity <= 0 {
		return fmt.Errorf("stored session start equity must be positive, got %f", s.StartEquity)
	}

	g.initialized = true
	g.tradingDay = s.TradingDay
	g.startEquity = s.StartEquity
	g.peakEquity = s.PeakEquity
	if g.peakEquity < g.startEquity {
		g.peakEquity = g.startEquity
	}
	g.killSwitch = s.KillSwitch
	g.killReason = s.KillReason
	g.pendingClose = false
	g.firedAlerts = make(map[string]bool, len(s.FiredAlerts))
	for _, key := range s.FiredAlerts {
		g.firedAlerts[key] = true
	}
	g.startedAt = s.StartedAt

	g.config.Logger.Info(ctx, "Risk session restored", map[string]interface{}{
		"tradingDay":  g.tradingDay,
		"startEquity": g.startEquity,
		"peakEquity":  g.peakEquity,
		"killSwitch":  g.killSwitch,
		"firedAlerts": len(s.FiredAlerts),
	})
	return nil
}

// NeedsReset reports whether now falls on a later calendar day than the
// current session and past the configured reset time of day.
func (g *Guard) NeedsReset(now time.Time) bool {
	if !g.initialized {
		return true
	}
	nowUTC := now.UTC()
	if nowUTC.Format(dayLayout) <= g.tradingDay {
		return false
	}
	return nowUTC.Hour()*60+nowUTC.Minute() >= g.config.ResetTime.TotalMinutes()
}

// Update folds a fresh equity reading into the session: the peak is raised,
// both drawdowns are computed, the kill switch latches when a limit is reached
// (daily checked first), and the alert ratchet runs while the switch is clear.
// Drawdowns are returned as fractions. Update never fails; an uninitialized
// guard logs a warning and reports zeros.
func (g *Guard) Update(ctx context.Context, equity float64, now time.Time) (daily, intraday float64, killSwitchActive bool) {
	if !g.initialized {
		g.config.Logger.Warn(ctx, "Drawdown update before session initialization, ignoring", map[string]interface{}{
			"equity": equity,
		})
		return 0, 0, false
	}

	if equity > g.peakEquity {
		g.peakEquity = equity
	}
	daily, intraday = g.drawdowns(equity)

	if !g.killSwitch {
		if daily >= g.config.MaxDailyDrawdown {
			g.latch(ctx, fmt.Sprintf("daily drawdown %.2f%% reached limit %.2f%%",
				daily*100, g.config.MaxDailyDrawdown*100), daily, intraday, equity, now)
		} else if intraday >= g.config.MaxIntradayDrawdown {
			g.latch(ctx, fmt.Sprintf("intraday drawdown %.2f%% reached limit %.2f%%",
				intraday*100, g.config.MaxIntradayDrawdown*100), daily, intraday, equity, now)
		}
	}
	if g.config.EnableAlerts && !g.killSwitch {
		g.checkAlerts(ctx, "daily", daily, g.config.MaxDailyDrawdown, intraday, equity, now)
		g.checkAlerts(ctx, "intraday", intraday, g.config.MaxIntradayDrawdown, daily, equity, now)
	}
	return daily, intraday, g.killSwitch
}

// latch activates the kill switch and emits the one-time activation event.
func (g *Guard) latch(ctx context.Context, reason string, daily, intraday, equity float64, now time.Time) {
	g.killSwitch = true
	g.killReason = reason
	g.config.Logger.Error(ctx, nil, "KILL SWITCH ACTIVATED", map[string]interface{}{
		"reason": reason,
		"mode":   g.config.KillSwitchMode,
		"equity": equity,
	})
	g.emit(ctx, domain.EventKillSwitch, "", reason, daily, intraday, equity, now)

	if g.config.KillSwitchMode.ForcesClose() {
		g.pendingClose = true
		g.emit(ctx, domain.EventEmergencyClose, "",
			"emergency close demanded for all open positions", daily, intraday, equity, now)
	}
}

// checkAlerts runs the one-shot alert ratchet for one limit kind. The highest
// crossed level fires; a level fires at most once per session.
func (g *Guard) checkAlerts(ctx context.Context, kind string, dd, limit, other, equity float64, now time.Time) {
	for _, level := range alertLevels {
		if dd < limit*float64(level)/100 {
			continue
		}
		key := fmt.Sprintf("%s_%d", kind, level)
		if !g.firedAlerts[key] {
			g.firedAlerts[key] = true
			msg := fmt.Sprintf("%s drawdown %.2f%% crossed %d%% of the %.2f%% limit",
				kind, dd*100, level, limit*100)
			g.config.Logger.Warn(ctx, "Drawdown alert", map[string]interface{}{
				"key":    key,
				"equity": equity,
			})
			daily, intraday := dd, other
			if kind == "intraday" {
				daily, intraday = other, dd
			}
			g.emit(ctx, domain.EventAlert, "", msg, daily, intraday, equity, now)
		}
		return // only the highest crossed level per update
	}
}

// AuthorizeOpen decides whether any new position may be opened right now.
// Denials carry a short reason; the kill switch blocks opens in every mode.
func (g *Guard) AuthorizeOpen(openCount int) (bool, string) {
	if g.killSwitch {
		return false, "kill switch active"
	}
	if openCount >= g.config.MaxOpenPositions {
		return false, "global position limit"
	}
	return true, ""
}

// AuthorizeSymbolOpen decides whether a new position may be opened for the
// given symbol, based on how many are already open for it.
func (g *Guard) AuthorizeSymbolOpen(symbol string, symbolCount int) (bool, string) {
	if symbolCount >= g.config.MaxPositionsPerSymbol {
		return false, "per-symbol limit"
	}
	return true, ""
}

// ConsumePendingClose reports, exactly once per activation, that emergency
// close of all positions has been demanded. Only EMERGENCY_CLOSE mode ever
// arms it.
func (g *Guard) ConsumePendingClose() bool {
	if !g.pendingClose {
		return false
	}
	g.pendingClose = false
	return true
}

// KillSwitchActive reports whether the kill switch is latched.
func (g *Guard) KillSwitchActive() bool {
	return g.killSwitch
}

// Mode returns the configured kill switch mode.
func (g *Guard) Mode() domain.KillSwitchMode {
	return g.config.KillSwitchMode
}

// TradingDay returns the current session's trading day (YYYY-MM-DD in UTC),
// or "" when the guard has not been initialized.
func (g *Guard) TradingDay() string {
	return g.tradingDay
}

// Summary builds a read-only risk snapshot against the given equity reading.
// It never mutates the session; an equity above the stored peak simply reads
// as zero intraday drawdown.
func (g *Guard) Summary(equity float64) domain.RiskSummary {
	daily, intraday := g.drawdowns(equity)
	return domain.RiskSummary{
		TradingDay:             g.tradingDay,
		StartEquity:            g.startEquity,
		PeakEquity:             g.peakEquity,
		CurrentEquity:          equity,
		DailyDrawdownPct:       daily * 100,
		IntradayDrawdownPct:    intraday * 100,
		DailyLimitPct:          g.config.MaxDailyDrawdown * 100,
		IntradayLimitPct:       g.config.MaxIntradayDrawdown * 100,
		KillSwitchActive:       g.killSwitch,
		KillSwitchMode:         g.config.KillSwitchMode,
		MaxConcurrentPositions: g.config.MaxOpenPositions,
		MaxPositionsPerSymbol:  g.config.MaxPositionsPerSymbol,
		FiredAlerts:            g.FiredAlerts(),
	}
}

// Session snapshots the guard state for persistence.
func (g *Guard) Session(now time.Time) *domain.RiskSession {
	return &domain.RiskSession{
		TradingDay:  g.tradingDay,
		StartEquity: g.startEquity,
		PeakEquity:  g.peakEquity,
		KillSwitch:  g.killSwitch,
		KillReason:  g.killReason,
		FiredAlerts: g.FiredAlerts(),
		StartedAt:   g.startedAt,
		UpdatedAt:   now.UTC(),
	}
}

// FiredAlerts returns the alert ratchet keys fired this session, sorted.
func (g *Guard) FiredAlerts() []string {
	if len(g.firedAlerts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(g.firedAlerts))
	for key := range g.firedAlerts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// drawdowns computes both drawdown fractions for an equity reading without
// mutating the session. Gains clamp to zero.
func (g *Guard) drawdowns(equity float64) (daily, intraday float64) {
	if !g.initialized || g.startEquity <= 0 {
		return 0, 0
	}
	daily = (g.startEquity - equity) / g.startEquity
	if daily < 0 {
		daily = 0
	}
	peak := g.peakEquity
	if equity > peak {
		peak = equity
	}
	if peak > 0 {
		intraday = (peak - equity) / peak
		if intraday < 0 {
			intraday = 0
		}
	}
	return daily, intraday
}

// emit journals and fans out one risk event. Delivery failures are logged and
// swallowed; risk accounting must never depend on the journal or notifier.
func (g *Guard) emit(ctx context.Context, eventType domain.RiskEventType, symbol, message string, daily, intraday, equity float64, now time.Time) {
	event := &domain.RiskEvent{
		ID:                  utils.NewID(),
		TradingDay:          g.tradingDay,
		Type:                eventType,
		Symbol:              symbol,
		Message:             message,
		DailyDrawdownPct:    daily * 100,
		IntradayDrawdownPct: intraday * 100,
		Equity:              equity,
		At:                  now.UTC(),
	}
	if g.config.Journal != nil {
		if err := g.config.Journal.SaveEvent(ctx, event); err != nil {
			g.config.Logger.Error(ctx, err, "Failed to journal risk event", map[string]interface{}{
				"type": eventType,
			})
		}
	}
	if g.config.Notifier != nil {
		if err := g.config.Notifier.Notify(ctx, event); err != nil {
			g.config.Logger.Error(ctx, err, "Failed to deliver risk event", map[string]interface{}{
				"type": eventType,
			})
		}
	}
}
