package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tradeguard/config"
	"tradeguard/internal/domain"
	"tradeguard/internal/observability/metrics"
	"tradeguard/internal/ports"
	"tradeguard/internal/risk"
	"tradeguard/internal/session"
	"tradeguard/internal/utils"
)

const dayLayout = "2006-01-02"

// Supervisor owns the fixed-interval evaluation loop: fetch account state,
// fold it into the Drawdown Guard, evaluate the Session Gate, journal the
// outcome and publish a cycle report. It is the only writer to the guard;
// the HTTP API reads copies of its state under a mutex.
type Supervisor struct {
	cfg       *config.Config
	logger    ports.Logger
	broker    ports.BrokerClient
	guard     *risk.Guard
	gate      *session.Gate
	journal   ports.RiskRepository
	publisher ports.ReportPublisher // Optional, nil disables publishing

	// State fields read by the API
	mu           sync.Mutex // Protects access to state fields below
	latestReport *domain.CycleReport
	riskSummary  domain.RiskSummary

	// Loop-private state, touched only from the supervisor loop
	cycleCount int64
	sessionID  int64
	seenAlerts map[string]bool
	lastKill   bool
}

// NewSupervisor creates the supervisor. The publisher may be nil when report
// publishing is disabled; every other dependency is required.
func NewSupervisor(
	cfg *config.Config,
	logger ports.Logger,
	broker ports.BrokerClient,
	guard *risk.Guard,
	gate *session.Gate,
	journal ports.RiskRepository,
	publisher ports.ReportPublisher,
) (*Supervisor, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || broker == nil || guard == nil || gate == nil || journal == nil {
		return nil, fmt.Errorf("missing required dependencies for Supervisor")
	}

	// Validate config values needed by the loop
	if cfg.UpdateInterval <= 0 {
		return nil, fmt.Errorf("configuration UpdateInterval must be positive")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("configuration Symbols must not be empty")
	}
	if cfg.QuoteAsset == "" {
		return nil, fmt.Errorf("configuration QuoteAsset must not be empty")
	}

	return &Supervisor{
		cfg:        cfg,
		logger:     logger,
		broker:     broker,
		guard:      guard,
		gate:       gate,
		journal:    journal,
		publisher:  publisher,
		seenAlerts: make(map[string]bool),
	}, nil
}

// Start runs the evaluation loop until the context is cancelled or a
// termination signal arrives. It blocks.
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting supervisor...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// --- Initialization Steps ---
	// 1. Verify broker connectivity
	if err := s.broker.Ping(ctx); err != nil {
		s.logger.Error(ctx, err, "Broker connectivity check failed")
		return fmt.Errorf("broker ping failed: %w", err)
	}
	if serverTime, err := s.broker.GetServerTime(ctx); err != nil {
		s.logger.Warn(ctx, "Could not read broker server time", map[string]interface{}{"error": err.Error()})
	} else {
		skew := time.Since(serverTime)
		if skew < 0 {
			skew = -skew
		}
		if skew > 5*time.Second {
			s.logger.Warn(ctx, "Local clock skewed against broker time", map[string]interface{}{
				"serverTime": serverTime,
				"skew":       skew.String(),
			})
		}
	}
	s.logger.Info(ctx, "Broker connection verified")

	// 2. Bootstrap the risk session (restore same-day state or start fresh)
	if err := s.bootstrapSession(ctx, time.Now().UTC()); err != nil {
		s.logger.Error(ctx, err, "Failed to bootstrap risk session")
		return fmt.Errorf("risk session bootstrap failed: %w", err)
	}

	// 3. Run the loop: one cycle immediately, then every UpdateInterval
	s.logger.Info(ctx, "Supervisor loop started", map[string]interface{}{
		"interval": s.cfg.UpdateInterval.String(),
		"symbols":  len(s.cfg.Symbols),
	})

	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Supervisor stopped.")
			return nil
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

// bootstrapSession rehydrates a same-day session from the journal when restore
// is enabled, otherwise initializes a fresh one from live equity. Failures are
// fatal: starting with unknown risk state is worse than not starting.
func (s *Supervisor) bootstrapSession(ctx context.Context, now time.Time) error {
	op := "bootstrapSession"
	day := now.Format(dayLayout)

	if s.cfg.RestoreRiskSession {
		stored, err := s.journal.FindSessionByDay(ctx, day)
		if err != nil {
			return fmt.Errorf("%s: query stored session: %w", op, err)
		}
		if stored != nil {
			if err := s.guard.Restore(ctx, stored); err != nil {
				return fmt.Errorf("%s: restore stored session: %w", op, err)
			}
			s.sessionID = stored.ID
			s.lastKill = stored.KillSwitch
			for _, key := range stored.FiredAlerts {
				s.seenAlerts[key] = true
			}
			// Live equity is unknown until the first cycle; the stored peak
			// stands in so the API never serves a zero summary.
			s.mu.Lock()
			s.riskSummary = s.guard.Summary(stored.PeakEquity)
			s.mu.Unlock()
			return nil
		}
		s.logger.Info(ctx, "No stored risk session for today, starting fresh", map[string]interface{}{"day": day})
	}

	equity, err := s.broker.GetEquity(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("%s: fetch starting equity: %w", op, err)
	}
	if err := s.guard.Initialize(ctx, equity, now); err != nil {
		return fmt.Errorf("%s: initialize session: %w", op, err)
	}
	if err := s.persistSession(ctx, now); err != nil {
		return fmt.Errorf("%s: persist new session: %w", op, err)
	}

	s.mu.Lock()
	s.riskSummary = s.guard.Summary(equity)
	s.mu.Unlock()
	return nil
}

// cycle runs one evaluation under a deadline derived from the interval and
// records the outcome. Errors skip the cycle; they never stop the loop.
func (s *Supervisor) cycle(ctx context.Context) {
	now := time.Now().UTC()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.UpdateInterval)
	defer cancel()

	s.cycleCount++
	if err := s.runCycle(cctx, now); err != nil {
		s.logger.Error(ctx, err, "Cycle skipped", map[string]interface{}{"cycle": s.cycleCount})
		metrics.ObserveCycle(metrics.ResultError, time.Since(now))
		return
	}
	metrics.ObserveCycle(metrics.ResultSuccess, time.Since(now))
}

func (s *Supervisor) runCycle(ctx context.Context, now time.Time) error {
	op := "runCycle"

	// 1. Daily reset boundary
	needsReset := s.guard.NeedsReset(now)

	// 2. Equity fetch and drawdown update
	equity, err := s.broker.GetEquity(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("%s: fetch equity: %w", op, err)
	}

	if needsReset {
		s.logger.Info(ctx, "Daily reset boundary crossed, starting new risk session", map[string]interface{}{
			"day": now.Format(dayLayout),
		})
		if err := s.guard.Initialize(ctx, equity, now); err != nil {
			return fmt.Errorf("%s: reinitialize session: %w", op, err)
		}
		s.sessionID = 0
		s.seenAlerts = make(map[string]bool)
		s.lastKill = false
		if err := s.persistSession(ctx, now); err != nil {
			s.logger.Error(ctx, err, op+": Failed to persist reset session")
		}
		metrics.IncSessionReset()
	}

	daily, intraday, killActive := s.guard.Update(ctx, equity, now)
	if killActive && !s.lastKill {
		metrics.IncKillSwitch()
	}
	s.lastKill = killActive
	for _, key := range s.guard.FiredAlerts() {
		if !s.seenAlerts[key] {
			s.seenAlerts[key] = true
			metrics.IncRiskAlert(key)
		}
	}

	// Emergency close demand is surfaced exactly once per latch. Execution
	// belongs to the order-management collaborator consuming the journal.
	if s.guard.ConsumePendingClose() {
		s.logger.Error(ctx, nil, "EMERGENCY CLOSE REQUESTED: flatten all open positions", map[string]interface{}{
			"mode":   string(s.guard.Mode()),
			"day":    s.guard.TradingDay(),
			"equity": equity,
		})
	}

	// 3. Position census and open authorization
	counts, err := s.broker.GetPositionCounts(ctx)
	if err != nil {
		return fmt.Errorf("%s: fetch position counts: %w", op, err)
	}

	openAllowed, openReason := s.guard.AuthorizeOpen(counts.Total)
	if !openAllowed {
		metrics.IncOpenDenial(openReason)
		s.logger.Debug(ctx, "New opens blocked", map[string]interface{}{
			"reason":        openReason,
			"openPositions": counts.Total,
		})
	}

	// 4. Session gate decisions
	decisions := s.gate.Decisions(ctx, s.cfg.Symbols, now)
	tradeable := make([]string, 0, len(decisions))
	for _, d := range decisions {
		if d.Tradeable {
			tradeable = append(tradeable, d.Symbol)
		}
	}
	if openAllowed {
		for _, symbol := range tradeable {
			if ok, reason := s.guard.AuthorizeSymbolOpen(symbol, counts.For(symbol)); !ok {
				metrics.IncOpenDenial(reason)
				s.logger.Debug(ctx, "Symbol open blocked", map[string]interface{}{
					"symbol": symbol,
					"reason": reason,
					"count":  counts.For(symbol),
				})
			}
		}
	}

	// 5. Report assembly, journaling, publish, metrics, API swap
	summary := s.guard.Summary(equity)
	report := &domain.CycleReport{
		ID:                utils.NewID(),
		Cycle:             s.cycleCount,
		At:                now,
		Equity:            equity,
		Risk:              summary,
		OpenAllowed:       openAllowed,
		OpenReason:        openReason,
		Decisions:         decisions,
		Tradeable:         tradeable,
		OpenPositions:     counts.Total,
		PositionsBySymbol: counts.PerSymbol,
		Duration:          time.Since(now),
	}

	snapshot := &domain.EquitySnapshot{
		TradingDay:          summary.TradingDay,
		Equity:              equity,
		PeakEquity:          summary.PeakEquity,
		DailyDrawdownPct:    summary.DailyDrawdownPct,
		IntradayDrawdownPct: summary.IntradayDrawdownPct,
		OpenPositions:       counts.Total,
		At:                  now,
	}
	if _, err := s.journal.SaveSnapshot(ctx, snapshot); err != nil {
		s.logger.Error(ctx, err, op+": Failed to journal equity snapshot")
	}
	if err := s.persistSession(ctx, now); err != nil {
		s.logger.Error(ctx, err, op+": Failed to persist session state")
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReport(ctx, report); err != nil {
			s.logger.Warn(ctx, "Failed to publish cycle report", map[string]interface{}{
				"reportID": report.ID,
				"error":    err.Error(),
			})
		}
	}

	metrics.SetRiskState(equity, summary.PeakEquity, summary.DailyDrawdownPct, summary.IntradayDrawdownPct, killActive)
	metrics.SetTradeableSymbols(len(tradeable))
	metrics.SetOpenPositions(counts.Total)

	s.mu.Lock()
	s.latestReport = report
	s.riskSummary = summary
	s.mu.Unlock()

	s.logger.Debug(ctx, "Cycle complete", map[string]interface{}{
		"cycle":      s.cycleCount,
		"equity":     equity,
		"dailyDD":    daily,
		"intradayDD": intraday,
		"killSwitch": killActive,
		"tradeable":  len(tradeable),
		"duration":   report.Duration.String(),
	})
	return nil
}

// persistSession writes the guard's current session row, inserting on the
// first write of a day and updating in place afterwards. A duplicate insert
// means a stale same-day row exists (restore disabled across a restart); its
// ID is adopted and the row overwritten.
func (s *Supervisor) persistSession(ctx context.Context, now time.Time) error {
	sess := s.guard.Session(now)
	if sess == nil {
		return fmt.Errorf("no active session to persist")
	}

	if s.sessionID > 0 {
		sess.ID = s.sessionID
		return s.journal.UpdateSession(ctx, sess)
	}

	id, err := s.journal.SaveSession(ctx, sess)
	if err == nil {
		s.sessionID = id
		return nil
	}
	if !errors.Is(err, ports.ErrDuplicateEntry) {
		return err
	}

	stored, findErr := s.journal.FindSessionByDay(ctx, sess.TradingDay)
	if findErr != nil {
		return fmt.Errorf("look up existing session row: %w", findErr)
	}
	if stored == nil {
		return err
	}
	sess.ID = stored.ID
	if err := s.journal.UpdateSession(ctx, sess); err != nil {
		return err
	}
	s.sessionID = stored.ID
	return nil
}

// --- Status surface read by the HTTP API ---

// LatestReport returns a copy of the most recent cycle report, or nil before
// the first cycle completes.
func (s *Supervisor) LatestReport() *domain.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latestReport == nil {
		return nil
	}
	report := *s.latestReport
	return &report
}

// RiskSummary returns the guard's state as of the last completed cycle.
func (s *Supervisor) RiskSummary() domain.RiskSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.riskSummary
}

// SessionSummary reports the window catalog and which windows contain now.
func (s *Supervisor) SessionSummary(now time.Time) session.Summary {
	return s.gate.Summary(now)
}

// SymbolDecisions evaluates the session gate for every configured symbol.
func (s *Supervisor) SymbolDecisions(ctx context.Context, now time.Time) []domain.GateDecision {
	return s.gate.Decisions(ctx, s.cfg.Symbols, now)
}
