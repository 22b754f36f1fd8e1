package risk

import (
	"context"
	"strings"
	"testing"
	"time"

	"tradeguard/internal/domain"
)

// nopLogger satisfies ports.Logger without output.
type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// captureNotifier records every emitted risk event.
type captureNotifier struct {
	events []*domain.RiskEvent
}

func (n *captureNotifier) Notify(ctx context.Context, event *domain.RiskEvent) error {
	n.events = append(n.events, event)
	return nil
}

func (n *captureNotifier) ofType(t domain.RiskEventType) []*domain.RiskEvent {
	var out []*domain.RiskEvent
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		MaxDailyDrawdown:      0.30,
		MaxIntradayDrawdown:   0.20,
		KillSwitchMode:        domain.KillModeStopOpening,
		MaxOpenPositions:      5,
		MaxPositionsPerSymbol: 2,
		EnableAlerts:          true,
		Logger:                nopLogger{},
	}
}

func newTestGuard(t *testing.T, config Config) *Guard {
	t.Helper()
	guard, err := NewGuard(config)
	if err != nil {
		t.Fatalf("NewGuard failed: %v", err)
	}
	return guard
}

func TestGuardDrawdownSequence(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Falling equity: both drawdowns track the loss; the kill switch must
	// latch on the third reading, where intraday hits its 20% limit, and
	// stay latched afterwards.
	steps := []struct {
		equity       float64
		wantDaily    float64
		wantIntraday float64
		wantActive   bool
	}{
		{9800, 0.02, 0.02, false},
		{8500, 0.15, 0.15, false},
		{8000, 0.20, 0.20, true},
		{7000, 0.30, 0.30, true},
	}
	for i, step := range steps {
		now = now.Add(time.Minute)
		daily, intraday, active := guard.Update(context.Background(), step.equity, now)
		if !closeEnough(daily, step.wantDaily) {
			t.Errorf("step %d: expected daily drawdown %f, got %f", i, step.wantDaily, daily)
		}
		if !closeEnough(intraday, step.wantIntraday) {
			t.Errorf("step %d: expected intraday drawdown %f, got %f", i, step.wantIntraday, intraday)
		}
		if active != step.wantActive {
			t.Errorf("step %d: expected kill switch active=%v, got %v", i, step.wantActive, active)
		}
	}
}

func TestGuardIntradayTracksRunningPeak(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Equity rises above the session start: no drawdown on the way up.
	daily, intraday, _ := guard.Update(context.Background(), 11000, now.Add(time.Minute))
	if daily != 0 || intraday != 0 {
		t.Errorf("expected zero drawdowns on a gain, got daily=%f intraday=%f", daily, intraday)
	}

	// A pullback still above the start: daily stays zero, intraday measures
	// against the 11000 peak.
	daily, intraday, _ = guard.Update(context.Background(), 10450, now.Add(2*time.Minute))
	if daily != 0 {
		t.Errorf("expected zero daily drawdown above start equity, got %f", daily)
	}
	if !closeEnough(intraday, 0.05) {
		t.Errorf("expected intraday drawdown 0.05 against the raised peak, got %f", intraday)
	}
}

func TestGuardDailyLimitCheckedFirst(t *testing.T) {
	notifier := &captureNotifier{}
	config := testConfig()
	// Equal limits: one update can breach both; the daily reason must win.
	config.MaxDailyDrawdown = 0.20
	config.MaxIntradayDrawdown = 0.20
	config.Notifier = notifier
	guard := newTestGuard(t, config)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	_, _, active := guard.Update(context.Background(), 8000, now.Add(time.Minute))
	if !active {
		t.Fatal("expected kill switch to latch")
	}

	killEvents := notifier.ofType(domain.EventKillSwitch)
	if len(killEvents) != 1 {
		t.Fatalf("expected exactly 1 kill switch event, got %d", len(killEvents))
	}
	if !strings.HasPrefix(killEvents[0].Message, "daily drawdown") {
		t.Errorf("expected the daily limit to be reported, got %q", killEvents[0].Message)
	}
}

func TestGuardKillSwitchEventFiresOnce(t *testing.T) {
	notifier := &captureNotifier{}
	config := testConfig()
	config.Notifier = notifier
	guard := newTestGuard(t, config)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Breach the daily limit, then keep updating below it.
	guard.Update(context.Background(), 6000, now.Add(time.Minute))
	guard.Update(context.Background(), 5500, now.Add(2*time.Minute))
	guard.Update(context.Background(), 5000, now.Add(3*time.Minute))

	if got := len(notifier.ofType(domain.EventKillSwitch)); got != 1 {
		t.Errorf("expected exactly 1 kill switch event, got %d", got)
	}
	// Alerts are suppressed while the switch is latched.
	if got := len(notifier.ofType(domain.EventAlert)); got != 0 {
		t.Errorf("expected no alerts after the kill switch latched, got %d", got)
	}
}

func TestGuardAlertRatchet(t *testing.T) {
	notifier := &captureNotifier{}
	config := testConfig()
	config.Notifier = notifier
	guard := newTestGuard(t, config)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// 8% daily drawdown crosses 25% of the 30% daily limit (7.5%)
	// and 25% of the 20% intraday limit (5%).
	guard.Update(context.Background(), 9200, now.Add(time.Minute))
	alerts := notifier.ofType(domain.EventAlert)
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts (daily_25, intraday_25), got %d", len(alerts))
	}

	// Same reading again: the ratchet must not refire.
	guard.Update(context.Background(), 9200, now.Add(2*time.Minute))
	if got := len(notifier.ofType(domain.EventAlert)); got != 2 {
		t.Errorf("expected no duplicate alerts, got %d total", got)
	}

	// A jump deep into drawdown fires only the highest uncrossed level per
	// limit, skipping the ones in between.
	guard.Update(context.Background(), 8450, now.Add(3*time.Minute))
	fired := guard.FiredAlerts()
	want := []string{"daily_25", "daily_50", "intraday_25", "intraday_75"}
	if len(fired) != len(want) {
		t.Fatalf("expected fired alerts %v, got %v", want, fired)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("expected fired alerts %v, got %v", want, fired)
		}
	}
}

func TestGuardAlertsDisabled(t *testing.T) {
	notifier := &captureNotifier{}
	config := testConfig()
	config.EnableAlerts = false
	config.Notifier = notifier
	guard := newTestGuard(t, config)
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	guard.Update(context.Background(), 8450, now.Add(time.Minute))
	if got := len(notifier.ofType(domain.EventAlert)); got != 0 {
		t.Errorf("expected no alerts when disabled, got %d", got)
	}
}

func TestGuardAuthorizeOpen(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Below the global ceiling.
	allowed, reason := guard.AuthorizeOpen(4)
	if !allowed || reason != "" {
		t.Errorf("expected open allowed below the ceiling, got allowed=%v reason=%q", allowed, reason)
	}

	// At the global ceiling.
	allowed, reason = guard.AuthorizeOpen(5)
	if allowed {
		t.Error("expected open denied at the global ceiling")
	}
	if reason != "global position limit" {
		t.Errorf("expected reason %q, got %q", "global position limit", reason)
	}

	// Per-symbol ceiling.
	allowed, reason = guard.AuthorizeSymbolOpen("BTCUSDT", 1)
	if !allowed || reason != "" {
		t.Errorf("expected symbol open allowed below the ceiling, got allowed=%v reason=%q", allowed, reason)
	}
	allowed, reason = guard.AuthorizeSymbolOpen("BTCUSDT", 2)
	if allowed {
		t.Error("expected symbol open denied at the per-symbol ceiling")
	}
	if reason != "per-symbol limit" {
		t.Errorf("expected reason %q, got %q", "per-symbol limit", reason)
	}

	// A latched kill switch wins over everything.
	guard.Update(context.Background(), 6000, now.Add(time.Minute))
	allowed, reason = guard.AuthorizeOpen(0)
	if allowed {
		t.Error("expected open denied with the kill switch latched")
	}
	if reason != "kill switch active" {
		t.Errorf("expected reason %q, got %q", "kill switch active", reason)
	}
}

func TestGuardEmergencyCloseConsumedOnce(t *testing.T) {
	for _, mode := range []domain.KillSwitchMode{
		domain.KillModeStopOpening,
		domain.KillModePauseTrading,
		domain.KillModeEmergencyClose,
	} {
		config := testConfig()
		config.KillSwitchMode = mode
		guard := newTestGuard(t, config)
		now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

		if err := guard.Initialize(context.Background(), 10000, now); err != nil {
			t.Fatalf("%s: Initialize failed: %v", mode, err)
		}
		guard.Update(context.Background(), 6000, now.Add(time.Minute))

		wantClose := mode == domain.KillModeEmergencyClose
		if got := guard.ConsumePendingClose(); got != wantClose {
			t.Errorf("%s: expected first ConsumePendingClose=%v, got %v", mode, wantClose, got)
		}
		if guard.ConsumePendingClose() {
			t.Errorf("%s: expected the close demand to be one-shot", mode)
		}
		// Every mode blocks new opens once latched.
		if allowed, _ := guard.AuthorizeOpen(0); allowed {
			t.Errorf("%s: expected opens blocked after the kill switch latched", mode)
		}
	}
}

func TestGuardNeedsReset(t *testing.T) {
	config := testConfig()
	config.ResetTime = domain.ClockTime{Hour: 9, Minute: 0}
	guard := newTestGuard(t, config)

	if !guard.NeedsReset(time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)) {
		t.Error("expected an uninitialized guard to need a reset")
	}

	start := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	if err := guard.Initialize(context.Background(), 10000, start); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Later the same day: no reset.
	if guard.NeedsReset(time.Date(2024, 3, 11, 23, 59, 0, 0, time.UTC)) {
		t.Error("expected no reset within the same trading day")
	}
	// Next day but before the reset time: still no reset.
	if guard.NeedsReset(time.Date(2024, 3, 12, 8, 59, 0, 0, time.UTC)) {
		t.Error("expected no reset before the reset time of day")
	}
	// Next day at the reset time: reset.
	if !guard.NeedsReset(time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)) {
		t.Error("expected a reset on the next day at the reset time")
	}
}

func TestGuardInitializeClearsState(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	guard.Update(context.Background(), 6000, now.Add(time.Minute))
	if !guard.KillSwitchActive() {
		t.Fatal("expected kill switch latched before the reset")
	}

	nextDay := time.Date(2024, 3, 12, 0, 1, 0, 0, time.UTC)
	if err := guard.Initialize(context.Background(), 6000, nextDay); err != nil {
		t.Fatalf("re-Initialize failed: %v", err)
	}
	if guard.KillSwitchActive() {
		t.Error("expected the kill switch cleared by a new session")
	}
	if len(guard.FiredAlerts()) != 0 {
		t.Errorf("expected fired alerts cleared, got %v", guard.FiredAlerts())
	}
	daily, intraday, _ := guard.Update(context.Background(), 6000, nextDay.Add(time.Minute))
	if daily != 0 || intraday != 0 {
		t.Errorf("expected fresh baselines, got daily=%f intraday=%f", daily, intraday)
	}
}

func TestGuardInitializeRejectsNonPositiveEquity(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 0, now); err == nil {
		t.Error("expected an error for zero start equity")
	}
	if err := guard.Initialize(context.Background(), -100, now); err == nil {
		t.Error("expected an error for negative start equity")
	}
}

func TestGuardRestoreLatchedSession(t *testing.T) {
	config := testConfig()
	config.KillSwitchMode = domain.KillModeEmergencyClose
	guard := newTestGuard(t, config)

	stored := &domain.RiskSession{
		TradingDay:  "2024-03-11",
		StartEquity: 10000,
		PeakEquity:  10500,
		KillSwitch:  true,
		KillReason:  "daily drawdown 30.00% reached limit 30.00%",
		FiredAlerts: []string{"daily_25", "daily_50", "daily_75"},
		StartedAt:   time.Date(2024, 3, 11, 0, 0, 5, 0, time.UTC),
	}
	if err := guard.Restore(context.Background(), stored); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if !guard.KillSwitchActive() {
		t.Error("expected the restored kill switch to stay latched")
	}
	// A restart must not demand a second emergency close.
	if guard.ConsumePendingClose() {
		t.Error("expected no pending close after a restore")
	}
	if guard.TradingDay() != "2024-03-11" {
		t.Errorf("expected trading day 2024-03-11, got %s", guard.TradingDay())
	}
	if allowed, reason := guard.AuthorizeOpen(0); allowed || reason != "kill switch active" {
		t.Errorf("expected opens still blocked after restore, got allowed=%v reason=%q", allowed, reason)
	}

	if err := guard.Restore(context.Background(), nil); err == nil {
		t.Error("expected an error restoring from nil")
	}
}

func TestGuardRestoreKeepsAlertRatchet(t *testing.T) {
	notifier := &captureNotifier{}
	config := testConfig()
	config.Notifier = notifier
	guard := newTestGuard(t, config)

	stored := &domain.RiskSession{
		TradingDay:  "2024-03-11",
		StartEquity: 10000,
		PeakEquity:  10500,
		FiredAlerts: []string{"daily_25", "daily_50", "intraday_25", "intraday_50"},
		StartedAt:   time.Date(2024, 3, 11, 0, 0, 5, 0, time.UTC),
	}
	if err := guard.Restore(context.Background(), stored); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// 8% daily / 12.4% intraday crosses only levels already fired before the
	// restart; nothing may refire.
	guard.Update(context.Background(), 9200, time.Date(2024, 3, 11, 10, 0, 0, 0, time.UTC))
	if got := len(notifier.ofType(domain.EventAlert)); got != 0 {
		t.Errorf("expected restored alert keys to keep suppressing, got %d new alerts", got)
	}
}

func TestGuardSummaryIsReadOnly(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	now := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)

	if err := guard.Initialize(context.Background(), 10000, now); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	guard.Update(context.Background(), 9000, now.Add(time.Minute))

	summary := guard.Summary(9000)
	if summary.StartEquity != 10000 || summary.PeakEquity != 10000 {
		t.Errorf("expected start/peak 10000/10000, got %f/%f", summary.StartEquity, summary.PeakEquity)
	}
	if !closeEnough(summary.DailyDrawdownPct, 10) {
		t.Errorf("expected daily drawdown 10%%, got %f", summary.DailyDrawdownPct)
	}
	if summary.KillSwitchActive {
		t.Error("expected kill switch inactive at 10% drawdown")
	}
	if summary.MaxConcurrentPositions != 5 || summary.MaxPositionsPerSymbol != 2 {
		t.Errorf("expected ceilings 5/2, got %d/%d", summary.MaxConcurrentPositions, summary.MaxPositionsPerSymbol)
	}

	// A summary against a higher equity must not raise the stored peak.
	above := guard.Summary(12000)
	if above.IntradayDrawdownPct != 0 {
		t.Errorf("expected zero intraday drawdown above the peak, got %f", above.IntradayDrawdownPct)
	}
	if guard.peakEquity != 10000 {
		t.Errorf("expected Summary to leave the peak at 10000, got %f", guard.peakEquity)
	}
}

func TestGuardUpdateBeforeInitialize(t *testing.T) {
	guard := newTestGuard(t, testConfig())
	daily, intraday, active := guard.Update(context.Background(), 9000, time.Now())
	if daily != 0 || intraday != 0 || active {
		t.Errorf("expected zeros before initialization, got daily=%f intraday=%f active=%v", daily, intraday, active)
	}
}

func TestNewGuardValidation(t *testing.T) {
	base := testConfig()

	config := base
	config.Logger = nil
	if _, err := NewGuard(config); err == nil {
		t.Error("expected an error for a nil logger")
	}

	config = base
	config.MaxDailyDrawdown = 0
	if _, err := NewGuard(config); err == nil {
		t.Error("expected an error for a zero daily limit")
	}

	config = base
	config.MaxIntradayDrawdown = 1.5
	if _, err := NewGuard(config); err == nil {
		t.Error("expected an error for an intraday limit above 1")
	}

	config = base
	config.KillSwitchMode = "EXPLODE"
	if _, err := NewGuard(config); err == nil {
		t.Error("expected an error for an unrecognized kill switch mode")
	}

	config = base
	config.MaxOpenPositions = 0
	if _, err := NewGuard(config); err == nil {
		t.Error("expected an error for a zero position ceiling")
	}
}

func closeEnough(got, want float64) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
