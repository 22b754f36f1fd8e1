package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "tradeguard_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	accountEquity    prometheus.Gauge
	sessionPeak      prometheus.Gauge
	dailyDrawdown    prometheus.Gauge
	intradayDrawdown prometheus.Gauge
	killSwitchState  prometheus.Gauge
	tradeableSymbols prometheus.Gauge
	openPositions    prometheus.Gauge

	cycleTotal    *prometheus.CounterVec
	cycleDuration prometheus.Histogram

	openDenials   *prometheus.CounterVec
	riskAlerts    *prometheus.CounterVec
	killSwitches  prometheus.Counter
	quoteFailures *prometheus.CounterVec
	sessionResets prometheus.Counter
)

// Init registers the evaluation-loop metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		accountEquity = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "account_equity",
				Help: "Current account equity in quote currency",
			},
		)
		sessionPeak = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "session_peak_equity",
				Help: "Highest equity observed this trading day",
			},
		)
		dailyDrawdown = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "daily_drawdown_percent",
				Help: "Drawdown from session start equity in percent",
			},
		)
		intradayDrawdown = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "intraday_drawdown_percent",
				Help: "Drawdown from session peak equity in percent",
			},
		)
		killSwitchState = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "kill_switch_active",
				Help: "1 when the kill switch is latched, 0 otherwise",
			},
		)
		tradeableSymbols = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tradeable_symbols",
				Help: "Symbols currently passing the session gate",
			},
		)
		openPositions = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "open_positions",
				Help: "Open positions reported by the broker",
			},
		)

		cycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total evaluation cycles by result",
			},
			[]string{"result"},
		)
		cycleDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_duration_seconds",
				Help:    "Evaluation cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		openDenials = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "open_denials_total",
				Help: "Total denied open authorizations by reason",
			},
			[]string{"reason"},
		)
		riskAlerts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "risk_alerts_total",
				Help: "Total drawdown alerts by threshold key",
			},
			[]string{"level"},
		)
		killSwitches = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "kill_switch_activations_total",
				Help: "Total kill switch activations",
			},
		)
		quoteFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "quote_failures_total",
				Help: "Total failed quote lookups by symbol",
			},
			[]string{"symbol"},
		)
		sessionResets = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "session_resets_total",
				Help: "Total daily risk session resets",
			},
		)

		prometheus.MustRegister(
			accountEquity,
			sessionPeak,
			dailyDrawdown,
			intradayDrawdown,
			killSwitchState,
			tradeableSymbols,
			openPositions,
			cycleTotal,
			cycleDuration,
			openDenials,
			riskAlerts,
			killSwitches,
			quoteFailures,
			sessionResets,
		)
	})
}

// SetRiskState updates the per-cycle risk gauges. Drawdowns are percents.
func SetRiskState(equity, peak, daily, intraday float64, killSwitch bool) {
	if accountEquity != nil {
		accountEquity.Set(equity)
	}
	if sessionPeak != nil {
		sessionPeak.Set(peak)
	}
	if dailyDrawdown != nil {
		dailyDrawdown.Set(daily)
	}
	if intradayDrawdown != nil {
		intradayDrawdown.Set(intraday)
	}
	if killSwitchState != nil {
		if killSwitch {
			killSwitchState.Set(1)
		} else {
			killSwitchState.Set(0)
		}
	}
}

// SetTradeableSymbols sets the count of symbols passing the gate.
func SetTradeableSymbols(count int) {
	if tradeableSymbols != nil {
		tradeableSymbols.Set(float64(count))
	}
}

// SetOpenPositions sets the broker-reported open position count.
func SetOpenPositions(count int) {
	if openPositions != nil {
		openPositions.Set(float64(count))
	}
}

// ObserveCycle records one evaluation cycle with its duration and result.
func ObserveCycle(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if cycleTotal != nil {
		cycleTotal.WithLabelValues(result).Inc()
	}
	if cycleDuration != nil {
		cycleDuration.Observe(duration.Seconds())
	}
}

// IncOpenDenial increments the denial counter for a reason.
func IncOpenDenial(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if openDenials != nil {
		openDenials.WithLabelValues(reason).Inc()
	}
}

// IncRiskAlert increments the alert counter for a threshold key.
func IncRiskAlert(level string) {
	if level == "" {
		level = "unknown"
	}
	if riskAlerts != nil {
		riskAlerts.WithLabelValues(level).Inc()
	}
}

// IncKillSwitch increments the kill switch activation counter.
func IncKillSwitch() {
	if killSwitches != nil {
		killSwitches.Inc()
	}
}

// IncQuoteFailure increments the failed quote counter for a symbol.
func IncQuoteFailure(symbol string) {
	if symbol == "" {
		symbol = "unknown"
	}
	if quoteFailures != nil {
		quoteFailures.WithLabelValues(symbol).Inc()
	}
}

// IncSessionReset increments the daily reset counter.
func IncSessionReset() {
	if sessionResets != nil {
		sessionResets.Inc()
	}
}

// Exported result constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
