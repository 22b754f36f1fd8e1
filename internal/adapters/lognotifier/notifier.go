// Package lognotifier delivers risk events to the application log. It is the
// default Notifier; transports with external delivery can replace it behind
// the same port.
package lognotifier

import (
	"context"
	"errors"

	"tradeguard/internal/domain"
	"tradeguard/internal/ports"
)

// Notifier writes risk events to the configured logger, level-mapped by
// event severity.
type Notifier struct {
	logger ports.Logger
}

// New creates a log-backed notifier.
func New(logger ports.Logger) (*Notifier, error) {
	if logger == nil {
		return nil, errors.New("log notifier requires a non-nil Logger")
	}
	return &Notifier{logger: logger}, nil
}

// Notify logs one risk event, level-mapped by event type.
func (n *Notifier) Notify(ctx context.Context, event *domain.RiskEvent) error {
	if event == nil {
		return errors.New("cannot notify a nil event")
	}
	fields := map[string]interface{}{
		"id":         event.ID,
		"tradingDay": event.TradingDay,
		"equity":     event.Equity,
		"dailyDD":    event.DailyDrawdownPct,
		"intradayDD": event.IntradayDrawdownPct,
	}
	if event.Symbol != "" {
		fields["symbol"] = event.Symbol
	}

	switch event.Type {
	case domain.EventKillSwitch, domain.EventEmergencyClose:
		n.logger.Error(ctx, nil, "RISK EVENT: "+event.Message, fields)
	case domain.EventAlert:
		n.logger.Warn(ctx, "RISK EVENT: "+event.Message, fields)
	default:
		n.logger.Info(ctx, "RISK EVENT: "+event.Message, fields)
	}
	return nil
}
