package ports

import (
	"context"

	"tradeguard/internal/domain"
)

// Notifier receives risk events as they happen (alert thresholds, kill switch
// activation, session resets). Implementations decide the transport; the core
// ships a logger-backed one, and the journal records events separately. A
// Notifier is only ever called from the single supervisor loop.
type Notifier interface {
	// Notify delivers one risk event. Errors are reported to the caller but
	// must never be treated as fatal by emitters.
	Notify(ctx context.Context, event *domain.RiskEvent) error
}
