package ports

import (
	"context"
	"time"

	"tradeguard/internal/domain"
)

// QuoteProvider supplies the live market-status reading used by the Session Gate's
// liquidity check. Failures are soft: the gate falls back to its session-window
// result when a quote cannot be read.
type QuoteProvider interface {
	// GetQuote retrieves the current best bid/ask for a symbol.
	GetQuote(ctx context.Context, symbol string) (*domain.Quote, error)
}

// AccountReader supplies the per-cycle account inputs the Drawdown Guard consumes.
type AccountReader interface {
	// GetEquity retrieves the current account equity denominated in the given asset.
	GetEquity(ctx context.Context, asset string) (float64, error)

	// GetPositionCounts retrieves the open position census (total and per symbol).
	GetPositionCounts(ctx context.Context) (domain.PositionCounts, error)
}

// BrokerClient is the full read-only broker surface. Order placement and
// execution belong to a separate collaborator and are deliberately absent.
type BrokerClient interface {
	QuoteProvider
	AccountReader

	// Ping checks connectivity to the broker API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the broker's current server time.
	GetServerTime(ctx context.Context) (time.Time, error)
}
