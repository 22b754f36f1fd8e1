package ports

import (
	"context"

	"tradeguard/internal/domain"
)

// RiskSessionRepository stores the Drawdown Guard's per-day baseline so a
// same-day process restart cannot silently clear a latched kill switch.
type RiskSessionRepository interface {
	// SaveSession inserts a new session row and returns its assigned ID.
	SaveSession(ctx context.Context, s *domain.RiskSession) (int64, error)
	// UpdateSession rewrites the mutable fields of an existing session row.
	UpdateSession(ctx context.Context, s *domain.RiskSession) error
	// FindSessionByDay retrieves the session for a trading day (YYYY-MM-DD).
	// Returns nil, nil when no session was recorded for that day.
	FindSessionByDay(ctx context.Context, day string) (*domain.RiskSession, error)
}

// RiskEventRepository journals risk occurrences (alerts, kill switch, resets).
type RiskEventRepository interface {
	// SaveEvent appends an event to the journal.
	SaveEvent(ctx context.Context, e *domain.RiskEvent) error
	// EventsByDay retrieves all events for a trading day, oldest first.
	EventsByDay(ctx context.Context, day string) ([]*domain.RiskEvent, error)
}

// EquitySnapshotRepository journals per-cycle equity observations.
type EquitySnapshotRepository interface {
	// SaveSnapshot appends a snapshot and returns its assigned ID.
	SaveSnapshot(ctx context.Context, s *domain.EquitySnapshot) (int64, error)
	// SnapshotsByDay retrieves all snapshots for a trading day, oldest first.
	SnapshotsByDay(ctx context.Context, day string) ([]*domain.EquitySnapshot, error)
}

// RiskRepository is the combined journal surface the supervisor wires.
type RiskRepository interface {
	RiskSessionRepository
	RiskEventRepository
	EquitySnapshotRepository
}
