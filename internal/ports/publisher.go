package ports

import (
	"context"

	"tradeguard/internal/domain"
)

// ReportPublisher pushes finished cycle reports to downstream collaborators
// (signal generation, order execution, dashboards). Publishing is best-effort:
// a failed publish is logged by the caller and the cycle proceeds.
type ReportPublisher interface {
	// PublishReport delivers one cycle report.
	PublishReport(ctx context.Context, report *domain.CycleReport) error

	// Close releases the underlying connection, if any.
	Close() error
}
