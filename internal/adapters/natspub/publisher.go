// Package natspub publishes cycle reports to a NATS subject so downstream
// signal and execution collaborators can consume gating decisions without
// polling the HTTP API.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"tradeguard/internal/domain"
	"tradeguard/internal/ports"
)

// Publisher implements ports.ReportPublisher over a NATS connection.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  ports.Logger
}

// Config holds configuration for the NATS publisher.
type Config struct {
	URL     string
	Subject string
	Logger  ports.Logger
}

// New connects to NATS and returns a report publisher.
func New(cfg Config) (*Publisher, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for NATS publisher")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("NATS URL is required")
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("NATS subject is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	cfg.Logger.Info(context.Background(), "NATS publisher connected", map[string]interface{}{
		"url":     cfg.URL,
		"subject": cfg.Subject,
	})

	return &Publisher{
		conn:    conn,
		subject: cfg.Subject,
		logger:  cfg.Logger,
	}, nil
}

// PublishReport serializes one cycle report as JSON and publishes it.
func (p *Publisher) PublishReport(ctx context.Context, report *domain.CycleReport) error {
	if report == nil {
		return fmt.Errorf("cannot publish a nil report")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal cycle report %s: %w", report.ID, err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish cycle report %s to %s: %w", report.ID, p.subject, err)
	}
	p.logger.Debug(ctx, "Cycle report published", map[string]interface{}{
		"reportID": report.ID,
		"subject":  p.subject,
		"bytes":    len(data),
	})
	return nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}
