package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradeguard/internal/domain"
	"tradeguard/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.RiskRepository interface using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradeguard.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	// Initialize schema (consider moving to a separate migration tool/step)
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS risk_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trading_day TEXT NOT NULL UNIQUE,
		start_equity REAL NOT NULL,
		peak_equity REAL NOT NULL,
		kill_switch INTEGER NOT NULL DEFAULT 0,
		kill_reason TEXT DEFAULT NULL,
		fired_alerts TEXT DEFAULT NULL,
		started_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS risk_events (
		id TEXT PRIMARY KEY,
		trading_day TEXT NOT NULL,
		type TEXT NOT NULL,
		symbol TEXT DEFAULT NULL,
		message TEXT NOT NULL,
		daily_drawdown REAL NOT NULL,
		intraday_drawdown REAL NOT NULL,
		equity REAL NOT NULL,
		at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equity_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trading_day TEXT NOT NULL,
		equity REAL NOT NULL,
		peak_equity REAL NOT NULL,
		daily_drawdown REAL NOT NULL,
		intraday_drawdown REAL NOT NULL,
		open_positions INTEGER NOT NULL,
		at TIMESTAMP NOT NULL
	);
	-- Add indexes for the by-day lookups
	CREATE INDEX IF NOT EXISTS idx_risk_events_day_at ON risk_events (trading_day, at);
	CREATE INDEX IF NOT EXISTS idx_equity_snapshots_day_at ON equity_snapshots (trading_day, at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- RiskSessionRepository Implementation ---

// SaveSession inserts a new risk session row and returns its assigned ID.
func (r *Repository) SaveSession(ctx context.Context, s *domain.RiskSession) (int64, error) {
	const query = `
	INSERT INTO risk_sessions (trading_day, start_equity, peak_equity, kill_switch, kill_reason, fired_alerts, started_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		s.TradingDay, s.StartEquity, s.PeakEquity, s.KillSwitch,
		nullableString(s.KillReason), nullableString(joinAlerts(s.FiredAlerts)),
		s.StartedAt, s.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return 0, fmt.Errorf("risk session for day %s already exists: %w", s.TradingDay, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert risk session for day %s: %w", s.TradingDay, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for risk session %s: %w", s.TradingDay, err)
	}
	s.ID = id // Update the domain object with the ID
	r.logger.Debug(ctx, "Risk session created", map[string]interface{}{"sessionID": id, "tradingDay": s.TradingDay})
	return id, nil
}

// UpdateSession rewrites the mutable fields of an existing session row.
func (r *Repository) UpdateSession(ctx context.Context, s *domain.RiskSession) error {
	const query = `
	UPDATE risk_sessions
	SET start_equity = ?, peak_equity = ?, kill_switch = ?, kill_reason = ?,
	    fired_alerts = ?, updated_at = ?
	WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		s.StartEquity, s.PeakEquity, s.KillSwitch,
		nullableString(s.KillReason), nullableString(joinAlerts(s.FiredAlerts)),
		s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("failed to update risk session ID %d: %w", s.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for update risk session ID %d: %w", s.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("risk session ID %d not found for update: %w", s.ID, ports.ErrNotFound)
	}
	return nil
}

// FindSessionByDay retrieves the session for a trading day, if any.
func (r *Repository) FindSessionByDay(ctx context.Context, day string) (*domain.RiskSession, error) {
	const query = `
	SELECT id, trading_day, start_equity, peak_equity, kill_switch,
	       COALESCE(kill_reason, ''), COALESCE(fired_alerts, ''), started_at, updated_at
	FROM risk_sessions
	WHERE trading_day = ?`

	row := r.db.QueryRowContext(ctx, query, day)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No risk session found for day", map[string]interface{}{"tradingDay": day})
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query risk session for day %s: %w", day, err)
	}
	return session, nil
}

// --- RiskEventRepository Implementation ---

// SaveEvent appends an event to the journal.
func (r *Repository) SaveEvent(ctx context.Context, e *domain.RiskEvent) error {
	const query = `
	INSERT INTO risk_events (id, trading_day, type, symbol, message, daily_drawdown, intraday_drawdown, equity, at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.TradingDay, e.Type, nullableString(e.Symbol), e.Message,
		e.DailyDrawdownPct, e.IntradayDrawdownPct, e.Equity, e.At)
	if err != nil {
		return fmt.Errorf("failed to insert risk event %s: %w", e.ID, err)
	}
	r.logger.Debug(ctx, "Risk event journaled", map[string]interface{}{"eventID": e.ID, "type": e.Type})
	return nil
}

// EventsByDay retrieves all events for a trading day, oldest first.
func (r *Repository) EventsByDay(ctx context.Context, day string) ([]*domain.RiskEvent, error) {
	const query = `
	SELECT id, trading_day, type, COALESCE(symbol, ''), message,
	       daily_drawdown, intraday_drawdown, equity, at
	FROM risk_events
	WHERE trading_day = ? ORDER BY at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk events for day %s: %w", day, err)
	}
	defer rows.Close()

	events := make([]*domain.RiskEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan risk event during EventsByDay: %w", err)
		}
		events = append(events, event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating risk event rows: %w", err)
	}
	return events, nil
}

// --- EquitySnapshotRepository Implementation ---

// SaveSnapshot appends an equity snapshot and returns its assigned ID.
func (r *Repository) SaveSnapshot(ctx context.Context, s *domain.EquitySnapshot) (int64, error) {
	const query = `
	INSERT INTO equity_snapshots (trading_day, equity, peak_equity, daily_drawdown, intraday_drawdown, open_positions, at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		s.TradingDay, s.Equity, s.PeakEquity, s.DailyDrawdownPct, s.IntradayDrawdownPct,
		s.OpenPositions, s.At)
	if err != nil {
		return 0, fmt.Errorf("failed to insert equity snapshot for day %s: %w", s.TradingDay, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for equity snapshot: %w", err)
	}
	s.ID = id
	return id, nil
}

// SnapshotsByDay retrieves all snapshots for a trading day, oldest first.
func (r *Repository) SnapshotsByDay(ctx context.Context, day string) ([]*domain.EquitySnapshot, error) {
	const query = `
	SELECT id, trading_day, equity, peak_equity, daily_drawdown, intraday_drawdown, open_positions, at
	FROM equity_snapshots
	WHERE trading_day = ? ORDER BY at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, day)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity snapshots for day %s: %w", day, err)
	}
	defer rows.Close()

	snapshots := make([]*domain.EquitySnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan equity snapshot during SnapshotsByDay: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating equity snapshot rows: %w", err)
	}
	return snapshots, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSession scans a row into a domain.RiskSession struct.
func scanSession(s scanner) (*domain.RiskSession, error) {
	session := &domain.RiskSession{}
	var firedAlerts string
	err := s.Scan(
		&session.ID, &session.TradingDay, &session.StartEquity, &session.PeakEquity,
		&session.KillSwitch, &session.KillReason, &firedAlerts,
		&session.StartedAt, &session.UpdatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	session.FiredAlerts = splitAlerts(firedAlerts)
	return session, nil
}

// scanEvent scans a row into a domain.RiskEvent struct.
func scanEvent(s scanner) (*domain.RiskEvent, error) {
	event := &domain.RiskEvent{}
	var eventType string
	err := s.Scan(
		&event.ID, &event.TradingDay, &eventType, &event.Symbol, &event.Message,
		&event.DailyDrawdownPct, &event.IntradayDrawdownPct, &event.Equity, &event.At)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	event.Type = domain.RiskEventType(eventType) // Convert string to domain type
	return event, nil
}

// scanSnapshot scans a row into a domain.EquitySnapshot struct.
func scanSnapshot(s scanner) (*domain.EquitySnapshot, error) {
	snapshot := &domain.EquitySnapshot{}
	err := s.Scan(
		&snapshot.ID, &snapshot.TradingDay, &snapshot.Equity, &snapshot.PeakEquity,
		&snapshot.DailyDrawdownPct, &snapshot.IntradayDrawdownPct, &snapshot.OpenPositions, &snapshot.At)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// nullableString maps "" onto NULL for optional text columns.
func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// joinAlerts flattens fired alert keys for single-column storage.
func joinAlerts(alerts []string) string {
	return strings.Join(alerts, ",")
}

// splitAlerts restores fired alert keys from their stored form.
func splitAlerts(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
