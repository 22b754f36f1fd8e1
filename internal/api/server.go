// Package api exposes the read-only HTTP status surface: current cycle
// report, risk state, session catalog and journal history, plus Prometheus
// metrics. It never mutates guard or gate state.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeguard/internal/domain"
	"tradeguard/internal/ports"
	"tradeguard/internal/session"
)

// StatusProvider is the supervisor surface the API reads from.
type StatusProvider interface {
	// LatestReport returns a copy of the most recent cycle report, or nil
	// before the first cycle completes.
	LatestReport() *domain.CycleReport

	// RiskSummary returns the guard's current state at the last seen equity.
	RiskSummary() domain.RiskSummary

	// SessionSummary reports the window catalog and which windows contain now.
	SessionSummary(now time.Time) session.Summary

	// SymbolDecisions evaluates the session gate for every configured symbol.
	SymbolDecisions(ctx context.Context, now time.Time) []domain.GateDecision
}

// Config holds configuration and collaborators for the API server.
type Config struct {
	Port     int
	Logger   ports.Logger
	Provider StatusProvider
	Journal  ports.RiskRepository
}

// Server serves the HTTP API.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	logger   ports.Logger
	provider StatusProvider
	journal  ports.RiskRepository
}

// NewServer creates the API server and registers its routes.
func NewServer(config Config) (*Server, error) {
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.Provider == nil {
		return nil, errors.New("status provider is required")
	}
	if config.Journal == nil {
		return nil, errors.New("journal repository is required")
	}
	if config.Port <= 0 || config.Port > 65535 {
		return nil, fmt.Errorf("invalid API port: %d", config.Port)
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{
		router:   router,
		logger:   config.Logger,
		provider: config.Provider,
		journal:  config.Journal,
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	s.setupRoutes()

	return s, nil
}

// corsMiddleware allows dashboards served from another origin to read the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.Any("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/risk", s.handleRisk)
		api.GET("/sessions", s.handleSessions)
		api.GET("/symbols", s.handleSymbols)
		api.GET("/history/equity", s.handleEquityHistory)
		api.GET("/history/events", s.handleEventHistory)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})
}

// handleHealth health check
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus latest cycle report
func (s *Server) handleStatus(c *gin.Context) {
	report := s.provider.LatestReport()
	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no cycle completed yet",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleRisk current drawdown guard state
func (s *Server) handleRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.RiskSummary())
}

// handleSessions session window catalog and activity
func (s *Server) handleSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.provider.SessionSummary(time.Now().UTC()))
}

// handleSymbols live gate decision for every configured symbol
func (s *Server) handleSymbols(c *gin.Context) {
	decisions := s.provider.SymbolDecisions(c.Request.Context(), time.Now().UTC())
	c.JSON(http.StatusOK, decisions)
}

// handleEquityHistory equity snapshots for a trading day
func (s *Server) handleEquityHistory(c *gin.Context) {
	day, err := dayParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshots, err := s.journal.SnapshotsByDay(c.Request.Context(), day)
	if err != nil {
		s.logger.Error(c.Request.Context(), err, "Failed to read equity history", map[string]interface{}{"day": day})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to read equity history: %v", err),
		})
		return
	}
	if snapshots == nil {
		snapshots = []*domain.EquitySnapshot{}
	}

	c.JSON(http.StatusOK, gin.H{
		"day":       day,
		"snapshots": snapshots,
	})
}

// handleEventHistory risk events for a trading day
func (s *Server) handleEventHistory(c *gin.Context) {
	day, err := dayParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := s.journal.EventsByDay(c.Request.Context(), day)
	if err != nil {
		s.logger.Error(c.Request.Context(), err, "Failed to read event history", map[string]interface{}{"day": day})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to read event history: %v", err),
		})
		return
	}
	if events == nil {
		events = []*domain.RiskEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"day":    day,
		"events": events,
	})
}

// dayParam reads the optional ?day=YYYY-MM-DD query, defaulting to today (UTC).
func dayParam(c *gin.Context) (string, error) {
	day := c.Query("day")
	if day == "" {
		return time.Now().UTC().Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return "", fmt.Errorf("invalid day %q: want YYYY-MM-DD", day)
	}
	return day, nil
}

// Start serves HTTP until Stop is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "API server listening", map[string]interface{}{
		"addr": s.http.Addr,
	})

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
