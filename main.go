package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"tradeguard/config"
	"tradeguard/internal/adapters/brokerclient"
	"tradeguard/internal/adapters/logger"
	"tradeguard/internal/adapters/lognotifier"
	"tradeguard/internal/adapters/natspub"
	"tradeguard/internal/adapters/sqlite"
	"tradeguard/internal/api"
	"tradeguard/internal/app"
	"tradeguard/internal/observability/metrics"
	"tradeguard/internal/ports"
	"tradeguard/internal/risk"
	"tradeguard/internal/session"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Register Metrics
	metrics.Init()

	// 4. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 5. Initialize Broker Client (Binance Adapter, read-only)
	broker, err := brokerclient.New(brokerclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		PointSizes:           cfg.PointSizes,
		QuoteCacheTTL:        cfg.QuoteCacheTTL,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize broker client")
		log.Fatalf("FATAL: Failed to initialize broker client: %v", err)
	}
	appLogger.Info(context.Background(), "Broker client initialized")

	// 6. Initialize Risk Event Notifier
	notifier, err := lognotifier.New(appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk notifier")
		log.Fatalf("FATAL: Failed to initialize risk notifier: %v", err)
	}

	// 7. Initialize Drawdown Guard
	guard, err := risk.NewGuard(risk.Config{
		MaxDailyDrawdown:      cfg.MaxDailyDrawdown,
		MaxIntradayDrawdown:   cfg.MaxIntradayDrawdown,
		KillSwitchMode:        cfg.KillSwitchMode,
		MaxOpenPositions:      cfg.MaxConcurrentPositions,
		MaxPositionsPerSymbol: cfg.MaxPositionsPerSymbol,
		EnableAlerts:          cfg.EnableAlerts,
		ResetTime:             cfg.DrawdownResetTime,
		Logger:                appLogger,
		Journal:               repo, // Pass the concrete implementation, guard expects the interface
		Notifier:              notifier,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize drawdown guard")
		log.Fatalf("FATAL: Failed to initialize drawdown guard: %v", err)
	}
	appLogger.Info(context.Background(), "Drawdown guard initialized", map[string]interface{}{
		"dailyLimit":    cfg.MaxDailyDrawdown,
		"intradayLimit": cfg.MaxIntradayDrawdown,
		"mode":          string(cfg.KillSwitchMode),
	})

	// 8. Initialize Session Gate
	gate, err := session.New(session.Config{
		Enabled:         cfg.SessionsEnabled,
		AutoMarketHours: cfg.AutoMarketHours,
		SpreadThreshold: cfg.SpreadThreshold,
		CryptoWeekends:  cfg.CryptoWeekends,
		Windows:         cfg.SessionWindows,
		Logger:          appLogger,
		Quotes:          broker,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize session gate")
		log.Fatalf("FATAL: Failed to initialize session gate: %v", err)
	}
	appLogger.Info(context.Background(), "Session gate initialized", map[string]interface{}{
		"enabled": cfg.SessionsEnabled,
		"windows": len(cfg.SessionWindows),
	})

	// 9. Initialize Report Publisher (optional)
	var publisher ports.ReportPublisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natspub.New(natspub.Config{
			URL:     cfg.NATSURL,
			Subject: cfg.NATSSubject,
			Logger:  appLogger,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize NATS publisher")
			log.Fatalf("FATAL: Failed to initialize NATS publisher: %v", err)
		}
		defer func() {
			if err := natsPublisher.Close(); err != nil {
				appLogger.Error(context.Background(), err, "Error closing NATS publisher")
			}
		}()
		publisher = natsPublisher
	}

	// 10. Initialize Supervisor
	supervisor, err := app.NewSupervisor(cfg, appLogger, broker, guard, gate, repo, publisher)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize supervisor")
		log.Fatalf("FATAL: Failed to initialize supervisor: %v", err)
	}
	appLogger.Info(context.Background(), "Supervisor initialized")

	// 11. Start the API server (optional, runs alongside the supervisor)
	var apiServer *api.Server
	if cfg.APIEnabled {
		apiServer, err = api.NewServer(api.Config{
			Port:     cfg.APIPort,
			Logger:   appLogger,
			Provider: supervisor,
			Journal:  repo,
		})
		if err != nil {
			appLogger.Error(context.Background(), err, "FATAL: Failed to initialize API server")
			log.Fatalf("FATAL: Failed to initialize API server: %v", err)
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				appLogger.Error(context.Background(), err, "API server exited with error")
			}
		}()
	}

	// 12. Run the Supervisor
	// Use context.Background() as the base context for the application run
	if err := supervisor.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Supervisor exited with error")
		log.Fatalf("FATAL: Supervisor exited with error: %v", err)
	}

	// 13. Shut the API server down after the supervisor stops
	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			appLogger.Error(context.Background(), err, "Error shutting down API server")
		}
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
