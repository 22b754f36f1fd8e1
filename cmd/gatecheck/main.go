package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"tradeguard/config"
	"tradeguard/internal/adapters/brokerclient"
	"tradeguard/internal/adapters/logger"
	"tradeguard/internal/domain"
	"tradeguard/internal/ports"
	"tradeguard/internal/session"
)

func main() {
	at := flag.String("at", "", "evaluate at HH:MM UTC today instead of now")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Resolve the evaluation time
	now := time.Now().UTC()
	if *at != "" {
		clock, err := domain.ParseClockTime(*at)
		if err != nil {
			log.Fatalf("FATAL: Invalid -at value: %v", err)
		}
		now = time.Date(now.Year(), now.Month(), now.Day(), clock.Hour, clock.Minute, 0, 0, time.UTC)
	}

	// 4. Initialize Broker Client, only needed when market hours detection is on
	var quotes ports.QuoteProvider
	if cfg.AutoMarketHours {
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
		quotes = broker
	}

	// 5. Initialize Session Gate
	gate, err := session.New(session.Config{
		Enabled:         cfg.SessionsEnabled,
		AutoMarketHours: cfg.AutoMarketHours,
		SpreadThreshold: cfg.SpreadThreshold,
		CryptoWeekends:  cfg.CryptoWeekends,
		Windows:         cfg.SessionWindows,
		Logger:          appLogger,
		Quotes:          quotes,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize session gate")
		log.Fatalf("FATAL: Failed to initialize session gate: %v", err)
	}

	// 6. Evaluate every configured symbol
	decisions := gate.Decisions(context.Background(), cfg.Symbols, now)

	fmt.Printf("Gate decisions at %s UTC (%s)\n\n", now.Format("2006-01-02 15:04"), now.Weekday())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Symbol\tTradeable\tReason\tSession\tSpread\t")

	tradeable := 0
	for _, d := range decisions {
		verdict := "no"
		if d.Tradeable {
			verdict = "yes"
			tradeable++
		}
		sessionName := d.Session
		if sessionName == "" {
			sessionName = "-"
		}
		spread := "-"
		if d.SpreadPoints != nil {
			spread = fmt.Sprintf("%.1f", *d.SpreadPoints)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", d.Symbol, verdict, d.Reason, sessionName, spread)
	}
	w.Flush()

	fmt.Printf("\n%d of %d symbols tradeable\n", tradeable, len(decisions))
	if tradeable == 0 {
		os.Exit(1)
	}
}
