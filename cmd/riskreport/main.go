package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"tradeguard/config"
	"tradeguard/internal/adapters/logger"
	"tradeguard/internal/adapters/sqlite"
	"tradeguard/internal/domain"
)

func main() {
	day := flag.String("day", time.Now().UTC().Format("2006-01-02"), "trading day to report (YYYY-MM-DD)")
	flag.Parse()

	if _, err := time.Parse("2006-01-02", *day); err != nil {
		log.Fatalf("FATAL: Invalid -day value: %v", err)
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	// 4. Load the session row
	sess, err := repo.FindSessionByDay(ctx, *day)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to read risk session")
		log.Fatalf("FATAL: Failed to read risk session: %v", err)
	}
	if sess == nil {
		fmt.Printf("No risk session recorded for %s\n", *day)
		return
	}
	printSession(sess)

	// 5. Equity range from snapshots
	snapshots, err := repo.SnapshotsByDay(ctx, *day)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to read equity snapshots")
		log.Fatalf("FATAL: Failed to read equity snapshots: %v", err)
	}
	printEquityRange(snapshots)

	// 6. Event journal
	events, err := repo.EventsByDay(ctx, *day)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to read risk events")
		log.Fatalf("FATAL: Failed to read risk events: %v", err)
	}
	printEvents(events)
}

// printSession prints the persisted guard baseline for the day.
func printSession(sess *domain.RiskSession) {
	fmt.Printf("## Risk session %s\n\n", sess.TradingDay)
	fmt.Printf("Start equity:  %.2f\n", sess.StartEquity)
	fmt.Printf("Peak equity:   %.2f\n", sess.PeakEquity)

	kill := "inactive"
	if sess.KillSwitch {
		kill = "ACTIVE"
		if sess.KillReason != "" {
			kill = fmt.Sprintf("ACTIVE (%s)", sess.KillReason)
		}
	}
	fmt.Printf("Kill switch:   %s\n", kill)

	alerts := "none"
	if len(sess.FiredAlerts) > 0 {
		alerts = strings.Join(sess.FiredAlerts, ", ")
	}
	fmt.Printf("Fired alerts:  %s\n", alerts)
	fmt.Printf("Started at:    %s\n", sess.StartedAt.Format(time.RFC3339))
	fmt.Printf("Last update:   %s\n", sess.UpdatedAt.Format(time.RFC3339))
}

// printEquityRange summarizes the day's equity snapshots.
func printEquityRange(snapshots []*domain.EquitySnapshot) {
	fmt.Println("\n## Equity")
	if len(snapshots) == 0 {
		fmt.Println("\nNo equity snapshots recorded.")
		return
	}

	first, last := snapshots[0], snapshots[len(snapshots)-1]
	low, high := first.Equity, first.Equity
	var worstDaily, worstIntraday float64
	for _, s := range snapshots {
		if s.Equity < low {
			low = s.Equity
		}
		if s.Equity > high {
			high = s.Equity
		}
		if s.DailyDrawdownPct > worstDaily {
			worstDaily = s.DailyDrawdownPct
		}
		if s.IntradayDrawdownPct > worstIntraday {
			worstIntraday = s.IntradayDrawdownPct
		}
	}

	fmt.Printf("\nSnapshots:     %d (%s to %s)\n", len(snapshots), first.At.Format("15:04"), last.At.Format("15:04"))
	fmt.Printf("First / last:  %.2f / %.2f\n", first.Equity, last.Equity)
	fmt.Printf("Low / high:    %.2f / %.2f\n", low, high)
	fmt.Printf("Worst daily drawdown:    %.2f%%\n", worstDaily)
	fmt.Printf("Worst intraday drawdown: %.2f%%\n", worstIntraday)
}

// printEvents prints the day's journaled risk events, oldest first.
func printEvents(events []*domain.RiskEvent) {
	fmt.Println("\n## Events")
	if len(events) == 0 {
		fmt.Println("\nNo risk events recorded.")
		return
	}

	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Time\tType\tDailyDD\tIntradayDD\tEquity\tMessage\t")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%.2f%%\t%.2f\t%s\t\n",
			e.At.Format("15:04:05"),
			string(e.Type),
			e.DailyDrawdownPct,
			e.IntradayDrawdownPct,
			e.Equity,
			e.Message,
		)
	}
	w.Flush()
}
