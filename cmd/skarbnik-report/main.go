package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"skarbnik/internal/config"
	"skarbnik/internal/core"
	"skarbnik/internal/report"
	"skarbnik/internal/storage"
)

// reportOutput is the full one-shot report: the current snapshot plus the
// sparse per-period summaries.
type reportOutput struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Current     report.CurrentReport    `json:"current"`
	Monthly     []report.PeriodicReport `json:"monthly_reports"`
	Yearly      []report.PeriodicReport `json:"yearly_reports"`
}

func main() {
	_ = godotenv.Load()

	// The report itself goes to stdout, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	currentOnly := flag.Bool("current-only", false, "emit only the current snapshot, without periodic summaries")
	flag.Parse()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Failed to resolve time zone", "error", err)
		os.Exit(1)
	}

	rules, err := config.LoadRules(cfg.RulesPath, loc)
	if err != nil {
		logger.Error("Failed to load rules file", "error", err, "path", cfg.RulesPath)
		os.Exit(1)
	}

	ledger, err := storage.NewLedger(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open ledger", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer ledger.Close()

	ctx := context.Background()

	expenses, err := ledger.ListExpenses(ctx, time.Time{})
	if err != nil {
		logger.Error("Failed to list expenses", "error", err)
		os.Exit(1)
	}
	transfers, err := ledger.ListPositiveTransfers(ctx, time.Time{})
	if err != nil {
		logger.Error("Failed to list transfers", "error", err)
		os.Exit(1)
	}
	subscribers, err := ledger.ListSubscribers(ctx)
	if err != nil {
		logger.Error("Failed to list subscribers", "error", err)
		os.Exit(1)
	}

	builder := report.NewBuilder(loc)
	now := time.Now()

	out := reportOutput{
		GeneratedAt: now,
		Current: builder.CurrentReport(report.CurrentReportInput{
			AsOf:          now,
			Expenses:      expenses,
			Transfers:     transfers,
			Subscribers:   subscribers,
			Rules:         rules.CategoryRules,
			AccountLabels: rules.AccountLabels,
			Corrections:   rules.Corrections,
			Reservations:  rules.Reservations,
		}),
	}
	if !*currentOnly {
		entries := append(append([]core.Entry(nil), expenses...), transfers...)
		out.Monthly = builder.PeriodicReports(entries, report.Monthly)
		out.Yearly = builder.PeriodicReports(entries, report.Yearly)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		logger.Error("Failed to write report", "error", err)
		os.Exit(1)
	}
}
