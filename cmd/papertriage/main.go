package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PaperTriage/internal/app"
	"PaperTriage/internal/config"
	"PaperTriage/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("papertriage", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config (defaults to $PAPER_TRIAGE_CONFIG)")
	runID := fs.String("run-id", "", `pin the run id; "new" mints a fresh one`)
	mode := fs.String("mode", "", "override scoring mode tag")
	day := fs.String("day", "", "day to process as YYYY-MM-DD (defaults to today)")
	once := fs.Bool("once", false, "process one day and exit instead of running the scheduler")
	exportDir := fs.String("export", "", "override export directory")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{
		RunID:     *runID,
		Mode:      *mode,
		ExportDir: *exportDir,
	})
	if err != nil {
		logger.Error("application init failed", "error", err)
		return 1
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close application", "error", err)
		}
	}()

	if !*once && *day == "" {
		if err := application.Serve(ctx); err != nil {
			logger.Error("application stopped", "error", err)
			return 1
		}
		return 0
	}

	target := time.Now().In(cfg.Scheduler.Location())
	if *day != "" {
		target, err = time.ParseInLocation(time.DateOnly, *day, cfg.Scheduler.Location())
		if err != nil {
			logger.Error("invalid -day", "value", *day, "error", err)
			return 2
		}
	}

	report, err := application.RunOnce(ctx, target)
	if err != nil {
		logger.Error("run failed", "error", err)
		return 1
	}
	logger.Info("run finished",
		"run_id", report.Run.ID,
		"evaluated", report.Counts.Evaluated,
		"unscored", report.Counts.Unscored,
		"must_reads", len(report.MustReads),
		"events", report.EventsPath,
		"manifest", report.ManifestPath,
	)
	return 0
}
