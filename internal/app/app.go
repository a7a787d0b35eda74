package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"PaperTriage/internal/config"
	"PaperTriage/internal/evaluator"
	"PaperTriage/internal/gating"
	"PaperTriage/internal/infrastructure/export"
	"PaperTriage/internal/infrastructure/llm"
	"PaperTriage/internal/infrastructure/ml"
	"PaperTriage/internal/infrastructure/parser"
	"PaperTriage/internal/infrastructure/scheduler"
	"PaperTriage/internal/infrastructure/storage"
	"PaperTriage/internal/infrastructure/telegram"
	"PaperTriage/internal/logging"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/review"
	"PaperTriage/internal/scanner"
	"PaperTriage/internal/usecase"
)

// FreshRunID asks New to mint a unique run id instead of the per-day default.
const FreshRunID = "new"

// Options are per-invocation overrides on top of the loaded config.
type Options struct {
	// RunID pins the run. FreshRunID mints one; empty keeps <mode>-<day>.
	RunID string
	Mode  string
	// ExportDir overrides the configured export directory when set.
	ExportDir string
}

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.SQLStore
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
}

// New opens the score store and builds every adapter the config enables.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger, opts Options) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if opts.Mode != "" {
		cfg.Scoring.Mode = opts.Mode
	}
	if opts.ExportDir != "" {
		cfg.Export.Dir = opts.ExportDir
	}
	if !review.KnownVersion(cfg.Scoring.PromptVersion) {
		return nil, fmt.Errorf("unknown prompt version %q", cfg.Scoring.PromptVersion)
	}

	runID := opts.RunID
	if runID == FreshRunID {
		runID = NewRunID(cfg.Scoring.Mode)
	}

	httpClient := &http.Client{Timeout: cfg.Scoring.Retry.Timeout + 5*time.Second}
	reviewers := buildReviewers(cfg, httpClient, baseLogger)
	if len(reviewers) == 0 {
		return nil, fmt.Errorf("no reviewers configured: enable at least one backend with credentials")
	}

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(nil, baseLogger.With("component", "scanner.arxiv")))
	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	var exporter ports.Exporter
	if cfg.Export.Dir != "" {
		exporter = export.NewExporter(cfg.Export.Dir, baseLogger.With("component", "export"))
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg, nil)
	}

	var gate *gating.Gate
	if cfg.Gating.Enabled {
		if gate, err = gating.New(cfg.Gating, baseLogger.With("component", "gating")); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	th := cfg.Scoring.Thresholds
	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:    source,
		Store:     store,
		Reviewers: reviewers,
		Evaluator: evaluator.New(evaluator.Thresholds{
			HighSpread:     th.HighSpread,
			ModerateSpread: th.ModerateSpread,
			EvidenceMargin: th.EvidenceMargin,
		}),
		Exporter: exporter,
		Notifier: notifier,
		Gate:     gate,
		Logger:   baseLogger.With("component", "pipeline"),
		Settings: usecase.PipelineSettings{
			Mode:                  cfg.Scoring.Mode,
			PromptVersion:         cfg.Scoring.PromptVersion,
			RunID:                 runID,
			Workers:               cfg.Scoring.Workers,
			TopK:                  cfg.Scoring.TopK,
			RetryUnscoredOnResume: cfg.Scoring.RetryUnscoredOnResume,
		},
	})

	cron, err := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), baseLogger.With("component", "scheduler"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	baseLogger.Info("application ready",
		"mode", cfg.Scoring.Mode,
		"prompt_version", cfg.Scoring.PromptVersion,
		"reviewers", len(reviewers),
		"database", cfg.Database.Driver,
		"export", exporter != nil,
		"telegram", notifier != nil,
		"gating", gate != nil,
	)

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		store:     store,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(cron, pipeline, baseLogger.With("component", "scheduler")),
	}, nil
}

// NewRunID returns a run id unique across invocations of mode.
func NewRunID(mode string) string {
	return mode + "-" + uuid.NewString()
}

// RunOnce processes day immediately.
func (a *Application) RunOnce(ctx context.Context, day time.Time) (usecase.Report, error) {
	return a.pipeline.ProcessDay(ctx, day.In(a.cfg.Scheduler.Location()))
}

// Serve fires the pipeline on the configured schedule until ctx ends.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Scoring.Retry.Timeout*time.Duration(a.cfg.Scoring.Retry.MaxAttempts)+10*time.Second)
	defer cancel()
	return a.scheduler.Stop(stopCtx)
}

// Close releases the score store.
func (a *Application) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*storage.SQLStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return storage.OpenPostgres(ctx, cfg.DSN)
	case config.DriverSQLite:
		return storage.OpenSQLite(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// buildReviewers wraps each enabled backend in a policy-driven runner. Remote
// model APIs without a key are skipped with a warning.
func buildReviewers(cfg config.Config, httpClient *http.Client, logger *slog.Logger) []ports.Reviewer {
	rc := cfg.Scoring.Retry
	policy := review.Policy{
		MaxAttempts: rc.MaxAttempts,
		Timeout:     rc.Timeout,
		BaseBackoff: rc.BaseBackoff,
		MaxBackoff:  rc.MaxBackoff,
	}

	type candidate struct {
		cfg       config.ReviewerConfig
		needsKey  bool
		construct func() review.Backend
	}
	rs := cfg.Reviewers
	candidates := []candidate{
		{rs.Claude, true, func() review.Backend { return llm.NewAnthropicClient(rs.Claude, httpClient) }},
		{rs.Gemini, true, func() review.Backend { return llm.NewGeminiClient(rs.Gemini, httpClient) }},
		{rs.OpenAI, true, func() review.Backend { return llm.NewOpenAIClient(rs.OpenAI, httpClient) }},
		{rs.Inference, false, func() review.Backend { return ml.NewClient(rs.Inference, httpClient) }},
	}

	var reviewers []ports.Reviewer
	for _, c := range candidates {
		if !c.cfg.Enabled {
			continue
		}
		backend := c.construct()
		if c.needsKey && c.cfg.APIKey == "" {
			logger.Warn("reviewer enabled without api key, skipping", "reviewer", backend.Name())
			continue
		}
		reviewers = append(reviewers, review.NewRunner(
			backend,
			cfg.Scoring.PromptVersion,
			policy,
			logger,
		))
	}
	return reviewers
}
