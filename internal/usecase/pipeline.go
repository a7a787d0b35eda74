package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/evaluator"
	"PaperTriage/internal/fingerprint"
	"PaperTriage/internal/gating"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/ranking"
	"PaperTriage/internal/runcache"
)

// PipelineSettings are the scoring knobs of a pipeline.
type PipelineSettings struct {
	Mode          string
	PromptVersion string
	// RunID pins every execution to one run. Empty derives <mode>-<YYYY-MM-DD>.
	RunID                 string
	Workers               int
	TopK                  int
	RetryUnscoredOnResume bool
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source    ports.PublicationSource
	Store     ports.ScoreStore
	Reviewers []ports.Reviewer
	Evaluator *evaluator.Evaluator
	Exporter  ports.Exporter
	Notifier  ports.Notifier
	// Gate triages publications before review. Nil reviews everything.
	Gate      *gating.Gate
	Logger    *slog.Logger
	Settings  PipelineSettings
	Now       func() time.Time
}

// Pipeline implements the daily triage workflow: fetch, score, select,
// export, notify.
type Pipeline struct {
	source    ports.PublicationSource
	store     ports.ScoreStore
	reviewers []ports.Reviewer
	evaluator *evaluator.Evaluator
	exporter  ports.Exporter
	notifier  ports.Notifier
	gate      *gating.Gate
	logger    *slog.Logger
	settings  PipelineSettings
	now       func() time.Time

	mu     sync.Mutex
	caches map[string]*runcache.Cache
}

// Report describes one finished execution.
type Report struct {
	Run          domain.Run
	Events       []domain.ScoringEvent
	MustReads    []domain.MustRead
	Counts       domain.RunCounts
	Gating       *domain.GateStats
	EventsPath   string
	ManifestPath string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Evaluator == nil {
		deps.Evaluator = evaluator.New(evaluator.DefaultThresholds())
	}
	if deps.Settings.Mode == "" {
		deps.Settings.Mode = "daily"
	}
	return &Pipeline{
		source:    deps.Source,
		store:     deps.Store,
		reviewers: deps.Reviewers,
		evaluator: deps.Evaluator,
		exporter:  deps.Exporter,
		notifier:  deps.Notifier,
		gate:      deps.Gate,
		logger:    deps.Logger,
		settings:  deps.Settings,
		now:       deps.Now,
		caches:    map[string]*runcache.Cache{},
	}
}

// RunFor returns the run that owns day's publications.
func (p *Pipeline) RunFor(day time.Time) domain.Run {
	id := p.settings.RunID
	if id == "" {
		id = fmt.Sprintf("%s-%s", p.settings.Mode, day.Format(time.DateOnly))
	}
	return domain.Run{ID: id, Mode: p.settings.Mode, StartedAt: p.now().UTC()}
}

// ProcessDay orchestrates fetching, scoring, selecting, exporting, and notifying.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time) (Report, error) {
	if p.source == nil {
		return Report{}, fmt.Errorf("publication source is not configured")
	}

	pubs, err := p.source.FetchDaily(ctx, day)
	if err != nil {
		return Report{}, fmt.Errorf("fetch daily: %w", err)
	}

	return p.Execute(ctx, p.RunFor(day), pubs)
}

// Execute scores pubs under run and produces the run's artifacts. Executing
// the same run again reuses every persisted result.
func (p *Pipeline) Execute(ctx context.Context, run domain.Run, pubs []domain.Publication) (Report, error) {
	logger := p.logger.With("run_id", run.ID, "mode", run.Mode)

	pubs, decisions, gateStats := p.triage(run, pubs)

	cache, err := p.cacheFor(ctx, run, pubs)
	if err != nil {
		return Report{}, err
	}

	scorer, err := NewScorer(run, ScorerDeps{
		Cache:     cache,
		Reviewers: p.reviewers,
		Evaluator: p.evaluator,
		Logger:    logger.With("component", "scorer"),
		Workers:   p.settings.Workers,
		Now:       p.now,
		Gate: func(pub domain.Publication) *domain.GateDecision {
			return decisions[pub.ID]
		},
	})
	if err != nil {
		return Report{}, err
	}

	logger.Info("scoring started", "publications", len(pubs), "reviewers", len(p.reviewers))
	events, err := scorer.ScoreAll(ctx, pubs)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Run:       run,
		Events:    events,
		MustReads: mustReads(ranking.SelectTop(ranking.FromEvents(events), p.settings.TopK)),
		Counts:    scorer.Stats(),
		Gating:    gateStats,
	}
	logger.Info("scoring finished",
		"evaluated", report.Counts.Evaluated,
		"unscored", report.Counts.Unscored,
		"skipped", report.Counts.Skipped,
		"cache_hits", report.Counts.CacheHits,
		"persist_failures", report.Counts.PersistFailures,
		"must_reads", len(report.MustReads),
	)

	if p.exporter != nil {
		if report.EventsPath, err = p.exporter.ExportEvents(ctx, run, cache.Events()); err != nil {
			return report, fmt.Errorf("export events: %w", err)
		}
		report.ManifestPath, err = p.exporter.ExportManifest(ctx, domain.Manifest{
			RunID:         run.ID,
			Mode:          run.Mode,
			PromptVersion: cache.PromptVersion(),
			GeneratedAt:   p.now().UTC(),
			EventsFile:    report.EventsPath,
			Counts:        report.Counts,
			Gating:        report.Gating,
			MustReads:     report.MustReads,
		})
		if err != nil {
			return report, fmt.Errorf("export manifest: %w", err)
		}
	}

	if p.notifier == nil || len(report.MustReads) == 0 {
		return report, nil
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(run, report.MustReads)); err != nil {
		return report, fmt.Errorf("publish digest: %w", err)
	}
	return report, nil
}

// triage drops publications the gate keeps out of review and returns the
// decision for every publication it saw, keyed by publication id.
func (p *Pipeline) triage(run domain.Run, pubs []domain.Publication) ([]domain.Publication, map[string]*domain.GateDecision, *domain.GateStats) {
	if p.gate == nil {
		return pubs, nil, nil
	}

	withIDs := make([]domain.Publication, len(pubs))
	for i, pub := range pubs {
		if pub.ID == "" && !fingerprint.Empty(pub.Title, pub.Abstract) {
			pub.ID = fingerprint.PublicationID(pub)
		}
		withIDs[i] = pub
	}

	results, stats := p.gate.Apply(run.ID, withIDs)
	admitted := make([]domain.Publication, 0, stats.ToEvaluate)
	decisions := make(map[string]*domain.GateDecision, len(results))
	for _, g := range results {
		d := g.Decision
		if g.Publication.ID != "" {
			decisions[g.Publication.ID] = &d
		}
		if d.Admitted() {
			admitted = append(admitted, g.Publication)
		}
	}
	return admitted, decisions, &stats
}

// cacheFor opens the run's cache once per process and afterwards catches up
// with rows written by other processes for this batch. Opening a new run
// evicts the previous one.
func (p *Pipeline) cacheFor(ctx context.Context, run domain.Run, pubs []domain.Publication) (*runcache.Cache, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cache, ok := p.caches[run.ID]; ok {
		ids := make([]string, 0, len(pubs))
		for _, pub := range pubs {
			if pub.ID != "" {
				ids = append(ids, pub.ID)
			}
		}
		if _, err := cache.Warm(ctx, ids); err != nil {
			return nil, err
		}
		return cache, nil
	}

	cache, loaded, err := runcache.Open(ctx, p.store, run.ID, p.settings.PromptVersion,
		p.logger.With("component", "runcache"),
		runcache.Options{SkipUnscored: p.settings.RetryUnscoredOnResume})
	if err != nil {
		return nil, fmt.Errorf("open run cache: %w", err)
	}
	if loaded > 0 {
		p.logger.Info("resuming run", "run_id", run.ID, "persisted_events", loaded)
	}
	// Only the latest run stays resident; earlier runs reload from the store.
	clear(p.caches)
	p.caches[run.ID] = cache
	return cache, nil
}

func mustReads(top []ranking.Candidate) []domain.MustRead {
	out := make([]domain.MustRead, 0, len(top))
	for _, c := range top {
		out = append(out, domain.MustRead{
			PublicationID:   c.PublicationID,
			Title:           c.Title,
			URL:             c.URL,
			Source:          c.Source,
			PublishedAt:     c.PublishedAt,
			FinalScore:      c.Evaluation.FinalScore,
			FinalRating:     c.Evaluation.FinalRating,
			Agreement:       c.Evaluation.Agreement,
			Summary:         c.Evaluation.FinalSummary,
			ReviewersUsed:   c.Evaluation.ReviewersUsed,
			ReviewersFailed: c.Evaluation.ReviewersFailed,
		})
	}
	return out
}

func buildDigestMessage(run domain.Run, reads []domain.MustRead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Must-reads for %s (%d)\n\n", run.ID, len(reads))
	for i, r := range reads {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "Score: %d (rating %d), agreement: %s\n", r.FinalScore, r.FinalRating, r.Agreement)

		reviewers := make([]string, 0, len(r.ReviewersUsed)+len(r.ReviewersFailed))
		for _, name := range r.ReviewersUsed {
			reviewers = append(reviewers, name+" ok")
		}
		for _, name := range r.ReviewersFailed {
			reviewers = append(reviewers, name+" failed")
		}
		fmt.Fprintf(&b, "Reviewers: %s\n", strings.Join(reviewers, ", "))

		if r.Summary != "" {
			b.WriteString(r.Summary)
			b.WriteString("\n")
		}
		if r.URL != "" {
			b.WriteString(r.URL)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
