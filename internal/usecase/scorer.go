package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/evaluator"
	"PaperTriage/internal/fingerprint"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/runcache"
)

// ErrEmptyInput marks a publication with neither title nor abstract. It is
// skipped, never sent to reviewers and never given a score.
var ErrEmptyInput = errors.New("publication has no title or abstract")

// ScorerDeps wires the collaborators of one run's scoring engine.
type ScorerDeps struct {
	Cache     *runcache.Cache
	Reviewers []ports.Reviewer
	Evaluator *evaluator.Evaluator
	Logger    *slog.Logger
	Workers   int
	Now       func() time.Time
	// Gate returns the triage decision recorded with a publication's event.
	Gate func(domain.Publication) *domain.GateDecision
}

// Scorer evaluates publications for one run. Each (run, publication) pair is
// reviewed at most once no matter how many callers ask for it.
type Scorer struct {
	run       domain.Run
	cache     *runcache.Cache
	reviewers []ports.Reviewer
	evaluator *evaluator.Evaluator
	logger    *slog.Logger
	workers   int
	now       func() time.Time
	gate      func(domain.Publication) *domain.GateDecision

	flight singleflight.Group

	mu    sync.Mutex
	stats domain.RunCounts
}

// NewScorer builds the engine for run. The cache must belong to the same run.
func NewScorer(run domain.Run, deps ScorerDeps) (*Scorer, error) {
	if deps.Cache == nil {
		return nil, fmt.Errorf("scorer: cache is required")
	}
	if deps.Cache.RunID() != run.ID {
		return nil, fmt.Errorf("scorer: cache belongs to run %s, not %s", deps.Cache.RunID(), run.ID)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = evaluator.New(evaluator.DefaultThresholds())
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Workers < 1 {
		deps.Workers = 1
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Scorer{
		run:       run,
		cache:     deps.Cache,
		reviewers: deps.Reviewers,
		evaluator: deps.Evaluator,
		logger:    deps.Logger.With("run_id", run.ID),
		workers:   deps.Workers,
		now:       deps.Now,
		gate:      deps.Gate,
		stats: domain.RunCounts{
			ReviewerCalls:    map[string]int{},
			ReviewerFailures: map[string]int{},
		},
	}, nil
}

// Score returns the run's event for pub, evaluating it only on a cache miss.
// A returned error wrapping runcache.ErrNotPersisted still comes with a
// usable event.
func (s *Scorer) Score(ctx context.Context, pub domain.Publication) (domain.ScoringEvent, error) {
	s.count(func(c *domain.RunCounts) { c.Candidates++ })

	if fingerprint.Empty(pub.Title, pub.Abstract) {
		s.count(func(c *domain.RunCounts) { c.Skipped++ })
		s.logger.Info("publication skipped", "publication_id", pub.ID, "reason", "empty title and abstract")
		return domain.ScoringEvent{}, fmt.Errorf("%w: %s", ErrEmptyInput, pub.ID)
	}
	if pub.ID == "" {
		pub.ID = fingerprint.PublicationID(pub)
	}

	if ev, ok := s.cache.Lookup(s.run.ID, pub.ID); ok {
		s.hit(pub.ID)
		return ev, nil
	}

	executed := false
	v, err, _ := s.flight.Do("pub:"+s.run.ID+"|"+pub.ID, func() (any, error) {
		executed = true
		return s.scoreMiss(ctx, pub)
	})
	if v == nil {
		return domain.ScoringEvent{}, err
	}
	// Callers that joined another caller's evaluation are served from it.
	if !executed {
		s.hit(pub.ID)
	}
	return v.(domain.ScoringEvent), err
}

func (s *Scorer) scoreMiss(ctx context.Context, pub domain.Publication) (domain.ScoringEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.ScoringEvent{}, err
	}
	ev, ok, err := s.cache.Resolve(ctx, s.run.ID, pub.ID)
	if err != nil {
		s.logger.Warn("score store lookup failed; treating as miss", "publication_id", pub.ID, "error", err)
	}
	if ok {
		s.hit(pub.ID)
		return ev, nil
	}
	s.count(func(c *domain.RunCounts) { c.CacheMisses++ })

	fp := fingerprint.Of(pub)
	v, err, _ := s.flight.Do("fp:"+s.run.ID+"|"+fp, func() (any, error) {
		// Unscored content is re-reviewed only when the run retries failures.
		if prior, ok := s.cache.LookupFingerprint(fp); ok && (prior.Scored() || !s.cache.SkipsUnscored()) {
			return prior, nil
		}
		return s.evaluate(ctx, pub, fp)
	})
	if v == nil {
		return domain.ScoringEvent{}, err
	}
	source := v.(domain.ScoringEvent)
	if source.PublicationID == pub.ID {
		return source, err
	}
	if err != nil && !errors.Is(err, runcache.ErrNotPersisted) {
		return domain.ScoringEvent{}, err
	}
	return s.reuse(ctx, pub, fp, source)
}

// reuse records pub with the reviews and evaluation of an identical-content
// publication already handled in this run.
func (s *Scorer) reuse(ctx context.Context, pub domain.Publication, fp string, source domain.ScoringEvent) (domain.ScoringEvent, error) {
	s.count(func(c *domain.RunCounts) { c.FingerprintReuses++ })
	s.logger.Debug("fingerprint reuse", "publication_id", pub.ID, "reused_from", source.PublicationID)

	event := s.newEvent(pub, fp)
	event.Status = source.Status
	event.Reviews = source.Reviews
	event.Evaluation = source.Evaluation
	event.ReusedFrom = source.PublicationID
	if source.ReusedFrom != "" {
		event.ReusedFrom = source.ReusedFrom
	}
	return s.record(ctx, pub, event)
}

func (s *Scorer) evaluate(ctx context.Context, pub domain.Publication, fp string) (domain.ScoringEvent, error) {
	results := make([]domain.ReviewResult, len(s.reviewers))
	var g errgroup.Group
	for i, r := range s.reviewers {
		g.Go(func() error {
			results[i] = r.Review(ctx, pub)
			return nil
		})
	}
	_ = g.Wait()

	// An interrupted run records nothing so the resume reviews it afresh.
	if err := ctx.Err(); err != nil {
		return domain.ScoringEvent{}, err
	}

	s.count(func(c *domain.RunCounts) {
		for _, res := range results {
			c.ReviewerCalls[res.Reviewer]++
			if !res.Succeeded() {
				c.ReviewerFailures[res.Reviewer]++
			}
		}
	})

	event := s.newEvent(pub, fp)
	event.Reviews = results
	if eval, ok := s.evaluator.Evaluate(pub, results); ok {
		event.Status = domain.StatusScored
		event.Evaluation = &eval
		s.count(func(c *domain.RunCounts) { c.Evaluated++ })
	} else {
		event.Status = domain.StatusUnscored
		s.count(func(c *domain.RunCounts) { c.Unscored++ })
		s.logger.Warn("no reviewer succeeded; recording unscored", "publication_id", pub.ID)
	}
	return s.record(ctx, pub, event)
}

func (s *Scorer) record(ctx context.Context, pub domain.Publication, event domain.ScoringEvent) (domain.ScoringEvent, error) {
	stored, err := s.cache.Record(ctx, s.run.ID, pub.ID, event)
	if err != nil && !errors.Is(err, runcache.ErrNotPersisted) {
		return domain.ScoringEvent{}, fmt.Errorf("record %s: %w", pub.ID, err)
	}
	return stored, err
}

func (s *Scorer) newEvent(pub domain.Publication, fp string) domain.ScoringEvent {
	event := domain.ScoringEvent{
		RunID:         s.run.ID,
		Mode:          s.run.Mode,
		PublicationID: pub.ID,
		Title:         pub.Title,
		Source:        pub.Source,
		URL:           pub.URL,
		PublishedAt:   pub.PublishedAt,
		PromptVersion: s.cache.PromptVersion(),
		Fingerprint:   fp,
		CreatedAt:     s.now().UTC(),
	}
	if s.gate != nil {
		event.Gate = s.gate(pub)
	}
	return event
}

// ScoreAll scores pubs with a bounded worker pool and returns one event per
// distinct publication in input order. Skipped publications and events that
// could not be persisted do not abort the batch.
func (s *Scorer) ScoreAll(ctx context.Context, pubs []domain.Publication) ([]domain.ScoringEvent, error) {
	seen := make(map[string]struct{}, len(pubs))
	batch := make([]domain.Publication, 0, len(pubs))
	for _, p := range pubs {
		if p.ID == "" && !fingerprint.Empty(p.Title, p.Abstract) {
			p.ID = fingerprint.PublicationID(p)
		}
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
		}
		batch = append(batch, p)
	}

	events := make([]domain.ScoringEvent, len(batch))
	scored := make([]bool, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, pub := range batch {
		g.Go(func() error {
			ev, err := s.Score(gctx, pub)
			switch {
			case errors.Is(err, ErrEmptyInput):
				return nil
			case err != nil && !errors.Is(err, runcache.ErrNotPersisted):
				return err
			}
			events[i] = ev
			scored[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}

	out := make([]domain.ScoringEvent, 0, len(batch))
	for i, ev := range events {
		if scored[i] {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Stats returns a snapshot of the run counters.
func (s *Scorer) Stats() domain.RunCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.ReviewerCalls = maps.Clone(s.stats.ReviewerCalls)
	out.ReviewerFailures = maps.Clone(s.stats.ReviewerFailures)
	out.PersistFailures = s.cache.PersistFailures()
	return out
}

func (s *Scorer) hit(publicationID string) {
	s.count(func(c *domain.RunCounts) { c.CacheHits++ })
	s.logger.Debug("cache hit", "publication_id", publicationID)
}

func (s *Scorer) count(update func(c *domain.RunCounts)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.stats)
}
