package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/ranking"
	"PaperTriage/internal/runcache"
)

func newTestScorer(t *testing.T, store ports.ScoreStore, runID string, reviewers ...ports.Reviewer) *Scorer {
	t.Helper()

	cache, _, err := runcache.Open(context.Background(), store, runID, "v3", nil, runcache.Options{})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	s, err := NewScorer(domain.Run{ID: runID, Mode: "daily"}, ScorerDeps{Cache: cache, Reviewers: reviewers, Workers: 4})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}
	return s
}

func pubN(i int) domain.Publication {
	return domain.Publication{
		ID:          fmt.Sprintf("pub-%02d", i),
		Title:       fmt.Sprintf("Paper %02d", i),
		Abstract:    fmt.Sprintf("Abstract %02d", i),
		PublishedAt: time.Date(2025, 11, 8, 0, 0, i, 0, time.UTC),
	}
}

func scoresFor(n, offset int) map[string]int {
	out := map[string]int{}
	for i := 1; i <= n; i++ {
		out[pubN(i).Title] = 40 + i*5 + offset
	}
	return out
}

func TestScoreTwiceCallsReviewerOnce(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", scoresFor(1, 0))
	s := newTestScorer(t, openStore(t), "run-a", claude)
	ctx := context.Background()

	first, err := s.Score(ctx, pubN(1))
	if err != nil {
		t.Fatalf("first score: %v", err)
	}
	second, err := s.Score(ctx, pubN(1))
	if err != nil {
		t.Fatalf("second score: %v", err)
	}
	if claude.calls.Load() != 1 {
		t.Fatalf("expected 1 reviewer call, got %d", claude.calls.Load())
	}
	if first.Evaluation.FinalScore != second.Evaluation.FinalScore {
		t.Fatalf("cached result differs: %d vs %d", first.Evaluation.FinalScore, second.Evaluation.FinalScore)
	}
	stats := s.Stats()
	if stats.CacheHits != 1 || stats.CacheMisses != 1 || stats.Evaluated != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestConcurrentConsumersShareOneEvaluation(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", scoresFor(1, 0))
	claude.delay = 20 * time.Millisecond
	s := newTestScorer(t, openStore(t), "run-a", claude)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Score(context.Background(), pubN(1)); err != nil {
				t.Errorf("score: %v", err)
			}
		}()
	}
	wg.Wait()

	if claude.calls.Load() != 1 {
		t.Fatalf("expected 1 reviewer call across consumers, got %d", claude.calls.Load())
	}
	stats := s.Stats()
	if stats.CacheMisses != 1 || stats.CacheHits != 15 {
		t.Fatalf("expected 1 miss and 15 hits, got %+v", stats)
	}
}

func TestRunIsolation(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	claude := newFakeReviewer("claude", scoresFor(1, 0))
	a := newTestScorer(t, store, "run-a", claude)
	b := newTestScorer(t, store, "run-b", claude)

	if _, err := a.Score(context.Background(), pubN(1)); err != nil {
		t.Fatalf("score in A: %v", err)
	}
	if _, err := b.Score(context.Background(), pubN(1)); err != nil {
		t.Fatalf("score in B: %v", err)
	}
	if claude.calls.Load() != 2 {
		t.Fatalf("runs must not share results, got %d calls", claude.calls.Load())
	}
	if b.Stats().CacheHits != 0 {
		t.Fatal("run B must not hit run A's cache")
	}
}

func TestAllReviewersFailingProducesNoScore(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", nil)
	gemini := newFakeReviewer("gemini", nil)
	s := newTestScorer(t, openStore(t), "run-a", claude, gemini)

	events, err := s.ScoreAll(context.Background(), []domain.Publication{pubN(1), pubN(2)})
	if err != nil {
		t.Fatalf("ScoreAll: %v", err)
	}
	for _, ev := range events {
		if ev.Status != domain.StatusUnscored || ev.Evaluation != nil {
			t.Fatalf("expected unscored event without evaluation, got %+v", ev)
		}
	}
	if got := ranking.SelectTop(ranking.FromEvents(events), 5); len(got) != 0 {
		t.Fatalf("unscored publications must not be ranked, got %v", got)
	}
	stats := s.Stats()
	if stats.Unscored != 2 || stats.ReviewerFailures["claude"] != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// A replay in the same run does not call the reviewers again.
	if _, err := s.ScoreAll(context.Background(), []domain.Publication{pubN(1)}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if claude.calls.Load() != 2 {
		t.Fatalf("failed publications were retried: %d calls", claude.calls.Load())
	}
}

func TestCrashResumeEquivalence(t *testing.T) {
	t.Parallel()

	const n = 10
	pubs := make([]domain.Publication, 0, n)
	for i := 1; i <= n; i++ {
		pubs = append(pubs, pubN(i))
	}

	// Reference: one clean pass in its own run.
	refStore := openStore(t)
	ref := newTestScorer(t, refStore, "run-ref",
		newFakeReviewer("claude", scoresFor(n, 0)), newFakeReviewer("gemini", scoresFor(n, 2)))
	want, err := ref.ScoreAll(context.Background(), pubs)
	if err != nil {
		t.Fatalf("reference pass: %v", err)
	}

	store := openStore(t)
	claude := newFakeReviewer("claude", scoresFor(n, 0))
	gemini := newFakeReviewer("gemini", scoresFor(n, 2))

	// First pass crashes while reviewing the sixth publication.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	claude.onCall = func(call int32) {
		if call == 6 {
			cancel()
		}
	}
	first := newTestScorer(t, store, "run-x", claude, gemini)
	first.workers = 1
	if _, err := first.ScoreAll(ctx, pubs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the first pass to be canceled, got %v", err)
	}
	claude.onCall = nil

	// Resume the identical run from the store.
	resumed := newTestScorer(t, store, "run-x", claude, gemini)
	got, err := resumed.ScoreAll(context.Background(), pubs)
	if err != nil {
		t.Fatalf("resumed pass: %v", err)
	}

	for i := 1; i <= 5; i++ {
		id := pubN(i).ID
		if claude.callsFor(id) != 1 || gemini.callsFor(id) != 1 {
			t.Fatalf("%s reviewed again after resume (claude=%d gemini=%d)", id, claude.callsFor(id), gemini.callsFor(id))
		}
	}
	if resumed.Stats().CacheHits != 5 {
		t.Fatalf("expected 5 cache hits on resume, got %d", resumed.Stats().CacheHits)
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		w, g := want[i].Evaluation, got[i].Evaluation
		if w == nil || g == nil {
			t.Fatalf("%s: missing evaluation", want[i].PublicationID)
		}
		if w.FinalScore != g.FinalScore || w.Agreement != g.Agreement || w.FinalRating != g.FinalRating {
			t.Fatalf("%s: resumed evaluation %+v differs from %+v", want[i].PublicationID, g, w)
		}
	}
}

func TestFingerprintReuse(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", scoresFor(1, 0))
	s := newTestScorer(t, openStore(t), "run-a", claude)

	original := pubN(1)
	mirror := original
	mirror.ID = "mirror-of-01"
	mirror.Source = "medrxiv"

	if _, err := s.Score(context.Background(), original); err != nil {
		t.Fatalf("score original: %v", err)
	}
	ev, err := s.Score(context.Background(), mirror)
	if err != nil {
		t.Fatalf("score mirror: %v", err)
	}
	if claude.calls.Load() != 1 {
		t.Fatalf("identical content was reviewed twice")
	}
	if ev.ReusedFrom != original.ID || !ev.Scored() || ev.PublicationID != mirror.ID {
		t.Fatalf("unexpected reuse event %+v", ev)
	}
	if s.Stats().FingerprintReuses != 1 {
		t.Fatalf("expected one fingerprint reuse, got %d", s.Stats().FingerprintReuses)
	}
}

func TestFingerprintReuseOfUnscoredContent(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", nil)
	gemini := newFakeReviewer("gemini", nil)
	s := newTestScorer(t, openStore(t), "run-a", claude, gemini)

	original := pubN(1)
	mirror := original
	mirror.ID = "mirror-of-01"

	if _, err := s.Score(context.Background(), original); err != nil {
		t.Fatalf("score original: %v", err)
	}
	ev, err := s.Score(context.Background(), mirror)
	if err != nil {
		t.Fatalf("score mirror: %v", err)
	}
	if claude.calls.Load() != 1 || gemini.calls.Load() != 1 {
		t.Fatalf("identical failed content was reviewed again: claude=%d gemini=%d", claude.calls.Load(), gemini.calls.Load())
	}
	if ev.ReusedFrom != original.ID || ev.Status != domain.StatusUnscored || ev.Evaluation != nil {
		t.Fatalf("unexpected reuse event %+v", ev)
	}
}

func TestFingerprintRetriesUnscoredWhenConfigured(t *testing.T) {
	t.Parallel()

	cache, _, err := runcache.Open(context.Background(), openStore(t), "run-a", "v3", nil, runcache.Options{SkipUnscored: true})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	claude := newFakeReviewer("claude", nil)
	s, err := NewScorer(domain.Run{ID: "run-a", Mode: "daily"}, ScorerDeps{Cache: cache, Reviewers: []ports.Reviewer{claude}})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	mirror := pubN(1)
	mirror.ID = "mirror-of-01"
	for _, pub := range []domain.Publication{pubN(1), mirror} {
		if _, err := s.Score(context.Background(), pub); err != nil {
			t.Fatalf("score %s: %v", pub.ID, err)
		}
	}
	if claude.calls.Load() != 2 {
		t.Fatalf("expected a fresh review for the mirror, got %d calls", claude.calls.Load())
	}
}

// readFailingStore persists normally but cannot answer point lookups.
type readFailingStore struct {
	ports.ScoreStore
}

func (readFailingStore) Event(context.Context, string, string, string) (domain.ScoringEvent, bool, error) {
	return domain.ScoringEvent{}, false, errors.New("connection reset")
}

func TestStoreReadFailureIsTreatedAsMiss(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	claude := newFakeReviewer("claude", scoresFor(3, 0))
	s := newTestScorer(t, readFailingStore{store}, "run-a", claude)

	events, err := s.ScoreAll(context.Background(), []domain.Publication{pubN(1), pubN(2), pubN(3)})
	if err != nil {
		t.Fatalf("ScoreAll: %v", err)
	}
	if len(events) != 3 || claude.calls.Load() != 3 {
		t.Fatalf("expected 3 events and 3 reviews, got %d events and %d calls", len(events), claude.calls.Load())
	}
	if s.Stats().CacheMisses != 3 {
		t.Fatalf("expected 3 misses, got %+v", s.Stats())
	}
	if _, ok, err := store.Event(context.Background(), "run-a", pubN(2).ID, "v3"); err != nil || !ok {
		t.Fatalf("event not recorded: ok=%v err=%v", ok, err)
	}
}

func TestScorerAttachesGateDecision(t *testing.T) {
	t.Parallel()

	cache, _, err := runcache.Open(context.Background(), openStore(t), "run-a", "v3", nil, runcache.Options{})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	decision := &domain.GateDecision{Bucket: domain.GateMaybe, Reason: "title_kw:1"}
	s, err := NewScorer(domain.Run{ID: "run-a", Mode: "daily"}, ScorerDeps{
		Cache:     cache,
		Reviewers: []ports.Reviewer{newFakeReviewer("claude", scoresFor(1, 0))},
		Gate:      func(domain.Publication) *domain.GateDecision { return decision },
	})
	if err != nil {
		t.Fatalf("new scorer: %v", err)
	}

	ev, err := s.Score(context.Background(), pubN(1))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if ev.Gate == nil || ev.Gate.Bucket != domain.GateMaybe || ev.Gate.Reason != "title_kw:1" {
		t.Fatalf("gate decision not recorded: %+v", ev.Gate)
	}
}

func TestEmptyInputIsSkipped(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", scoresFor(1, 0))
	s := newTestScorer(t, openStore(t), "run-a", claude)

	_, err := s.Score(context.Background(), domain.Publication{ID: "blank", Title: "  "})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	events, err := s.ScoreAll(context.Background(), []domain.Publication{{ID: "blank"}, pubN(1)})
	if err != nil {
		t.Fatalf("ScoreAll: %v", err)
	}
	if len(events) != 1 || claude.calls.Load() != 1 {
		t.Fatalf("blank publication reached reviewers or output: %d events, %d calls", len(events), claude.calls.Load())
	}
	if s.Stats().Skipped != 2 {
		t.Fatalf("expected 2 skips, got %d", s.Stats().Skipped)
	}
}

func TestPersistFailureKeepsResult(t *testing.T) {
	t.Parallel()

	claude := newFakeReviewer("claude", scoresFor(1, 0))
	s := newTestScorer(t, brokenStore{}, "run-a", claude)

	ev, err := s.Score(context.Background(), pubN(1))
	if !errors.Is(err, runcache.ErrNotPersisted) {
		t.Fatalf("expected ErrNotPersisted, got %v", err)
	}
	if !ev.Scored() {
		t.Fatal("result must still be returned when persistence fails")
	}
	if _, err := s.Score(context.Background(), pubN(1)); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if claude.calls.Load() != 1 {
		t.Fatalf("reviewer re-invoked after persistence failure: %d", claude.calls.Load())
	}
	if s.Stats().PersistFailures != 1 {
		t.Fatalf("expected 1 persist failure, got %d", s.Stats().PersistFailures)
	}
}

func TestNewScorerRejectsForeignCache(t *testing.T) {
	t.Parallel()

	cache := runcache.New(nil, "run-a", "v3", nil, runcache.Options{})
	if _, err := NewScorer(domain.Run{ID: "run-b"}, ScorerDeps{Cache: cache}); err == nil {
		t.Fatal("expected error for a cache of another run")
	}
}
