package usecase

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/infrastructure/storage"
	"PaperTriage/internal/ports"
)

// fakeReviewer scores by title and counts calls per publication.
type fakeReviewer struct {
	name   string
	scores map[string]int // title -> score; missing titles fail
	delay  time.Duration
	onCall func(n int32)

	calls  atomic.Int32
	mu     sync.Mutex
	perPub map[string]int
}

func newFakeReviewer(name string, scores map[string]int) *fakeReviewer {
	return &fakeReviewer{name: name, scores: scores, perPub: map[string]int{}}
}

func (f *fakeReviewer) Name() string { return f.name }

func (f *fakeReviewer) Review(ctx context.Context, pub domain.Publication) domain.ReviewResult {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.perPub[pub.ID]++
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	res := domain.ReviewResult{Reviewer: f.name, Model: "fake", PromptVersion: "v3", Attempts: 1, ReviewedAt: time.Now().UTC()}
	score, ok := f.scores[pub.Title]
	if !ok {
		res.FailureKind = domain.FailureTransport
		res.Error = "transport: connection refused"
		return res
	}
	res.Success = true
	res.Judgment = &domain.Judgment{
		Score:      score,
		Rationale:  f.name + " says " + pub.Title,
		Signals:    domain.Signals{CancerType: domain.CancerTypeNone},
		Confidence: domain.ConfidenceMedium,
	}
	return res
}

func (f *fakeReviewer) callsFor(pubID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perPub[pubID]
}

func openStore(t *testing.T) *storage.SQLStore {
	t.Helper()

	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "scores.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// brokenStore loads fine but refuses every write.
type brokenStore struct{}

var _ ports.ScoreStore = brokenStore{}

func (brokenStore) Record(context.Context, domain.ScoringEvent) (ports.RecordResult, error) {
	return ports.RecordResult{}, errors.New("disk full")
}

func (brokenStore) Events(context.Context, string, string) ([]domain.ScoringEvent, error) {
	return nil, nil
}

func (brokenStore) Event(context.Context, string, string, string) (domain.ScoringEvent, bool, error) {
	return domain.ScoringEvent{}, false, nil
}

type staticSource struct {
	pubs []domain.Publication
}

func (s staticSource) FetchDaily(context.Context, time.Time) ([]domain.Publication, error) {
	return s.pubs, nil
}

type captureExporter struct {
	events   []domain.ScoringEvent
	manifest domain.Manifest
}

func (c *captureExporter) ExportEvents(_ context.Context, run domain.Run, events []domain.ScoringEvent) (string, error) {
	c.events = events
	return run.ID + ".jsonl", nil
}

func (c *captureExporter) ExportManifest(_ context.Context, m domain.Manifest) (string, error) {
	c.manifest = m
	return m.RunID + ".manifest.json", nil
}

type captureNotifier struct {
	digests []string
}

func (c *captureNotifier) PublishDigest(_ context.Context, digest string) error {
	c.digests = append(c.digests, digest)
	return nil
}
