package ports

import (
	"context"
	"time"

	"PaperTriage/internal/domain"
)

// PublicationSource pulls fresh publications from upstream providers.
type PublicationSource interface {
	FetchDaily(ctx context.Context, day time.Time) ([]domain.Publication, error)
}

// RecordResult reports what the store kept for a write.
// Inserted is false when an existing scored row won and Stored is that row.
type RecordResult struct {
	Stored   domain.ScoringEvent
	Inserted bool
}

// ScoreStore is the durable source of truth for scoring events, unique on
// (run, publication, prompt version).
type ScoreStore interface {
	Record(ctx context.Context, event domain.ScoringEvent) (RecordResult, error)
	Events(ctx context.Context, runID, promptVersion string) ([]domain.ScoringEvent, error)
	Event(ctx context.Context, runID, publicationID, promptVersion string) (domain.ScoringEvent, bool, error)
}

// Reviewer produces one independent judgment about a publication.
// Failures are reported inside the result, never as a fabricated score.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, pub domain.Publication) domain.ReviewResult
}

// Notifier streams selected digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Exporter writes audit artifacts for a finished run and returns their paths.
type Exporter interface {
	ExportEvents(ctx context.Context, run domain.Run, events []domain.ScoringEvent) (string, error)
	ExportManifest(ctx context.Context, manifest domain.Manifest) (string, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
