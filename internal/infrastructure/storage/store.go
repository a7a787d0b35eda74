package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

const eventsTable = "scoring_events"

var eventColumns = []string{
	"run_id",
	"mode",
	"publication_id",
	"prompt_version",
	"title",
	"source",
	"url",
	"published_at",
	"fingerprint",
	"status",
	"final_score",
	"agreement_level",
	"reviews_json",
	"evaluation_json",
	"reused_from",
	"gate_json",
	"created_at",
	"updated_at",
}

// Columns refreshed when an unscored row is replaced by a later attempt.
var upsertColumns = []string{
	"mode",
	"title",
	"source",
	"url",
	"published_at",
	"fingerprint",
	"status",
	"final_score",
	"agreement_level",
	"reviews_json",
	"evaluation_json",
	"reused_from",
	"gate_json",
	"updated_at",
}

// SQLStore persists scoring events in a single table keyed by
// (run_id, publication_id, prompt_version).
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	builder sq.StatementBuilderType
	now     func() time.Time
}

var _ ports.ScoreStore = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		builder: sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the scoring table and its indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.name, err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Record inserts the event. An existing unscored row is replaced; an existing
// scored row always wins and is returned with Inserted=false.
func (s *SQLStore) Record(ctx context.Context, event domain.ScoringEvent) (ports.RecordResult, error) {
	if event.RunID == "" || event.PublicationID == "" || event.PromptVersion == "" {
		return ports.RecordResult{}, fmt.Errorf("record event: run, publication and prompt version are required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}

	row, err := encodeEvent(event, s.now())
	if err != nil {
		return ports.RecordResult{}, err
	}

	query, args, err := s.builder.
		Insert(eventsTable).
		Columns(eventColumns...).
		Values(row.values()...).
		Suffix(upsertSuffix()).
		ToSql()
	if err != nil {
		return ports.RecordResult{}, fmt.Errorf("build upsert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return ports.RecordResult{}, fmt.Errorf("upsert event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ports.RecordResult{}, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return ports.RecordResult{Stored: event, Inserted: true}, nil
	}

	stored, ok, err := s.Event(ctx, event.RunID, event.PublicationID, event.PromptVersion)
	if err != nil {
		return ports.RecordResult{}, fmt.Errorf("load conflicting event: %w", err)
	}
	if !ok {
		return ports.RecordResult{}, fmt.Errorf("upsert event %s: no row written and none found", event.PublicationID)
	}
	return ports.RecordResult{Stored: stored, Inserted: false}, nil
}

// Events returns every event of a run for one prompt version, oldest first.
func (s *SQLStore) Events(ctx context.Context, runID, promptVersion string) ([]domain.ScoringEvent, error) {
	return s.selectEvents(ctx, sq.Eq{"run_id": runID, "prompt_version": promptVersion})
}

// EventsByID returns the events of the given publications within a run.
func (s *SQLStore) EventsByID(ctx context.Context, runID, promptVersion string, ids []string) ([]domain.ScoringEvent, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.selectEvents(ctx, sq.And{
		sq.Eq{"run_id": runID, "prompt_version": promptVersion},
		s.dialect.anyOf("publication_id", ids),
	})
}

// Event returns a single event if present.
func (s *SQLStore) Event(ctx context.Context, runID, publicationID, promptVersion string) (domain.ScoringEvent, bool, error) {
	events, err := s.selectEvents(ctx, sq.Eq{
		"run_id":         runID,
		"publication_id": publicationID,
		"prompt_version": promptVersion,
	})
	if err != nil {
		return domain.ScoringEvent{}, false, err
	}
	if len(events) == 0 {
		return domain.ScoringEvent{}, false, nil
	}
	return events[0], true, nil
}

func (s *SQLStore) selectEvents(ctx context.Context, where sq.Sqlizer) ([]domain.ScoringEvent, error) {
	query, args, err := s.builder.
		Select(eventColumns...).
		From(eventsTable).
		Where(where).
		OrderBy("created_at ASC", "publication_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	var events []domain.ScoringEvent
	for rows.Next() {
		var r eventRow
		if err := rows.Scan(r.targets()...); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event, err := r.decode()
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		events = append(events, event)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return events, nil
}

func upsertSuffix() string {
	suffix := "ON CONFLICT (run_id, publication_id, prompt_version) DO UPDATE SET "
	for i, col := range upsertColumns {
		if i > 0 {
			suffix += ", "
		}
		suffix += col + " = excluded." + col
	}
	return suffix + " WHERE " + eventsTable + ".status <> '" + string(domain.StatusScored) + "'"
}
