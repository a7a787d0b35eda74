package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"PaperTriage/internal/domain"
)

// Timestamps are stored as fixed-width UTC text so they sort lexically on every engine.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type eventRow struct {
	RunID          string
	Mode           string
	PublicationID  string
	PromptVersion  string
	Title          sql.NullString
	Source         sql.NullString
	URL            sql.NullString
	PublishedAt    sql.NullString
	Fingerprint    string
	Status         string
	FinalScore     sql.NullInt64
	AgreementLevel sql.NullString
	ReviewsJSON    string
	EvaluationJSON sql.NullString
	ReusedFrom     sql.NullString
	GateJSON       sql.NullString
	CreatedAt      string
	UpdatedAt      string
}

func encodeEvent(e domain.ScoringEvent, now time.Time) (eventRow, error) {
	reviews := e.Reviews
	if reviews == nil {
		reviews = []domain.ReviewResult{}
	}
	reviewsJSON, err := json.Marshal(reviews)
	if err != nil {
		return eventRow{}, fmt.Errorf("marshal reviews: %w", err)
	}

	row := eventRow{
		RunID:         e.RunID,
		Mode:          e.Mode,
		PublicationID: e.PublicationID,
		PromptVersion: e.PromptVersion,
		Title:         nullString(e.Title),
		Source:        nullString(e.Source),
		URL:           nullString(e.URL),
		Fingerprint:   e.Fingerprint,
		Status:        string(e.Status),
		ReviewsJSON:   string(reviewsJSON),
		ReusedFrom:    nullString(e.ReusedFrom),
		CreatedAt:     formatTime(e.CreatedAt),
		UpdatedAt:     formatTime(now),
	}
	if !e.PublishedAt.IsZero() {
		row.PublishedAt = nullString(formatTime(e.PublishedAt))
	}

	if e.Evaluation != nil {
		evalJSON, err := json.Marshal(e.Evaluation)
		if err != nil {
			return eventRow{}, fmt.Errorf("marshal evaluation: %w", err)
		}
		row.EvaluationJSON = nullString(string(evalJSON))
		row.FinalScore = sql.NullInt64{Int64: int64(e.Evaluation.FinalScore), Valid: true}
		row.AgreementLevel = nullString(string(e.Evaluation.Agreement))
	} else {
		row.AgreementLevel = nullString(string(domain.AgreementUndecided))
	}

	if e.Gate != nil {
		gateJSON, err := json.Marshal(e.Gate)
		if err != nil {
			return eventRow{}, fmt.Errorf("marshal gate: %w", err)
		}
		row.GateJSON = nullString(string(gateJSON))
	}

	return row, nil
}

func (r eventRow) values() []any {
	return []any{
		r.RunID,
		r.Mode,
		r.PublicationID,
		r.PromptVersion,
		r.Title,
		r.Source,
		r.URL,
		r.PublishedAt,
		r.Fingerprint,
		r.Status,
		r.FinalScore,
		r.AgreementLevel,
		r.ReviewsJSON,
		r.EvaluationJSON,
		r.ReusedFrom,
		r.GateJSON,
		r.CreatedAt,
		r.UpdatedAt,
	}
}

func (r *eventRow) targets() []any {
	return []any{
		&r.RunID,
		&r.Mode,
		&r.PublicationID,
		&r.PromptVersion,
		&r.Title,
		&r.Source,
		&r.URL,
		&r.PublishedAt,
		&r.Fingerprint,
		&r.Status,
		&r.FinalScore,
		&r.AgreementLevel,
		&r.ReviewsJSON,
		&r.EvaluationJSON,
		&r.ReusedFrom,
		&r.GateJSON,
		&r.CreatedAt,
		&r.UpdatedAt,
	}
}

func (r eventRow) decode() (domain.ScoringEvent, error) {
	event := domain.ScoringEvent{
		RunID:         r.RunID,
		Mode:          r.Mode,
		PublicationID: r.PublicationID,
		PromptVersion: r.PromptVersion,
		Title:         r.Title.String,
		Source:        r.Source.String,
		URL:           r.URL.String,
		Fingerprint:   r.Fingerprint,
		Status:        domain.EventStatus(r.Status),
		ReusedFrom:    r.ReusedFrom.String,
	}

	var err error
	if event.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return domain.ScoringEvent{}, fmt.Errorf("event %s created_at: %w", r.PublicationID, err)
	}
	if r.PublishedAt.Valid {
		if event.PublishedAt, err = parseTime(r.PublishedAt.String); err != nil {
			return domain.ScoringEvent{}, fmt.Errorf("event %s published_at: %w", r.PublicationID, err)
		}
	}

	if err := json.Unmarshal([]byte(r.ReviewsJSON), &event.Reviews); err != nil {
		return domain.ScoringEvent{}, fmt.Errorf("event %s reviews: %w", r.PublicationID, err)
	}
	if r.EvaluationJSON.Valid && r.EvaluationJSON.String != "" {
		var eval domain.EvaluationResult
		if err := json.Unmarshal([]byte(r.EvaluationJSON.String), &eval); err != nil {
			return domain.ScoringEvent{}, fmt.Errorf("event %s evaluation: %w", r.PublicationID, err)
		}
		event.Evaluation = &eval
	}
	if r.GateJSON.Valid && r.GateJSON.String != "" {
		var gate domain.GateDecision
		if err := json.Unmarshal([]byte(r.GateJSON.String), &gate); err != nil {
			return domain.ScoringEvent{}, fmt.Errorf("event %s gate: %w", r.PublicationID, err)
		}
		event.Gate = &gate
	}

	return event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
