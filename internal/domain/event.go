package domain

import "time"

// EventStatus distinguishes scored events from recorded total failures.
type EventStatus string

const (
	StatusScored   EventStatus = "scored"
	StatusUnscored EventStatus = "unscored"
)

// ScoringEvent is the durable record of one evaluation attempt for one
// (run, publication, prompt version). Evaluation is nil unless Status is scored.
type ScoringEvent struct {
	RunID         string
	Mode          string
	PublicationID string
	Title         string
	Source        string
	URL           string
	PublishedAt   time.Time
	PromptVersion string
	Fingerprint   string
	Status        EventStatus
	Reviews       []ReviewResult
	Evaluation    *EvaluationResult
	ReusedFrom    string
	// Gate is set when the run triaged publications before review.
	Gate      *GateDecision
	CreatedAt time.Time
}

// Scored reports whether the event carries an evaluation usable for ranking.
func (e ScoringEvent) Scored() bool {
	return e.Status == StatusScored && e.Evaluation != nil
}

// Publication rebuilds the publication identity captured by the event.
func (e ScoringEvent) Publication() Publication {
	return Publication{
		ID:          e.PublicationID,
		Title:       e.Title,
		URL:         e.URL,
		Source:      e.Source,
		PublishedAt: e.PublishedAt,
	}
}
