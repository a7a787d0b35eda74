package ranking

import (
	"sort"
	"time"

	"PaperTriage/internal/domain"
)

// Candidate is a scored publication eligible for selection.
type Candidate struct {
	PublicationID string
	Title         string
	URL           string
	Source        string
	PublishedAt   time.Time
	Evaluation    domain.EvaluationResult
	Reviews       []domain.ReviewResult
}

// FromEvents keeps only scored events; unscored ones never rank.
func FromEvents(events []domain.ScoringEvent) []Candidate {
	out := make([]Candidate, 0, len(events))
	for _, ev := range events {
		if !ev.Scored() {
			continue
		}
		out = append(out, Candidate{
			PublicationID: ev.PublicationID,
			Title:         ev.Title,
			URL:           ev.URL,
			Source:        ev.Source,
			PublishedAt:   ev.PublishedAt,
			Evaluation:    *ev.Evaluation,
			Reviews:       ev.Reviews,
		})
	}
	return out
}

// SelectTop returns at most k candidates ordered by final score, newest
// publication first on ties, then publication ID. The input is not modified.
func SelectTop(candidates []Candidate, k int) []Candidate {
	if k <= 0 || len(candidates) == 0 {
		return []Candidate{}
	}

	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Evaluation.FinalScore != b.Evaluation.FinalScore {
			return a.Evaluation.FinalScore > b.Evaluation.FinalScore
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.PublicationID < b.PublicationID
	})

	if len(sorted) > k {
		sorted = sorted[:k]
	}
	return sorted
}
