package ranking

import (
	"testing"
	"time"

	"PaperTriage/internal/domain"
)

func candidate(id string, score int, published time.Time) Candidate {
	return Candidate{
		PublicationID: id,
		PublishedAt:   published,
		Evaluation:    domain.EvaluationResult{FinalScore: score},
	}
}

func TestSelectTopStable(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)
	input := []Candidate{
		candidate("older", 90, day.Add(-24*time.Hour)),
		candidate("low", 85, day),
		candidate("newer", 90, day),
	}

	first := SelectTop(input, 2)
	for i := 0; i < 20; i++ {
		again := SelectTop(input, 2)
		if len(again) != 2 || again[0].PublicationID != first[0].PublicationID || again[1].PublicationID != first[1].PublicationID {
			t.Fatalf("selection not deterministic: %v vs %v", first, again)
		}
	}
	if first[0].PublicationID != "newer" || first[1].PublicationID != "older" {
		t.Fatalf("expected newer then older, got %s, %s", first[0].PublicationID, first[1].PublicationID)
	}
	if input[0].PublicationID != "older" || input[2].PublicationID != "newer" {
		t.Fatal("input was mutated")
	}
}

func TestSelectTopIDBreaksFullTies(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 11, 8, 0, 0, 0, 0, time.UTC)
	got := SelectTop([]Candidate{candidate("b", 70, day), candidate("a", 70, day)}, 5)
	if len(got) != 2 || got[0].PublicationID != "a" {
		t.Fatalf("expected id order, got %v", got)
	}
}

func TestSelectTopBounds(t *testing.T) {
	t.Parallel()

	one := []Candidate{candidate("a", 10, time.Time{})}
	if got := SelectTop(one, 0); got == nil || len(got) != 0 {
		t.Fatalf("k=0 should give an empty slice, got %v", got)
	}
	if got := SelectTop(nil, 3); len(got) != 0 {
		t.Fatalf("empty input should give empty output, got %v", got)
	}
	if got := SelectTop(one, 3); len(got) != 1 {
		t.Fatalf("expected fewer than k, got %v", got)
	}
}

func TestFromEventsDropsUnscored(t *testing.T) {
	t.Parallel()

	events := []domain.ScoringEvent{
		{PublicationID: "s", Status: domain.StatusScored, Evaluation: &domain.EvaluationResult{FinalScore: 50}},
		{PublicationID: "u", Status: domain.StatusUnscored},
	}
	got := FromEvents(events)
	if len(got) != 1 || got[0].PublicationID != "s" {
		t.Fatalf("unscored event leaked into ranking: %v", got)
	}
}
