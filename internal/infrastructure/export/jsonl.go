package export

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gowebpki/jcs"

	"PaperTriage/internal/domain"
)

// eventLine is the audit record written per scoring event.
type eventLine struct {
	RunID         string                   `json:"run_id"`
	Mode          string                   `json:"mode"`
	PublicationID string                   `json:"publication_id"`
	Title         string                   `json:"title"`
	Source        string                   `json:"source,omitempty"`
	URL           string                   `json:"url,omitempty"`
	PublishedAt   time.Time                `json:"published_at"`
	PromptVersion string                   `json:"prompt_version"`
	Fingerprint   string                   `json:"fingerprint"`
	Status        domain.EventStatus       `json:"status"`
	Reviews       []domain.ReviewResult    `json:"reviews"`
	Evaluation    *domain.EvaluationResult `json:"evaluation,omitempty"`
	ReusedFrom    string                   `json:"reused_from,omitempty"`
	Gate          *domain.GateDecision     `json:"gate,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	Digest        string                   `json:"event_digest,omitempty"`
}

func toLine(e domain.ScoringEvent) eventLine {
	reviews := e.Reviews
	if reviews == nil {
		reviews = []domain.ReviewResult{}
	}
	return eventLine{
		RunID:         e.RunID,
		Mode:          e.Mode,
		PublicationID: e.PublicationID,
		Title:         e.Title,
		Source:        e.Source,
		URL:           e.URL,
		PublishedAt:   e.PublishedAt.UTC(),
		PromptVersion: e.PromptVersion,
		Fingerprint:   e.Fingerprint,
		Status:        e.Status,
		Reviews:       reviews,
		Evaluation:    e.Evaluation,
		ReusedFrom:    e.ReusedFrom,
		Gate:          e.Gate,
		CreatedAt:     e.CreatedAt.UTC(),
	}
}

// CanonicalLine returns the RFC 8785 form of one event with its content
// digest attached. The digest covers the canonical event without the digest field.
func CanonicalLine(e domain.ScoringEvent) ([]byte, error) {
	line := toLine(e)
	raw, err := json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.PublicationID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize event %s: %w", e.PublicationID, err)
	}
	sum := sha256.Sum256(canonical)
	line.Digest = hex.EncodeToString(sum[:])

	raw, err = json.Marshal(line)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.PublicationID, err)
	}
	return jcs.Transform(raw)
}

// WriteJSONL writes one canonical JSON object per line.
func WriteJSONL(w io.Writer, events []domain.ScoringEvent) error {
	bw := bufio.NewWriter(w)
	for _, e := range events {
		line, err := CanonicalLine(e)
		if err != nil {
			return err
		}
		if _, err := bw.Write(line); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush events: %w", err)
	}
	return nil
}
