package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

// Backend is a transport that turns a prompt into raw model text.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Runner adapts a Backend into a ports.Reviewer with the shared retry policy
// and strict schema parsing.
type Runner struct {
	backend Backend
	version string
	policy  Policy
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.Reviewer = (*Runner)(nil)

// NewRunner builds a reviewer for one prompt version.
func NewRunner(backend Backend, version string, policy Policy, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		backend: backend,
		version: version,
		policy:  policy,
		logger:  logger.With("component", "reviewer", "reviewer", backend.Name()),
		now:     time.Now,
	}
}

// Name returns the backend name.
func (r *Runner) Name() string { return r.backend.Name() }

// Review calls the backend until it yields a schema-valid judgment or the
// policy gives up. A failed review carries no judgment.
func (r *Runner) Review(ctx context.Context, pub domain.Publication) domain.ReviewResult {
	start := r.now()
	result := domain.ReviewResult{
		Reviewer:      r.backend.Name(),
		Model:         r.backend.Model(),
		PromptVersion: r.version,
	}

	prompt, err := BuildPrompt(r.version, pub)
	if err != nil {
		return r.fail(result, start, err)
	}

	var judgment domain.Judgment
	attempts, err := r.policy.Do(ctx, func(ctx context.Context) error {
		raw, err := r.backend.Complete(ctx, prompt)
		if err != nil {
			return err
		}
		j, err := ParseJudgment(r.version, raw)
		if err != nil {
			r.logger.Debug("reviewer response rejected", "publication_id", pub.ID, "error", err)
			return err
		}
		judgment = j
		return nil
	})
	result.Attempts = attempts
	if err != nil {
		return r.fail(result, start, err)
	}

	result.Success = true
	result.Judgment = &judgment
	result.LatencyMS = r.now().Sub(start).Milliseconds()
	result.ReviewedAt = r.now().UTC()
	return result
}

func (r *Runner) fail(result domain.ReviewResult, start time.Time, err error) domain.ReviewResult {
	result.Success = false
	result.Judgment = nil
	result.FailureKind = Classify(err)
	result.Error = fmt.Sprintf("%s: %v", result.FailureKind, err)
	result.LatencyMS = r.now().Sub(start).Milliseconds()
	result.ReviewedAt = r.now().UTC()
	r.logger.Warn("review failed",
		"kind", result.FailureKind,
		"attempts", result.Attempts,
		"error", err,
	)
	return result
}
