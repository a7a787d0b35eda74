// Package evaluator merges independent reviewer judgments into one
// authoritative evaluation using a fixed agreement model.
package evaluator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"PaperTriage/internal/domain"
)

// Version identifies the synthesis rules recorded on every result.
const Version = "synth-v1"

// Thresholds tune the agreement model. Spreads are inclusive upper bounds on
// max-min reviewer score.
type Thresholds struct {
	HighSpread     int
	ModerateSpread int
	EvidenceMargin int
}

// DefaultThresholds returns the production bands.
func DefaultThresholds() Thresholds {
	return Thresholds{HighSpread: 10, ModerateSpread: 20, EvidenceMargin: 2}
}

// Evaluator is stateless and safe for concurrent use.
type Evaluator struct {
	th Thresholds
}

// New builds an evaluator. Zero thresholds fall back to the defaults.
func New(th Thresholds) *Evaluator {
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	return &Evaluator{th: th}
}

type opinion struct {
	reviewer string
	j        domain.Judgment
	evidence int
}

// Evaluate synthesizes the successful reviews. It reports ok=false when no
// reviewer produced a judgment; no result is fabricated in that case.
func (e *Evaluator) Evaluate(pub domain.Publication, reviews []domain.ReviewResult) (domain.EvaluationResult, bool) {
	var (
		ops         []opinion
		failed      []string
		corrections []string
	)
	for _, r := range reviews {
		if !r.Succeeded() {
			failed = append(failed, r.Reviewer)
			continue
		}
		j := *r.Judgment
		if note, ok := correctRating(r.Reviewer, &j); ok {
			corrections = append(corrections, note)
		}
		ops = append(ops, opinion{reviewer: r.Reviewer, j: j, evidence: Evidence(j)})
	}
	if len(ops) == 0 {
		return domain.EvaluationResult{}, false
	}

	// Order independence: every rule below sees reviewers sorted by name.
	sort.SliceStable(ops, func(i, k int) bool { return ops[i].reviewer < ops[k].reviewer })
	sort.Strings(failed)

	var res domain.EvaluationResult
	if len(ops) == 1 {
		res = single(ops[0], failed)
	} else {
		res = e.multi(ops)
	}

	res.FinalRating = domain.RatingForScore(res.FinalScore)
	res.Corrections = corrections
	res.ReviewersFailed = failed
	res.EvaluatorVersion = Version
	for _, op := range ops {
		res.ReviewersUsed = append(res.ReviewersUsed, op.reviewer)
	}
	return res, true
}

func single(op opinion, failed []string) domain.EvaluationResult {
	conf := op.j.Confidence
	if conf.Rank() > domain.ConfidenceMedium.Rank() || !conf.Valid() {
		conf = domain.ConfidenceMedium
	}
	note := "single reviewer, no corroboration"
	if len(failed) > 0 {
		note = fmt.Sprintf("single reviewer (%s); %s failed, no corroboration", op.reviewer, strings.Join(failed, ", "))
	}
	return domain.EvaluationResult{
		FinalScore:         clamp(op.j.Score),
		FinalRationale:     op.j.Rationale,
		FinalSummary:       op.j.Summary,
		FinalSignals:       op.j.Signals.Merge(domain.Signals{}),
		Agreement:          domain.AgreementSingleSource,
		EvaluatorRationale: note,
		Confidence:         conf,
	}
}

func (e *Evaluator) multi(ops []opinion) domain.EvaluationResult {
	lo, hi := ops[0].j.Score, ops[0].j.Score
	for _, op := range ops[1:] {
		lo = min(lo, op.j.Score)
		hi = max(hi, op.j.Score)
	}
	spread := hi - lo
	disagreements := disagreements(ops, spread)
	strongest := strongestEvidence(ops)

	switch {
	case spread <= e.th.HighSpread:
		sum := 0
		merged := domain.Signals{}
		for _, op := range ops {
			sum += op.j.Score
			merged = merged.Merge(op.j.Signals)
		}
		return domain.EvaluationResult{
			FinalScore:         clamp(roundDiv(float64(sum), float64(len(ops)))),
			FinalRationale:     joinRationales(ops),
			FinalSummary:       strongest.j.Summary,
			FinalSignals:       merged,
			Agreement:          domain.AgreementHigh,
			Disagreements:      disagreements,
			EvaluatorRationale: fmt.Sprintf("scores within %d points; mean of %d reviewers", spread, len(ops)),
			Confidence:         maxConfidence(ops),
		}

	case spread <= e.th.ModerateSpread:
		var num, den float64
		for _, op := range ops {
			w := float64(max(op.evidence, 0) + 1)
			num += w * float64(op.j.Score)
			den += w
		}
		return domain.EvaluationResult{
			FinalScore:         clamp(roundDiv(num, den)),
			FinalRationale:     joinRationales(ops),
			FinalSummary:       strongest.j.Summary,
			FinalSignals:       strongest.j.Signals.Merge(domain.Signals{}),
			Agreement:          domain.AgreementModerate,
			Disagreements:      disagreements,
			EvaluatorRationale: fmt.Sprintf("scores differ by %d points; evidence-weighted mean", spread),
			Confidence:         domain.ConfidenceMedium,
		}
	}

	winner, why := e.tieBreak(ops)
	return domain.EvaluationResult{
		FinalScore:         clamp(winner.j.Score),
		FinalRationale:     winner.j.Rationale,
		FinalSummary:       winner.j.Summary,
		FinalSignals:       winner.j.Signals.Merge(domain.Signals{}),
		Agreement:          domain.AgreementLow,
		Disagreements:      disagreements,
		EvaluatorRationale: fmt.Sprintf("scores differ by %d points; %s", spread, why),
		Confidence:         domain.ConfidenceLow,
	}
}

// tieBreak prefers a reviewer whose evidence beats every other by the
// margin, and otherwise the most conservative score.
func (e *Evaluator) tieBreak(ops []opinion) (opinion, string) {
	for i, cand := range ops {
		leads := true
		for k, other := range ops {
			if i != k && cand.evidence-other.evidence < e.th.EvidenceMargin {
				leads = false
				break
			}
		}
		if leads {
			return cand, fmt.Sprintf("kept %s (score %d): evidence %d leads by at least %d",
				cand.reviewer, cand.j.Score, cand.evidence, e.th.EvidenceMargin)
		}
	}

	low := ops[0]
	for _, op := range ops[1:] {
		if op.j.Score < low.j.Score {
			low = op
		}
	}
	return low, fmt.Sprintf("evidence ambiguous; kept conservative score %d from %s", low.j.Score, low.reviewer)
}

// Evidence scores how specific and supported a judgment is: positive
// signals, a committed cancer type and self-reported confidence, less
// negative signals.
func Evidence(j domain.Judgment) int {
	n := j.Confidence.Rank()
	if j.Signals.HasSpecificCancerType() {
		n++
	}
	for _, f := range j.Signals.Flags() {
		if !f.Value {
			continue
		}
		switch f.Name {
		case "treatment_only", "market_only":
			n--
		default:
			n++
		}
	}
	return n
}

func strongestEvidence(ops []opinion) opinion {
	best := ops[0]
	for _, op := range ops[1:] {
		if op.evidence > best.evidence {
			best = op
		}
	}
	return best
}

func disagreements(ops []opinion, spread int) []domain.Disagreement {
	var out []domain.Disagreement
	if spread > 0 {
		values := make(map[string]string, len(ops))
		for _, op := range ops {
			values[op.reviewer] = strconv.Itoa(op.j.Score)
		}
		out = append(out, domain.Disagreement{Dimension: "score", Values: values, Delta: spread})
	}

	types := make(map[string]string, len(ops))
	distinct := map[string]struct{}{}
	for _, op := range ops {
		ct := op.j.Signals.CancerType
		if ct == "" {
			ct = domain.CancerTypeNone
		}
		types[op.reviewer] = ct
		distinct[ct] = struct{}{}
	}
	if len(distinct) > 1 {
		out = append(out, domain.Disagreement{Dimension: "cancer_type", Values: types})
	}

	flags := make([][]domain.Flag, len(ops))
	for i, op := range ops {
		flags[i] = op.j.Signals.Flags()
	}
	for idx, f := range flags[0] {
		differs := false
		for i := 1; i < len(flags); i++ {
			if flags[i][idx].Value != f.Value {
				differs = true
				break
			}
		}
		if !differs {
			continue
		}
		values := make(map[string]string, len(ops))
		for i, op := range ops {
			values[op.reviewer] = strconv.FormatBool(flags[i][idx].Value)
		}
		out = append(out, domain.Disagreement{Dimension: f.Name, Values: values})
	}
	return out
}

// correctRating replaces a self-reported rating that disagrees with the
// score bucket and describes the change.
func correctRating(reviewer string, j *domain.Judgment) (string, bool) {
	want := domain.RatingForScore(clamp(j.Score))
	if j.Rating == nil || *j.Rating == want {
		return "", false
	}
	note := fmt.Sprintf("%s: rating %d inconsistent with score %d, corrected to %d", reviewer, *j.Rating, j.Score, want)
	j.Rating = &want
	return note, true
}

func joinRationales(ops []opinion) string {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		if op.j.Rationale != "" {
			parts = append(parts, op.reviewer+": "+op.j.Rationale)
		}
	}
	return strings.Join(parts, " | ")
}

func maxConfidence(ops []opinion) domain.Confidence {
	best := domain.ConfidenceLow
	for _, op := range ops {
		if op.j.Confidence.Rank() > best.Rank() {
			best = op.j.Confidence
		}
	}
	return best
}

func roundDiv(num, den float64) int {
	return int(math.Round(num / den))
}

func clamp(score int) int {
	return min(max(score, 0), 100)
}
