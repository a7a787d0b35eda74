package domain

// AgreementLevel summarizes how closely reviewer scores agree.
type AgreementLevel string

const (
	AgreementHigh         AgreementLevel = "high"
	AgreementModerate     AgreementLevel = "moderate"
	AgreementLow          AgreementLevel = "low"
	AgreementSingleSource AgreementLevel = "single_source"
	AgreementUndecided    AgreementLevel = "undecided"
)

// Rating buckets on the 0-100 score scale.
const (
	RatingNotRelevant      = 0
	RatingSomewhatRelevant = 1
	RatingHighlyRelevant   = 2
	RatingCentral          = 3
)

// RatingForScore maps a score to its bucket: 0-24, 25-49, 50-74, 75-100.
func RatingForScore(score int) int {
	switch {
	case score >= 75:
		return RatingCentral
	case score >= 50:
		return RatingHighlyRelevant
	case score >= 25:
		return RatingSomewhatRelevant
	default:
		return RatingNotRelevant
	}
}

// Disagreement records one dimension on which reviewers differed.
type Disagreement struct {
	Dimension string            `json:"dimension"`
	Values    map[string]string `json:"values"`
	Delta     int               `json:"delta,omitempty"`
}

// EvaluationResult is the authoritative synthesized judgment for one
// (run, publication). It exists only when at least one reviewer succeeded.
type EvaluationResult struct {
	FinalScore         int            `json:"final_score"`
	FinalRating        int            `json:"final_rating"`
	FinalRationale     string         `json:"final_rationale"`
	FinalSummary       string         `json:"final_summary,omitempty"`
	FinalSignals       Signals        `json:"final_signals"`
	Agreement          AgreementLevel `json:"agreement_level"`
	Disagreements      []Disagreement `json:"disagreements,omitempty"`
	EvaluatorRationale string         `json:"evaluator_rationale"`
	Confidence         Confidence     `json:"confidence"`
	Corrections        []string       `json:"corrections,omitempty"`
	ReviewersUsed      []string       `json:"reviewers_used"`
	ReviewersFailed    []string       `json:"reviewers_failed,omitempty"`
	EvaluatorVersion   string         `json:"evaluator_version"`
}
