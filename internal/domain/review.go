package domain

import "time"

// Confidence is a reviewer's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence levels; unknown values rank below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether c is one of the declared levels.
func (c Confidence) Valid() bool {
	return c.Rank() > 0
}

// CancerTypeNone marks publications without a specific cancer focus.
const CancerTypeNone = "none"

// Signals is the categorical attribute set a reviewer detects in a publication.
type Signals struct {
	CancerType           string `json:"cancer_type"`
	EarlyDetectionFocus  bool   `json:"early_detection_focus"`
	ScreeningStudy       bool   `json:"screening_study"`
	RiskStratification   bool   `json:"risk_stratification"`
	BiomarkerDiscovery   bool   `json:"biomarker_discovery"`
	CtDNACfDNA           bool   `json:"ctdna_cfdna"`
	ImagingBased         bool   `json:"imaging_based"`
	ProspectiveCohort    bool   `json:"prospective_cohort"`
	BreathVOC            bool   `json:"breath_voc"`
	UrineBased           bool   `json:"urine_based"`
	SensorBased          bool   `json:"sensor_based"`
	CanineDetection      bool   `json:"canine_detection"`
	HumanSubjects        bool   `json:"human_subjects"`
	DetectionMethodology bool   `json:"detection_methodology"`
	TreatmentOnly        bool   `json:"treatment_only"`
	MarketOnly           bool   `json:"market_only"`
}

// Flags lists boolean signals by their wire name in a fixed order.
func (s Signals) Flags() []Flag {
	return []Flag{
		{"early_detection_focus", s.EarlyDetectionFocus},
		{"screening_study", s.ScreeningStudy},
		{"risk_stratification", s.RiskStratification},
		{"biomarker_discovery", s.BiomarkerDiscovery},
		{"ctdna_cfdna", s.CtDNACfDNA},
		{"imaging_based", s.ImagingBased},
		{"prospective_cohort", s.ProspectiveCohort},
		{"breath_voc", s.BreathVOC},
		{"urine_based", s.UrineBased},
		{"sensor_based", s.SensorBased},
		{"canine_detection", s.CanineDetection},
		{"human_subjects", s.HumanSubjects},
		{"detection_methodology", s.DetectionMethodology},
		{"treatment_only", s.TreatmentOnly},
		{"market_only", s.MarketOnly},
	}
}

// Flag is a single named boolean signal.
type Flag struct {
	Name  string
	Value bool
}

// HasSpecificCancerType reports whether the reviewer committed to a cancer type.
func (s Signals) HasSpecificCancerType() bool {
	return s.CancerType != "" && s.CancerType != CancerTypeNone && s.CancerType != "other"
}

// Merge ORs boolean signals. The receiver's cancer type wins unless it is unspecific.
func (s Signals) Merge(other Signals) Signals {
	out := Signals{
		CancerType:           s.CancerType,
		EarlyDetectionFocus:  s.EarlyDetectionFocus || other.EarlyDetectionFocus,
		ScreeningStudy:       s.ScreeningStudy || other.ScreeningStudy,
		RiskStratification:   s.RiskStratification || other.RiskStratification,
		BiomarkerDiscovery:   s.BiomarkerDiscovery || other.BiomarkerDiscovery,
		CtDNACfDNA:           s.CtDNACfDNA || other.CtDNACfDNA,
		ImagingBased:         s.ImagingBased || other.ImagingBased,
		ProspectiveCohort:    s.ProspectiveCohort || other.ProspectiveCohort,
		BreathVOC:            s.BreathVOC || other.BreathVOC,
		UrineBased:           s.UrineBased || other.UrineBased,
		SensorBased:          s.SensorBased || other.SensorBased,
		CanineDetection:      s.CanineDetection || other.CanineDetection,
		HumanSubjects:        s.HumanSubjects || other.HumanSubjects,
		DetectionMethodology: s.DetectionMethodology || other.DetectionMethodology,
		TreatmentOnly:        s.TreatmentOnly || other.TreatmentOnly,
		MarketOnly:           s.MarketOnly || other.MarketOnly,
	}
	if !s.HasSpecificCancerType() && other.HasSpecificCancerType() {
		out.CancerType = other.CancerType
	}
	if out.CancerType == "" {
		out.CancerType = CancerTypeNone
	}
	return out
}

// Judgment is the structured opinion of one reviewer.
type Judgment struct {
	Score      int        `json:"score"`
	Rating     *int       `json:"rating,omitempty"`
	Rationale  string     `json:"rationale"`
	Summary    string     `json:"summary"`
	Concerns   []string   `json:"concerns,omitempty"`
	Signals    Signals    `json:"signals"`
	Confidence Confidence `json:"confidence"`
}

// FailureKind classifies why a reviewer produced no judgment.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureCanceled      FailureKind = "canceled"
	FailureRateLimited   FailureKind = "rate_limited"
	FailureTransport     FailureKind = "transport"
	FailureMalformed     FailureKind = "malformed"
	FailureMisconfigured FailureKind = "misconfigured"
	FailureInvalidInput  FailureKind = "invalid_input"
)

// ReviewResult is produced once per (run, publication, reviewer) and never mutated.
// Judgment is nil whenever Success is false.
type ReviewResult struct {
	Reviewer      string      `json:"reviewer"`
	Model         string      `json:"model"`
	PromptVersion string      `json:"prompt_version"`
	Success       bool        `json:"success"`
	Judgment      *Judgment   `json:"judgment,omitempty"`
	FailureKind   FailureKind `json:"failure_kind,omitempty"`
	Error         string      `json:"error,omitempty"`
	Attempts      int         `json:"attempts"`
	LatencyMS     int64       `json:"latency_ms"`
	ReviewedAt    time.Time   `json:"reviewed_at"`
}

// Succeeded reports whether r carries a usable judgment.
func (r ReviewResult) Succeeded() bool {
	return r.Success && r.Judgment != nil
}
