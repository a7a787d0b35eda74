package domain

// GateBucket is the pre-review triage class of a publication.
type GateBucket string

const (
	GateHigh  GateBucket = "high"
	GateMaybe GateBucket = "maybe"
	GateLow   GateBucket = "low"
)

// GateDecision records why a publication was or was not sent to reviewers.
type GateDecision struct {
	Bucket         GateBucket `json:"gate_bucket"`
	Score          int        `json:"gate_score"`
	Reason         string     `json:"gate_reason"`
	VenueMatch     bool       `json:"gate_venue_match"`
	KeywordMatches []string   `json:"gate_keyword_matches,omitempty"`
	AuditSelected  bool       `json:"gate_audit_selected"`
}

// Admitted reports whether the publication goes on to review. Low-bucket
// publications pass only when drawn into the audit sample.
func (d GateDecision) Admitted() bool {
	return d.Bucket == GateHigh || d.Bucket == GateMaybe || d.AuditSelected
}

// GateStats summarizes one gating pass for the manifest.
type GateStats struct {
	Total           int     `json:"total"`
	High            int     `json:"high"`
	Maybe           int     `json:"maybe"`
	Low             int     `json:"low"`
	AuditedLow      int     `json:"audited_low"`
	VenuePromoted   int     `json:"venue_promoted"`
	KeywordPromoted int     `json:"keyword_promoted"`
	ToEvaluate      int     `json:"to_evaluate"`
	AuditRate       float64 `json:"audit_rate"`
	VenueListHash   string  `json:"venue_whitelist_hash"`
	KeywordListHash string  `json:"keywords_hash"`
}
