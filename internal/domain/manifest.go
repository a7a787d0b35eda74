package domain

import "time"

// RunCounts are the per-run counters reported in the manifest.
type RunCounts struct {
	Candidates        int            `json:"candidates"`
	Evaluated         int            `json:"evaluated"`
	Unscored          int            `json:"unscored"`
	Skipped           int            `json:"skipped"`
	CacheHits         int            `json:"cache_hits"`
	CacheMisses       int            `json:"cache_misses"`
	FingerprintReuses int            `json:"fingerprint_reuses"`
	PersistFailures   int            `json:"persist_failures"`
	ReviewerCalls     map[string]int `json:"reviewer_calls"`
	ReviewerFailures  map[string]int `json:"reviewer_failures"`
}

// MustRead is one selected publication in the manifest and digest.
type MustRead struct {
	PublicationID   string         `json:"publication_id"`
	Title           string         `json:"title"`
	URL             string         `json:"url,omitempty"`
	Source          string         `json:"source,omitempty"`
	PublishedAt     time.Time      `json:"published_at"`
	FinalScore      int            `json:"final_score"`
	FinalRating     int            `json:"final_rating"`
	Agreement       AgreementLevel `json:"agreement_level"`
	Summary         string         `json:"summary,omitempty"`
	ReviewersUsed   []string       `json:"reviewers_used"`
	ReviewersFailed []string       `json:"reviewers_failed,omitempty"`
}

// Manifest summarizes a finished run for operators and downstream tooling.
type Manifest struct {
	RunID         string     `json:"run_id"`
	Mode          string     `json:"mode"`
	PromptVersion string     `json:"prompt_version"`
	GeneratedAt   time.Time  `json:"generated_at"`
	EventsFile    string     `json:"events_file,omitempty"`
	Counts        RunCounts  `json:"counts"`
	Gating        *GateStats `json:"gating,omitempty"`
	MustReads     []MustRead `json:"must_reads"`
}
