package domain

import "time"

// Publication is a core entity describing metadata fetched from providers.
// The scoring core treats it as read-only.
type Publication struct {
	ID          string
	Title       string
	Abstract    string
	URL         string
	Source      string
	PublishedAt time.Time
}

// Run identifies one pipeline invocation. Runs never share cache entries,
// and the mode tag separates pipelines that must not see each other's scores.
type Run struct {
	ID        string
	Mode      string
	StartedAt time.Time
}
