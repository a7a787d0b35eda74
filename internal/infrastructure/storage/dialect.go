package storage

import (
	sq "github.com/Masterminds/squirrel"
)

type dialect struct {
	name        string
	placeholder sq.PlaceholderFormat
	schema      []string
	anyOf       func(column string, values []string) sq.Sqlizer
}

// The table definition is portable between SQLite and Postgres; timestamps are text.
const createEventsTable = `CREATE TABLE IF NOT EXISTS scoring_events (
	run_id TEXT NOT NULL,
	mode TEXT NOT NULL,
	publication_id TEXT NOT NULL,
	prompt_version TEXT NOT NULL,
	title TEXT,
	source TEXT,
	url TEXT,
	published_at TEXT,
	fingerprint TEXT NOT NULL,
	status TEXT NOT NULL,
	final_score INTEGER,
	agreement_level TEXT,
	reviews_json TEXT NOT NULL,
	evaluation_json TEXT,
	reused_from TEXT,
	gate_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (run_id, publication_id, prompt_version)
)`

var commonSchema = []string{
	createEventsTable,
	`CREATE INDEX IF NOT EXISTS idx_scoring_events_run ON scoring_events (run_id, prompt_version)`,
	`CREATE INDEX IF NOT EXISTS idx_scoring_events_fingerprint ON scoring_events (fingerprint)`,
}

func inList(column string, values []string) sq.Sqlizer {
	return sq.Eq{column: values}
}
