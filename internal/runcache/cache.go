// Package runcache shadows the persistent score store for the lifetime of one run.
//
// A Cache belongs to exactly one (run, prompt version) lineage. It is created by
// the orchestrating call and injected into whatever needs lookup or record
// access; there is no process-wide instance. Writes go to the store first and to
// memory second, so memory never holds an event the store has not been asked to
// keep.
package runcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

// ErrNotPersisted marks a result that is cached in memory but missing from the
// durable store. A restart will lose it.
var ErrNotPersisted = errors.New("scoring event not persisted")

// ErrRunMismatch is returned when a caller records into another run's cache.
var ErrRunMismatch = errors.New("event does not belong to this run")

// batchLoader is implemented by stores that can fetch several publications at once.
type batchLoader interface {
	EventsByID(ctx context.Context, runID, promptVersion string, ids []string) ([]domain.ScoringEvent, error)
}

// Options tune how persisted events are adopted.
type Options struct {
	// SkipUnscored leaves persisted total failures out of loads so they are retried.
	SkipUnscored bool
}

// Cache is an in-memory index of scoring events keyed by (run, publication).
type Cache struct {
	runID         string
	promptVersion string
	store         ports.ScoreStore
	logger        *slog.Logger
	opts          Options

	mu              sync.RWMutex
	byPublication   map[string]domain.ScoringEvent
	byFingerprint   map[string]string
	persistFailures int
}

// New builds an empty cache for one run. Call Init before trusting lookups.
func New(store ports.ScoreStore, runID, promptVersion string, logger *slog.Logger, opts Options) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		runID:         runID,
		promptVersion: promptVersion,
		store:         store,
		logger:        logger.With("run_id", runID, "prompt_version", promptVersion),
		opts:          opts,
		byPublication: map[string]domain.ScoringEvent{},
		byFingerprint: map[string]string{},
	}
}

// Open builds a cache and loads every persisted event of the run.
func Open(ctx context.Context, store ports.ScoreStore, runID, promptVersion string, logger *slog.Logger, opts Options) (*Cache, int, error) {
	c := New(store, runID, promptVersion, logger, opts)
	n, err := c.Init(ctx)
	if err != nil {
		return nil, 0, err
	}
	return c, n, nil
}

// RunID returns the run this cache belongs to.
func (c *Cache) RunID() string { return c.runID }

// PromptVersion returns the evaluation lineage this cache belongs to.
func (c *Cache) PromptVersion() string { return c.promptVersion }

// SkipsUnscored reports whether total failures are retried rather than reused.
func (c *Cache) SkipsUnscored() bool { return c.opts.SkipUnscored }

// Init loads persisted events for the run and returns how many were adopted.
// Calling it again reloads; the store's copy replaces the in-memory one.
func (c *Cache) Init(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	events, err := c.store.Events(ctx, c.runID, c.promptVersion)
	if err != nil {
		return 0, fmt.Errorf("load run %s: %w", c.runID, err)
	}

	loaded := c.adopt(events)
	c.logger.Info("run cache initialized", "loaded", loaded, "persisted", len(events))
	return loaded, nil
}

// Warm adopts persisted events for the given publications, catching up with
// writes made by other processes since Init.
func (c *Cache) Warm(ctx context.Context, publicationIDs []string) (int, error) {
	loader, ok := c.store.(batchLoader)
	if !ok || len(publicationIDs) == 0 {
		return 0, nil
	}

	events, err := loader.EventsByID(ctx, c.runID, c.promptVersion, publicationIDs)
	if err != nil {
		return 0, fmt.Errorf("warm run %s: %w", c.runID, err)
	}
	return c.adopt(events), nil
}

// Lookup returns the cached event for a publication. A different run id always misses.
func (c *Cache) Lookup(runID, publicationID string) (domain.ScoringEvent, bool) {
	if runID != c.runID {
		return domain.ScoringEvent{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	event, ok := c.byPublication[publicationID]
	return event, ok
}

// LookupFingerprint returns an event of this run whose content has the same fingerprint.
func (c *Cache) LookupFingerprint(fingerprint string) (domain.ScoringEvent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pubID, ok := c.byFingerprint[fingerprint]
	if !ok {
		return domain.ScoringEvent{}, false
	}
	event, ok := c.byPublication[pubID]
	return event, ok
}

// Resolve checks memory, then falls back to the store for a single publication.
func (c *Cache) Resolve(ctx context.Context, runID, publicationID string) (domain.ScoringEvent, bool, error) {
	if event, ok := c.Lookup(runID, publicationID); ok {
		return event, true, nil
	}
	if runID != c.runID || c.store == nil {
		return domain.ScoringEvent{}, false, nil
	}

	event, ok, err := c.store.Event(ctx, runID, publicationID, c.promptVersion)
	if err != nil {
		return domain.ScoringEvent{}, false, fmt.Errorf("resolve %s: %w", publicationID, err)
	}
	if !ok || c.skip(event) {
		return domain.ScoringEvent{}, false, nil
	}
	c.put(event)
	return event, true, nil
}

// Evaluation returns the evaluation of a scored publication.
func (c *Cache) Evaluation(runID, publicationID string) (*domain.EvaluationResult, bool) {
	event, ok := c.Lookup(runID, publicationID)
	if !ok || !event.Scored() {
		return nil, false
	}
	return event.Evaluation, true
}

// Record persists the event and then caches it. If another writer already
// stored a scored row for the same key, that row is cached and returned.
// On store failure the event stays cached and the error wraps ErrNotPersisted.
func (c *Cache) Record(ctx context.Context, runID, publicationID string, event domain.ScoringEvent) (domain.ScoringEvent, error) {
	if runID != c.runID || event.RunID != c.runID || event.PublicationID != publicationID {
		return domain.ScoringEvent{}, fmt.Errorf("%w: run %s publication %s", ErrRunMismatch, runID, publicationID)
	}
	event.PromptVersion = c.promptVersion

	if c.store == nil {
		c.put(event)
		return event, nil
	}

	res, err := c.store.Record(ctx, event)
	if err != nil {
		c.put(event)
		c.mu.Lock()
		c.persistFailures++
		c.mu.Unlock()
		c.logger.Error("scoring event kept in memory only; a restart will lose it",
			"publication_id", publicationID,
			"error", err,
		)
		return event, fmt.Errorf("%w: %s: %v", ErrNotPersisted, publicationID, err)
	}

	stored := res.Stored
	if !res.Inserted {
		c.logger.Debug("concurrent writer won; discarding local result", "publication_id", publicationID)
	}
	c.put(stored)
	return stored, nil
}

// Clear drops the in-memory entries. The persistent store is untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPublication = map[string]domain.ScoringEvent{}
	c.byFingerprint = map[string]string{}
}

// Len returns the number of cached publications.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byPublication)
}

// PersistFailures counts records that reached memory but not the store.
func (c *Cache) PersistFailures() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persistFailures
}

// Events returns a snapshot ordered by creation time, then publication id.
func (c *Cache) Events() []domain.ScoringEvent {
	c.mu.RLock()
	events := make([]domain.ScoringEvent, 0, len(c.byPublication))
	for _, e := range c.byPublication {
		events = append(events, e)
	}
	c.mu.RUnlock()

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].PublicationID < events[j].PublicationID
	})
	return events
}

func (c *Cache) adopt(events []domain.ScoringEvent) int {
	loaded := 0
	for _, e := range events {
		if e.RunID != c.runID || c.skip(e) {
			continue
		}
		c.put(e)
		loaded++
	}
	return loaded
}

func (c *Cache) skip(e domain.ScoringEvent) bool {
	return c.opts.SkipUnscored && !e.Scored()
}

func (c *Cache) put(e domain.ScoringEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byPublication[e.PublicationID] = e
	if e.Fingerprint == "" {
		return
	}
	if current, ok := c.byFingerprint[e.Fingerprint]; ok && current != e.PublicationID {
		// A scored entry is never displaced by an unscored one.
		if prev, ok := c.byPublication[current]; ok && prev.Scored() && !e.Scored() {
			return
		}
	}
	c.byFingerprint[e.Fingerprint] = e.PublicationID
}
