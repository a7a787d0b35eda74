// Package gating triages publications before review with a cheap keyword and
// venue heuristic. It favors recall: a doubtful publication lands in the
// maybe bucket rather than low, and a sample of the low bucket is reviewed
// anyway so misses show up in the audit trail.
package gating

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"slices"
	"strings"

	"PaperTriage/internal/config"
	"PaperTriage/internal/domain"
)

const (
	highThreshold  = 50
	maybeThreshold = 25
	maxMatches     = 10
)

var spaceExpr = regexp.MustCompile(`\s+`)

type term struct {
	text    string
	pattern *regexp.Regexp // set for short terms that must match whole words
}

// Gate classifies publications into high, maybe and low buckets.
// It is safe for concurrent use.
type Gate struct {
	venues    []string
	keywords  []term
	auditRate float64
	auditSeed uint64
	venueHash string
	kwHash    string
	logger    *slog.Logger
}

// Gated pairs a publication with its gate decision.
type Gated struct {
	Publication domain.Publication
	Decision    domain.GateDecision
}

// New builds a gate from config. Inline lists take precedence over list
// files; with neither, the built-in lists are used.
func New(cfg config.GatingConfig, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.AuditRate < 0 || cfg.AuditRate > 1 {
		return nil, fmt.Errorf("gating: audit rate %v outside [0, 1]", cfg.AuditRate)
	}

	venues, err := resolveList(cfg.VenueWhitelist, cfg.VenueWhitelistFile, DefaultVenues)
	if err != nil {
		return nil, fmt.Errorf("gating venues: %w", err)
	}
	keywords, err := resolveList(cfg.Keywords, cfg.KeywordsFile, DefaultKeywords)
	if err != nil {
		return nil, fmt.Errorf("gating keywords: %w", err)
	}

	g := &Gate{
		auditRate: cfg.AuditRate,
		auditSeed: cfg.AuditSeed,
		venueHash: ListHash(venues),
		kwHash:    ListHash(keywords),
		logger:    logger,
	}
	for _, v := range venues {
		if v = normalize(v); v != "" {
			g.venues = append(g.venues, v)
		}
	}
	for _, k := range keywords {
		k = normalize(k)
		if k == "" {
			continue
		}
		t := term{text: k}
		if len(k) <= 4 {
			t.pattern = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		}
		g.keywords = append(g.keywords, t)
	}
	logger.Info("gate configured", "venues", len(g.venues), "keywords", len(g.keywords), "audit_rate", g.auditRate)
	return g, nil
}

func resolveList(inline []string, path string, fallback []string) ([]string, error) {
	switch {
	case len(inline) > 0:
		return inline, nil
	case path != "":
		return LoadList(path)
	default:
		return fallback, nil
	}
}

// Classify scores one publication. Venue match adds 40, title keywords 15
// each (capped at 45), further abstract keywords 5 each (capped at 25),
// negative terms subtract 5 each (capped at 20).
func (g *Gate) Classify(pub domain.Publication) domain.GateDecision {
	title := normalize(pub.Title)
	abstract := normalize(pub.Abstract)
	combined := title + " " + abstract
	venue := normalize(pub.Source)

	var (
		score   int
		reasons []string
		d       domain.GateDecision
	)

	for _, v := range g.venues {
		if strings.Contains(venue, v) {
			d.VenueMatch = true
			score += 40
			reasons = append(reasons, "venue:"+v)
			break
		}
	}

	titleHits := g.match(title)
	if len(titleHits) > 0 {
		score += min(len(titleHits)*15, 45)
		reasons = append(reasons, fmt.Sprintf("title_kw:%d", len(titleHits)))
	}
	matches := titleHits

	var abstractHits []string
	for _, k := range g.match(abstract) {
		if !slices.Contains(titleHits, k) {
			abstractHits = append(abstractHits, k)
		}
	}
	if len(abstractHits) > 0 {
		score += min(len(abstractHits)*5, 25)
		reasons = append(reasons, fmt.Sprintf("abstract_kw:%d", len(abstractHits)))
		matches = append(matches, abstractHits...)
	}

	negatives := 0
	for _, n := range negativeKeywords {
		if strings.Contains(combined, n) {
			negatives++
		}
	}
	if negatives > 0 {
		penalty := min(negatives*5, 20)
		score = max(0, score-penalty)
		reasons = append(reasons, fmt.Sprintf("neg_kw:-%d", penalty))
	}

	if d.VenueMatch && len(matches) >= 3 {
		score += 10
		reasons = append(reasons, "multi_signal")
	}
	score = min(max(score, 0), 100)

	switch {
	case score >= highThreshold:
		d.Bucket = domain.GateHigh
	case score >= maybeThreshold:
		d.Bucket = domain.GateMaybe
	default:
		d.Bucket = domain.GateLow
	}

	if d.Bucket == domain.GateLow {
		for _, s := range strongKeywords {
			if strings.Contains(combined, s) {
				d.Bucket = domain.GateMaybe
				reasons = append(reasons, "safety_net:"+s)
				break
			}
		}
	}
	if d.VenueMatch && len(matches) > 0 && d.Bucket != domain.GateHigh {
		d.Bucket = domain.GateHigh
		reasons = append(reasons, "venue+kw_promotion")
	}

	d.Score = score
	d.Reason = "no_signals"
	if len(reasons) > 0 {
		d.Reason = strings.Join(reasons, "; ")
	}
	if len(matches) > maxMatches {
		matches = matches[:maxMatches]
	}
	d.KeywordMatches = matches
	return d
}

// Apply classifies pubs and draws the audit sample from the low bucket. The
// sample depends only on the seed (or runID when no seed is configured), so
// re-running the same run admits the same publications.
func (g *Gate) Apply(runID string, pubs []domain.Publication) ([]Gated, domain.GateStats) {
	out := make([]Gated, len(pubs))
	stats := domain.GateStats{
		Total:           len(pubs),
		AuditRate:       g.auditRate,
		VenueListHash:   g.venueHash,
		KeywordListHash: g.kwHash,
	}

	var low []int
	for i, pub := range pubs {
		d := g.Classify(pub)
		out[i] = Gated{Publication: pub, Decision: d}
		switch d.Bucket {
		case domain.GateHigh:
			stats.High++
		case domain.GateMaybe:
			stats.Maybe++
		default:
			stats.Low++
			low = append(low, i)
		}
		if d.VenueMatch {
			stats.VenuePromoted++
		}
		if len(d.KeywordMatches) > 0 {
			stats.KeywordPromoted++
		}
	}

	if len(low) > 0 && g.auditRate > 0 {
		n := min(max(1, int(float64(len(low))*g.auditRate)), len(low))
		rng := rand.New(rand.NewPCG(g.seedFor(runID), 0x9e3779b97f4a7c15))
		for _, j := range rng.Perm(len(low))[:n] {
			out[low[j]].Decision.AuditSelected = true
		}
		stats.AuditedLow = n
	}

	stats.ToEvaluate = stats.High + stats.Maybe + stats.AuditedLow
	g.logger.Info("gating complete",
		"run_id", runID,
		"total", stats.Total,
		"high", stats.High,
		"maybe", stats.Maybe,
		"low", stats.Low,
		"audited_low", stats.AuditedLow,
		"to_evaluate", stats.ToEvaluate,
	)
	return out, stats
}

func (g *Gate) seedFor(runID string) uint64 {
	if g.auditSeed != 0 {
		return g.auditSeed
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(runID))
	return h.Sum64()
}

func (g *Gate) match(text string) []string {
	if text == "" {
		return nil
	}
	var hits []string
	for _, k := range g.keywords {
		if k.pattern != nil {
			if k.pattern.MatchString(text) {
				hits = append(hits, k.text)
			}
			continue
		}
		if strings.Contains(text, k.text) {
			hits = append(hits, k.text)
		}
	}
	return hits
}

func normalize(s string) string {
	return spaceExpr.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}
