package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperTriage/internal/config"
	"PaperTriage/internal/domain"
	"PaperTriage/internal/fingerprint"
	"PaperTriage/internal/ports"
	"PaperTriage/internal/scanner"
)

// StrategySource implements PublicationSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.PublicationSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// FetchDaily runs every configured site and merges the results. Publications
// seen under more than one site keep their first occurrence.
func (s *StrategySource) FetchDaily(ctx context.Context, day time.Time) ([]domain.Publication, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.logger.Debug("fetch daily", "sites", len(s.sites), "day", day.Format(time.DateOnly))

	var aggregated []domain.Publication
	seen := map[string]struct{}{}
	for _, site := range s.sites {
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		results, err := strategy.Scan(ctx, scanner.Request{
			Day:        day,
			SiteName:   site.Name,
			Options:    site.Options,
			Categories: toScannerCategories(site.Categories),
		})
		if err != nil {
			return nil, fmt.Errorf("scan site %s: %w", site.Name, err)
		}

		kept := 0
		for _, pub := range results {
			if pub.Source == "" {
				pub.Source = site.Name
			}
			if pub.ID == "" {
				pub.ID = fingerprint.PublicationID(pub)
			}
			if _, dup := seen[pub.ID]; dup {
				continue
			}
			seen[pub.ID] = struct{}{}
			aggregated = append(aggregated, pub)
			kept++
		}
		s.logger.Debug("site produced publications", "site", site.Name, "scanned", len(results), "kept", kept)
	}

	s.logger.Info("publications fetched", "day", day.Format(time.DateOnly), "total", len(aggregated))
	return aggregated, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{Name: cat.Name, URL: cat.URL})
	}
	return categories
}
