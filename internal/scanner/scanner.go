// Package scanner defines ingestion strategies that turn a site listing into
// publications for one day.
package scanner

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"PaperTriage/internal/domain"
)

// Category is one listing endpoint of a site, e.g. an arXiv subject class.
type Category struct {
	Name string
	URL  string
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Day        time.Time
	SiteName   string
	Categories []Category
	Options    map[string]string
}

// Scanner is one ingestion strategy (arXiv today).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Publication, error)
}

// Registry maps strategy names to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	scanners map[string]Scanner
}

func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(s Scanner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[s.Name()] = s
}

// Resolve returns a scanner by name.
func (r *Registry) Resolve(name string) (Scanner, error) {
	r.mu.RLock()
	s, ok := r.scanners[name]
	r.mu.RUnlock()
	if ok {
		return s, nil
	}
	return nil, fmt.Errorf("scanner %q is not registered (known: %s)", name, strings.Join(r.Names(), ", "))
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
