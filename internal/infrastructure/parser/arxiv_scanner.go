package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/fingerprint"
	"PaperTriage/internal/scanner"
)

const arxivBaseURL = "https://arxiv.org"

var (
	dateExpr  = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)
	spaceExpr = regexp.MustCompile(`\s+`)
)

// ArxivScanner pages through arXiv listing pages and keeps entries dated on
// the requested day.
type ArxivScanner struct {
	client   *http.Client
	logger   *slog.Logger
	pageSize int
}

// NewArxivScanner wires an HTTP client; pageSize defaults to 200.
func NewArxivScanner(client *http.Client, logger *slog.Logger) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ArxivScanner{client: client, logger: logger, pageSize: 200}
}

func (a *ArxivScanner) Name() string {
	return "arxiv"
}

// Scan walks every category listing and returns publications dated on req.Day.
// A publication cross-listed in several categories is returned once.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Publication, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided for site %s", req.SiteName)
	}

	targetDay := req.Day.UTC().Truncate(24 * time.Hour)
	results := make([]domain.Publication, 0)
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		for skip := 0; ; skip += a.pageSize {
			pageURL, err := buildPageURL(cat.URL, skip, a.pageSize)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			doc, err := a.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat.Name, err)
			}

			page, more := a.extractPublications(doc, targetDay, req.SiteName, cat.Name)
			for _, pub := range page {
				if _, ok := seen[pub.ID]; ok {
					continue
				}
				seen[pub.ID] = struct{}{}
				results = append(results, pub)
			}
			a.logger.Debug("arxiv page scanned", "category", cat.Name, "skip", skip, "kept", len(page))

			if !more {
				break
			}
		}
	}

	return results, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "PaperTriage/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// extractPublications returns the page entries for targetDay and whether the
// next page may still hold any. Listings are newest first.
func (a *ArxivScanner) extractPublications(doc *goquery.Document, targetDay time.Time, siteName, category string) ([]domain.Publication, bool) {
	var (
		collected []domain.Publication
		more      = true
		processed int
	)

	doc.Find("dl > dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		processed++

		pub, ok := parseEntry(dt, dt.Next(), siteName, category)
		if !ok {
			a.logger.Debug("arxiv entry without date skipped", "category", category, "title", pub.Title)
			return true
		}

		day := pub.PublishedAt.UTC().Truncate(24 * time.Hour)
		switch {
		case day.Equal(targetDay):
			collected = append(collected, pub)
		case day.Before(targetDay):
			more = false
			return false
		}
		return true
	})

	if processed < a.pageSize {
		more = false
	}

	return collected, more
}

// parseEntry reads one dt/dd pair. ok is false when the entry carries no
// recognizable date, since it cannot be placed on a day.
func parseEntry(dt, dd *goquery.Selection, siteName, category string) (domain.Publication, bool) {
	link := dt.Find(`a[href*="/abs/"]`).First()
	href, _ := link.Attr("href")
	if href != "" && !strings.HasPrefix(href, "http") {
		href = arxivBaseURL + href
	}

	id := strings.TrimSpace(link.Text())
	if id == "" && href != "" {
		id = "arXiv:" + href[strings.LastIndex(href, "/abs/")+len("/abs/"):]
	}

	source := siteName
	if category != "" {
		source = siteName + "/" + category
	}

	pub := domain.Publication{
		ID:       id,
		Title:    collapse(strings.TrimPrefix(collapse(dd.Find(".list-title").First().Text()), "Title:")),
		Abstract: collapse(strings.TrimPrefix(collapse(dd.Find("p.mathjax").First().Text()), "Abstract:")),
		URL:      href,
		Source:   source,
	}

	dateText := dd.Find(".list-date").First().Text()
	if strings.TrimSpace(dateText) == "" {
		dateText = dd.Find(".list-dateline").First().Text()
	}
	match := dateExpr.FindString(dateText)
	if match == "" {
		return pub, false
	}
	publishedAt, err := time.Parse("2 Jan 2006", match)
	if err != nil {
		return pub, false
	}
	pub.PublishedAt = publishedAt

	if pub.ID == "" {
		pub.ID = fingerprint.PublicationID(pub)
	}
	return pub, true
}

func collapse(s string) string {
	return strings.TrimSpace(spaceExpr.ReplaceAllString(s, " "))
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid category url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
