// Package fingerprint derives stable identities and content hashes for publications.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PaperTriage/internal/domain"
)

// Compute hashes the normalized (trimmed, case-folded) title and abstract.
// Metadata such as source or URL never influences the result.
func Compute(title, abstract string) string {
	sum := sha256.Sum256([]byte(fields(normalize(title), normalize(abstract))))
	return hex.EncodeToString(sum[:])
}

// fields length-prefixes each value so no content can move a field boundary.
func fields(values ...string) string {
	var b strings.Builder
	for _, v := range values {
		b.WriteString(strconv.Itoa(len(v)))
		b.WriteByte(':')
		b.WriteString(v)
	}
	return b.String()
}

// Of is Compute applied to a publication.
func Of(p domain.Publication) string {
	return Compute(p.Title, p.Abstract)
}

// Empty reports whether a publication has neither title nor abstract text.
func Empty(title, abstract string) bool {
	return normalize(title) == "" && normalize(abstract) == ""
}

// PublicationID derives an identifier from the canonical URL when present,
// otherwise from source, title and publication date.
func PublicationID(p domain.Publication) string {
	var key string
	if canonical := CanonicalURL(p.URL); canonical != "" {
		key = "url:" + canonical
	} else {
		key = "meta:" + fields(strings.TrimSpace(p.Source), normalize(p.Title), dateKey(p.PublishedAt))
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// CanonicalURL lowercases scheme and host, drops fragments, tracking
// parameters and trailing slashes, and sorts the remaining query.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	query := u.Query()
	for k := range query {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			query.Del(k)
		}
	}
	// Encode sorts by key.
	u.RawQuery = query.Encode()

	return u.String()
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
