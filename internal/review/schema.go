package review

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"PaperTriage/internal/domain"
)

// Prompt versions. Frozen versions are never edited in place; a change in
// wording or schema gets a new version.
const (
	VersionV2 = "v2"
	VersionV3 = "v3"

	ActiveVersion = VersionV3
)

//go:embed schemas/*.json
var schemaFS embed.FS

var compiledSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	out := make(map[string]*jsonschema.Schema, 2)
	for _, version := range []string{VersionV2, VersionV3} {
		data, err := schemaFS.ReadFile("schemas/review_" + version + ".json")
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", version, err)
		}
		compiler := jsonschema.NewCompiler()
		schema, err := compiler.Compile(data)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", version, err)
		}
		out[version] = schema
	}
	return out, nil
})

// KnownVersion reports whether a schema exists for version.
func KnownVersion(version string) bool {
	schemas, err := compiledSchemas()
	if err != nil {
		return false
	}
	_, ok := schemas[version]
	return ok
}

type wireJudgment struct {
	Rating      *int           `json:"relevancy_rating_0_3"`
	Score       *int           `json:"relevancy_score_0_100"`
	KeyReasons  []string       `json:"key_reasons"`
	Tags        []string       `json:"tags"`
	Signals     domain.Signals `json:"signals"`
	Summary     string         `json:"summary"`
	Concerns    string         `json:"concerns"`
	Uncertainty string         `json:"uncertainty"`
}

// ParseJudgment extracts the JSON object from raw model output and validates
// it against the schema of version. Every failure wraps ErrMalformed.
func ParseJudgment(version, raw string) (domain.Judgment, error) {
	schemas, err := compiledSchemas()
	if err != nil {
		return domain.Judgment{}, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}
	schema, ok := schemas[version]
	if !ok {
		return domain.Judgment{}, fmt.Errorf("%w: unknown prompt version %q", ErrMisconfigured, version)
	}

	payload, err := ExtractJSON(raw)
	if err != nil {
		return domain.Judgment{}, err
	}
	result := schema.ValidateJSON([]byte(payload))
	if !result.IsValid() {
		return domain.Judgment{}, fmt.Errorf("%w: schema %s: %v", ErrMalformed, version, result.Errors)
	}

	var wire wireJudgment
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return domain.Judgment{}, fmt.Errorf("%w: decode: %v", ErrMalformed, err)
	}
	if wire.Score == nil {
		return domain.Judgment{}, fmt.Errorf("%w: score missing", ErrMalformed)
	}

	signals := wire.Signals
	if signals.CancerType == "" {
		signals.CancerType = domain.CancerTypeNone
	}
	return domain.Judgment{
		Score:      *wire.Score,
		Rating:     wire.Rating,
		Rationale:  strings.Join(wire.KeyReasons, "; "),
		Summary:    strings.TrimSpace(wire.Summary),
		Concerns:   splitConcerns(wire.Concerns),
		Signals:    signals,
		Confidence: confidenceFromUncertainty(wire.Uncertainty),
	}, nil
}

// uncertainty is the inverse of confidence.
func confidenceFromUncertainty(u string) domain.Confidence {
	switch u {
	case "low":
		return domain.ConfidenceHigh
	case "high":
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceMedium
	}
}

func splitConcerns(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") || strings.EqualFold(raw, "none.") {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var (
	fencePattern         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON pulls a single JSON object out of model text that may be
// wrapped in code fences or surrounding prose, and drops trailing commas.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in response", ErrMalformed)
	}
	text = trailingCommaPattern.ReplaceAllString(text[start:end+1], "$1")
	if !json.Valid([]byte(text)) {
		return "", fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	return text, nil
}
