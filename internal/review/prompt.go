package review

import (
	"fmt"
	"strings"

	"PaperTriage/internal/domain"
)

// MaxAbstractRunes bounds the abstract length sent to reviewers.
const MaxAbstractRunes = 3000

// Prompt is the message pair sent to a backend.
type Prompt struct {
	Version string
	System  string
	User    string
}

const systemPrompt = "You are a research reviewer for an early cancer detection team. " +
	"Judge how relevant a publication is to detecting cancer early, before symptoms appear. " +
	"Answer with a single JSON object and nothing else."

type rubric struct {
	cancerTypes string
	extraFlags  []string
	guidance    string
}

var rubrics = map[string]rubric{
	VersionV2: {
		cancerTypes: "breast|lung|colon|pancreatic|ovarian|multi|other|none",
		guidance: "Reward prospective screening, multi-cancer detection, breath/VOC, urine, canine olfaction, " +
			"ctDNA/cfDNA and sensor-based detection. Penalize late-stage treatment, resistance mechanisms " +
			"and mechanistic work without a detection angle.",
	},
	VersionV3: {
		cancerTypes: "breast|lung|prostate|colon|colorectal|multi|other|none",
		extraFlags:  []string{"detection_methodology", "treatment_only", "market_only"},
		guidance: "Target cancers are breast, lung, prostate and colorectal. Scores of 85 or more should be rare. " +
			"Treatment-only and market-only papers score below 25. Mentioning a cancer type alone does not make " +
			"a paper relevant.",
	},
}

var baseFlags = []string{
	"early_detection_focus", "screening_study", "risk_stratification", "biomarker_discovery",
	"ctdna_cfdna", "imaging_based", "prospective_cohort", "breath_voc", "urine_based",
	"sensor_based", "canine_detection", "human_subjects",
}

// BuildPrompt renders the prompt for version. Title and abstract are
// sanitized and the abstract is truncated.
func BuildPrompt(version string, pub domain.Publication) (Prompt, error) {
	r, ok := rubrics[version]
	if !ok {
		return Prompt{}, fmt.Errorf("%w: unknown prompt version %q", ErrMisconfigured, version)
	}

	title := strings.TrimSpace(Sanitize(pub.Title))
	abstract := Truncate(strings.TrimSpace(Sanitize(pub.Abstract)), MaxAbstractRunes)
	if title == "" && abstract == "" {
		return Prompt{}, fmt.Errorf("%w: empty title and abstract", ErrInvalidInput)
	}
	if abstract == "" {
		abstract = "(no abstract available)"
	}

	var b strings.Builder
	b.WriteString("RUBRIC:\n")
	b.WriteString(r.guidance)
	b.WriteString("\n\nRATING SCALE: 3 central (score 75-100), 2 highly relevant (50-74), ")
	b.WriteString("1 somewhat relevant (25-49), 0 not relevant (0-24).\n\n")
	b.WriteString("PUBLICATION:\n")
	fmt.Fprintf(&b, "Title: %s\n", title)
	if pub.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", Sanitize(pub.Source))
	}
	fmt.Fprintf(&b, "Abstract: %s\n\n", abstract)

	b.WriteString("OUTPUT SCHEMA (strict JSON, no markdown):\n{\n")
	b.WriteString(`  "relevancy_rating_0_3": <0-3>,` + "\n")
	b.WriteString(`  "relevancy_score_0_100": <0-100>,` + "\n")
	b.WriteString(`  "key_reasons": ["<1-3 factual reasons>"],` + "\n")
	b.WriteString(`  "tags": ["<tag>"],` + "\n")
	b.WriteString(`  "signals": {` + "\n")
	fmt.Fprintf(&b, "    \"cancer_type\": \"<%s>\"", r.cancerTypes)
	for _, flag := range append(append([]string(nil), baseFlags...), r.extraFlags...) {
		fmt.Fprintf(&b, ",\n    %q: <true|false>", flag)
	}
	b.WriteString("\n  },\n")
	b.WriteString(`  "summary": "<2-3 sentences>",` + "\n")
	b.WriteString(`  "concerns": "<concerns or 'None'>",` + "\n")
	b.WriteString(`  "uncertainty": "<low|medium|high>"` + "\n}\n")

	return Prompt{Version: version, System: systemPrompt, User: b.String()}, nil
}
