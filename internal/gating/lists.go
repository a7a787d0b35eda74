package gating

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultVenues are high-impact journals and preprint servers for early
// detection research.
var DefaultVenues = []string{
	"nejm", "new england journal of medicine",
	"lancet", "the lancet",
	"jama", "journal of the american medical association",
	"bmj", "british medical journal",
	"annals of internal medicine",
	"nature", "nature medicine", "nature cancer", "nature communications",
	"science", "science translational medicine",
	"cell", "cell reports medicine", "cancer cell",
	"cancer discovery", "journal of clinical oncology", "jco",
	"clinical cancer research", "cancer research",
	"annals of oncology", "lancet oncology",
	"jama oncology", "jama network open",
	"cancer epidemiology biomarkers prevention",
	"cancer prevention research",
	"international journal of cancer",
	"gut", "gastroenterology",
	"biorxiv", "medrxiv", "arxiv",
}

// DefaultKeywords is the high-recall early detection vocabulary.
var DefaultKeywords = []string{
	"early detection", "early diagnosis", "early-stage",
	"screening", "cancer screening", "population screening",
	"early cancer", "precancerous", "premalignant",
	"biomarker", "biomarkers", "tumor marker", "tumour marker",
	"liquid biopsy", "liquid biopsies",
	"ctdna", "cfdna", "circulating tumor dna", "circulating tumour dna",
	"circulating free dna", "cell-free dna", "cell free dna",
	"circulating tumor cells", "ctc", "ctcs",
	"methylation", "dna methylation", "epigenetic",
	"methylation biomarker", "methylation signature",
	"mced", "multi-cancer", "multicancer", "pan-cancer",
	"multi-cancer early detection", "galleri",
	"urine", "urinary", "urine-based",
	"stool", "fecal", "faecal", "stool-based",
	"breath", "exhaled breath", "breath analysis",
	"voc", "volatile organic compounds",
	"saliva", "salivary",
	"canine detection", "cancer-sniffing dogs", "olfactory",
	"electronic nose", "e-nose",
	"ai-assisted", "machine learning", "deep learning",
	"colonoscopy", "mammography", "mammogram",
	"low-dose ct", "ldct", "lung cancer screening",
	"psa", "prostate-specific antigen",
	"ca-125", "ca125", "ovarian cancer screening",
	"cologuard", "fit test", "fobt",
	"sensitivity", "specificity", "auc", "roc",
	"positive predictive value", "ppv",
	"negative predictive value", "npv",
	"validation cohort", "validation study",
	"prospective", "prospective study", "prospective cohort",
	"pancreatic cancer", "pancreatic", "pdac",
	"ovarian cancer", "ovarian",
	"lung cancer", "nsclc", "sclc",
	"colorectal cancer", "colon cancer", "crc",
	"liver cancer", "hepatocellular", "hcc",
}

// negativeKeywords suggest treatment, late-stage or non-primary work.
var negativeKeywords = []string{
	"treatment", "therapy", "therapeutic", "chemotherapy",
	"surgery", "surgical", "resection",
	"metastatic", "advanced stage", "stage iv", "stage 4",
	"palliative", "end-stage", "terminal",
	"in vitro", "cell line", "cell lines", "mouse model", "mice",
	"retrospective review", "case report", "case series",
	"editorial", "commentary", "letter to editor", "correspondence",
	"erratum", "correction", "retraction",
}

// strongKeywords never leave a publication in the low bucket.
var strongKeywords = []string{
	"multi-cancer early detection", "mced", "liquid biopsy",
	"cancer screening", "early detection", "screening study",
	"prospective screening", "population screening",
	"ctdna", "cfdna", "circulating tumor dna", "circulating free dna",
	"cell-free dna", "cell free dna",
	"canine detection", "dog detection", "trained dogs",
	"breath analysis", "exhaled breath", "volatile organic",
	"electronic nose", "e-nose",
	"biomarker validation", "diagnostic accuracy",
}

// LoadList reads a term list from a .json or .yaml/.yml array, or from a
// plain file with one term per line.
func LoadList(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read list %s: %w", path, err)
	}

	var items []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &items)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &items)
	default:
		for line := range strings.Lines(string(raw)) {
			if line = strings.TrimSpace(line); line != "" {
				items = append(items, line)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("parse list %s: %w", path, err)
	}
	return items, nil
}

// ListHash fingerprints a term list independent of order and case, so a
// manifest shows which gate configuration produced a run.
func ListHash(items []string) string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		normalized = append(normalized, strings.ToLower(strings.TrimSpace(item)))
	}
	slices.Sort(normalized)
	raw, _ := json.Marshal(normalized)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
