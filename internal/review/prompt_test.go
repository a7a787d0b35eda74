package review

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"PaperTriage/internal/domain"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	in := "line1\r\nline2\rline3\u2028line4\u2029line5\x00\x07\ttab"
	want := "line1\nline2\nline3\nline4\n\nline5\ttab"
	if got := Sanitize(in); got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	t.Parallel()

	s := strings.Repeat("é", 10)
	got := Truncate(s, 4)
	if utf8.RuneCountInString(got) != 4 || !utf8.ValidString(got) {
		t.Fatalf("unexpected truncation %q", got)
	}
	if Truncate("short", 10) != "short" {
		t.Fatal("short strings should be untouched")
	}
}

func TestBuildPromptTruncatesAbstract(t *testing.T) {
	t.Parallel()

	pub := domain.Publication{
		Title:    "Breath test",
		Abstract: strings.Repeat("a", MaxAbstractRunes) + "TAIL",
		Source:   "arXiv",
	}
	p, err := BuildPrompt(VersionV3, pub)
	if err != nil {
		t.Fatalf("BuildPrompt returned error: %v", err)
	}
	if strings.Contains(p.User, "TAIL") {
		t.Fatal("abstract was not truncated")
	}
	if !strings.Contains(p.User, `"market_only"`) {
		t.Fatal("v3 prompt should list v3 signals")
	}
	if p.Version != VersionV3 || p.System == "" {
		t.Fatalf("unexpected prompt header %+v", p)
	}

	p2, err := BuildPrompt(VersionV2, pub)
	if err != nil {
		t.Fatalf("BuildPrompt v2 returned error: %v", err)
	}
	if strings.Contains(p2.User, `"market_only"`) {
		t.Fatal("v2 prompt must not list v3 signals")
	}
}

func TestBuildPromptRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := BuildPrompt(VersionV3, domain.Publication{Title: " \x00 ", Abstract: "\r\n"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
