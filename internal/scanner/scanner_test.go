package scanner

import (
	"context"
	"strings"
	"testing"

	"PaperTriage/internal/domain"
)

type stubScanner string

func (s stubScanner) Name() string { return string(s) }

func (s stubScanner) Scan(context.Context, Request) ([]domain.Publication, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(stubScanner("arxiv"))
	reg.Register(stubScanner("biorxiv"))

	s, err := reg.Resolve("arxiv")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Name() != "arxiv" {
		t.Fatalf("unexpected scanner %s", s.Name())
	}

	_, err = reg.Resolve("ieee")
	if err == nil || !strings.Contains(err.Error(), "arxiv, biorxiv") {
		t.Fatalf("expected error listing known scanners, got %v", err)
	}
}

func TestZeroRegistryRegister(t *testing.T) {
	t.Parallel()

	var reg Registry
	reg.Register(stubScanner("arxiv"))
	if names := reg.Names(); len(names) != 1 || names[0] != "arxiv" {
		t.Fatalf("unexpected names %v", names)
	}
}
