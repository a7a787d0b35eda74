// Package export writes run artifacts: a JSONL audit log of scoring events
// and a JSON manifest.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"PaperTriage/internal/domain"
	"PaperTriage/internal/ports"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Exporter writes <dir>/<run>.events.jsonl and <dir>/<run>.manifest.json.
type Exporter struct {
	dir    string
	logger *slog.Logger
}

var _ ports.Exporter = (*Exporter)(nil)

// NewExporter targets dir, which is created on first write.
func NewExporter(dir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{dir: dir, logger: logger}
}

// ExportEvents replaces the run's JSONL file with the given events.
func (e *Exporter) ExportEvents(ctx context.Context, run domain.Run, events []domain.ScoringEvent) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := WriteJSONL(&buf, events); err != nil {
		return "", err
	}
	path := e.path(run.ID, ".events.jsonl")
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	e.logger.Info("events exported", "path", path, "events", len(events))
	return path, nil
}

// ExportManifest writes the manifest next to the events file.
func (e *Exporter) ExportManifest(ctx context.Context, manifest domain.Manifest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path := e.path(manifest.RunID, ".manifest.json")
	if err := WriteManifest(path, manifest); err != nil {
		return "", err
	}
	e.logger.Info("manifest exported", "path", path, "must_reads", len(manifest.MustReads))
	return path, nil
}

// WriteManifest writes manifest as indented JSON at path.
func WriteManifest(path string, manifest domain.Manifest) error {
	if manifest.MustReads == nil {
		manifest.MustReads = []domain.MustRead{}
	}
	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomic(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (e *Exporter) path(runID, suffix string) string {
	name := unsafeName.ReplaceAllString(runID, "_")
	if name == "" {
		name = "run"
	}
	return filepath.Join(e.dir, name+suffix)
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}
