package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"audiobook-capture/internal/book"
)

// ManifestFile is written next to the parts by PartsRunner.
const ManifestFile = "metadata.yaml"

// Manifest describes the downloaded parts.
type Manifest struct {
	ResourceID  string         `yaml:"resource_id"`
	Title       book.Title     `yaml:"title"`
	Authors     []string       `yaml:"authors,omitempty"`
	Narrators   []string       `yaml:"narrators,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Cover       string         `yaml:"cover,omitempty"`
	Expires     *time.Time     `yaml:"expires,omitempty"`
	Parts       []ManifestPart `yaml:"parts"`
	Chapters    []book.Chapter `yaml:"chapters"`
}

// ManifestPart maps a written file to its spine path.
type ManifestPart struct {
	File    string `yaml:"file"`
	PathKey string `yaml:"path_key"`
}

// PartsRunner writes every part as its own file plus a YAML manifest.
type PartsRunner struct {
	Source      SegmentSource
	OutputDir   string
	Concurrency int
	Log         *slog.Logger
}

// Variant implements Runner.
func (r *PartsRunner) Variant() string { return "parts" }

// Run implements Runner. decode is not used: parts are stored as fetched.
func (r *PartsRunner) Run(ctx context.Context, rec *book.Record, _ bool) error {
	parts := PartsOf(rec.Chapters)
	if len(parts) == 0 {
		return fmt.Errorf("no parts to download")
	}
	dir, err := bookDir(r.OutputDir, rec)
	if err != nil {
		return err
	}

	err = forEachPart(ctx, parts, r.Concurrency, func(ctx context.Context, p Part) error {
		content, err := r.Source.Fetch(ctx, p.Number, p.URL, rec.Credential)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dir, partFileName(p.Number)), content, 0o644)
	})
	if err != nil {
		return err
	}

	manifest := Manifest{
		ResourceID:  rec.ResourceID,
		Title:       rec.Title,
		Authors:     rec.Authors,
		Narrators:   rec.Narrators,
		Description: rec.Description,
		Cover:       rec.CoverHref,
		Expires:     rec.Expires,
		Chapters:    rec.Chapters,
	}
	for _, p := range parts {
		manifest.Parts = append(manifest.Parts, ManifestPart{File: partFileName(p.Number), PathKey: p.PathKey})
	}
	if err := writeManifest(filepath.Join(dir, ManifestFile), manifest); err != nil {
		return err
	}

	if r.Log != nil {
		r.Log.Info("parts written", slog.String("dir", dir), slog.Int("parts", len(parts)))
	}
	return nil
}

func partFileName(n int) string {
	return fmt.Sprintf("Part%03d.mp3", n)
}

func writeManifest(path string, m Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode manifest: %w", err)
	}
	return f.Close()
}
