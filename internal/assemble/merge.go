package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"audiobook-capture/internal/book"
	"audiobook-capture/internal/segment"
)

// MergeRunner concatenates all parts into one MP3 and writes a CUE sheet
// with a track per chapter.
type MergeRunner struct {
	Source      SegmentSource
	OutputDir   string
	Concurrency int
	Log         *slog.Logger
}

// Variant implements Runner.
func (r *MergeRunner) Variant() string { return "merge" }

// Run implements Runner. decode selects full decoding for duration measurement.
func (r *MergeRunner) Run(ctx context.Context, rec *book.Record, decode bool) error {
	parts := PartsOf(rec.Chapters)
	if len(parts) == 0 {
		return fmt.Errorf("no parts to merge")
	}
	dir, err := bookDir(r.OutputDir, rec)
	if err != nil {
		return err
	}

	results := make([]segment.Result, len(parts))
	err = forEachPart(ctx, parts, r.Concurrency, func(ctx context.Context, p Part) error {
		res, err := r.Source.FetchWithDuration(ctx, p.Number, p.URL, decode, rec.Credential)
		if err != nil {
			return err
		}
		results[p.Number-1] = res
		return nil
	})
	if err != nil {
		return err
	}

	base := safeName(rec.FullTitle(), rec.ResourceID)
	audioName := base + ".mp3"
	out, err := os.Create(filepath.Join(dir, audioName))
	if err != nil {
		return fmt.Errorf("create merged file: %w", err)
	}
	starts := make(map[string]float64, len(parts))
	var elapsed float64
	for i, p := range parts {
		starts[p.PathKey] = elapsed
		elapsed += results[i].Duration
		if _, err := out.Write(results[i].Content); err != nil {
			_ = out.Close()
			return fmt.Errorf("write merged file: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close merged file: %w", err)
	}

	tracks := ChapterTracks(rec.Chapters, starts)
	sheet := BuildCueSheet(rec.FullTitle(), strings.Join(rec.Authors, ", "), audioName, tracks)
	if err := os.WriteFile(filepath.Join(dir, base+".cue"), []byte(sheet), 0o644); err != nil {
		return fmt.Errorf("write cue sheet: %w", err)
	}

	if r.Log != nil {
		r.Log.Info("merged file written",
			slog.String("dir", dir),
			slog.Int("parts", len(parts)),
			slog.Int("chapters", len(tracks)),
			slog.Float64("duration_s", elapsed))
	}
	return nil
}

// ChapterTracks places each chapter on the merged timeline given the start
// of every part, keyed by path.
func ChapterTracks(chapters []book.Chapter, partStarts map[string]float64) []CueTrack {
	tracks := make([]CueTrack, 0, len(chapters))
	for _, c := range chapters {
		key := c.PathKey
		if key == "" {
			key = c.URL
		}
		tracks = append(tracks, CueTrack{Title: c.Title, Start: partStarts[key] + c.Offset})
	}
	return tracks
}
