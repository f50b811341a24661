package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"audiobook-capture/internal/book"
	"audiobook-capture/internal/segment"
)

// Runner consumes a ready session record.
type Runner interface {
	// Variant names the run for task labels and metrics.
	Variant() string
	Run(ctx context.Context, rec *book.Record, decode bool) error
}

// SegmentSource is the subset of segment.Fetcher the runners need.
type SegmentSource interface {
	Fetch(ctx context.Context, part int, rawURL, credential string) ([]byte, error)
	FetchWithDuration(ctx context.Context, part int, rawURL string, decode bool, credential string) (segment.Result, error)
}

// Part is one distinct audio file referenced by the chapter list.
type Part struct {
	Number  int
	URL     string
	PathKey string
}

// PartsOf returns the distinct parts referenced by chapters, numbered from 1
// in order of first reference.
func PartsOf(chapters []book.Chapter) []Part {
	seen := make(map[string]int)
	var parts []Part
	for _, c := range chapters {
		key := c.PathKey
		if key == "" {
			key = c.URL
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = len(parts) + 1
		parts = append(parts, Part{Number: len(parts) + 1, URL: c.URL, PathKey: key})
	}
	return parts
}

// forEachPart runs fn for every part with at most limit in flight. The first
// error cancels the remaining work and is returned.
func forEachPart(ctx context.Context, parts []Part, limit int, fn func(ctx context.Context, p Part) error) error {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range parts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, p)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

var unsafeFileChars = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// safeName turns a title into a file system friendly name.
func safeName(name, fallback string) string {
	name = strings.TrimSpace(unsafeFileChars.Replace(name))
	name = strings.Trim(name, ".")
	if name == "" {
		name = fallback
	}
	if name == "" {
		name = "audiobook"
	}
	return name
}

// bookDir creates and returns the output directory for rec.
func bookDir(root string, rec *book.Record) (string, error) {
	dir := filepath.Join(root, safeName(rec.FullTitle(), rec.ResourceID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}
