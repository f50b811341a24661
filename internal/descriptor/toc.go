package descriptor

import (
	"fmt"
	"strconv"
	"strings"

	"audiobook-capture/internal/book"
)

// FlattenToc walks the table of contents depth first and resolves every
// entry against the spine addresses by original path. Entries whose path is
// not in the spine are skipped. When the tree yields nothing, each spine
// entry becomes its own chapter so a book without navigation is still usable.
func FlattenToc(spine []SpineAddress, toc []TocEntry) []book.Chapter {
	byKey := make(map[string]string, len(spine))
	for _, s := range spine {
		byKey[s.PathKey] = s.URL
	}

	var chapters []book.Chapter
	var walk func(entries []TocEntry)
	walk = func(entries []TocEntry) {
		for _, e := range entries {
			key, offset := splitTocPath(e.Path)
			if u, ok := byKey[key]; ok {
				chapters = append(chapters, book.Chapter{
					Position: len(chapters) + 1,
					Title:    e.Title,
					URL:      u,
					PathKey:  key,
					Offset:   offset,
				})
			}
			walk(e.Contents)
		}
	}
	walk(toc)

	if len(chapters) > 0 {
		return chapters
	}
	for i, s := range spine {
		chapters = append(chapters, book.Chapter{
			Position: i + 1,
			Title:    fmt.Sprintf("Part %02d", i+1),
			URL:      s.URL,
			PathKey:  s.PathKey,
		})
	}
	return chapters
}

// splitTocPath separates "Part01.mp3#120" into the path key and the offset in seconds.
func splitTocPath(p string) (string, float64) {
	key, frag, found := strings.Cut(p, "#")
	if !found {
		return key, 0
	}
	offset, err := strconv.ParseFloat(frag, 64)
	if err != nil || offset < 0 {
		return key, 0
	}
	return key, offset
}
