package assemble

import (
	"fmt"
	"math"
	"strings"
)

// cueFramesPerSecond is the CD frame rate CUE timestamps are expressed in.
const cueFramesPerSecond = 75

// CueTrack is one chapter of the merged file.
type CueTrack struct {
	Title string
	// Start is the position in the merged file, in seconds.
	Start float64
}

// BuildCueSheet renders a CUE sheet for a single merged MP3 file. Tracks
// must be ordered by start time. An empty track list yields a header-only sheet.
func BuildCueSheet(title, performer, file string, tracks []CueTrack) string {
	var b strings.Builder

	if performer != "" {
		b.WriteString(fmt.Sprintf("PERFORMER %s\n", cueQuote(performer)))
	}
	b.WriteString(fmt.Sprintf("TITLE %s\n", cueQuote(title)))
	b.WriteString(fmt.Sprintf("FILE %s MP3\n", cueQuote(file)))

	for i, t := range tracks {
		b.WriteString(fmt.Sprintf("  TRACK %02d AUDIO\n", i+1))
		b.WriteString(fmt.Sprintf("    TITLE %s\n", cueQuote(t.Title)))
		if performer != "" {
			b.WriteString(fmt.Sprintf("    PERFORMER %s\n", cueQuote(performer)))
		}
		b.WriteString(fmt.Sprintf("    INDEX 01 %s\n", cueTimestamp(t.Start)))
	}

	return b.String()
}

// cueTimestamp formats seconds as MM:SS:FF. Minutes are not capped at 99,
// long books need more.
func cueTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	totalFrames := int64(math.Round(seconds * cueFramesPerSecond))
	frames := totalFrames % cueFramesPerSecond
	totalSeconds := totalFrames / cueFramesPerSecond
	return fmt.Sprintf("%02d:%02d:%02d", totalSeconds/60, totalSeconds%60, frames)
}

func cueQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
}
