package segment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/hajimehoshi/go-mp3"
)

// bytesPerSample is the size of one decoded stereo 16-bit sample frame.
const bytesPerSample = 4

// Prober computes the playback duration of an audio segment in seconds.
type Prober interface {
	Duration(ctx context.Context, content []byte) (float64, error)
}

// FrameScanProber reads MP3 frame headers only, without decoding audio.
type FrameScanProber struct{}

// Duration implements Prober.
func (FrameScanProber) Duration(_ context.Context, content []byte) (float64, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(content))
	if err != nil {
		return 0, fmt.Errorf("scan mp3 frames: %w", err)
	}
	if d.Length() < 0 {
		return 0, errors.New("scan mp3 frames: length unavailable")
	}
	return pcmSeconds(d.Length(), d.SampleRate())
}

// FullDecodeProber decodes the entire segment and measures the PCM output.
type FullDecodeProber struct{}

// Duration implements Prober.
func (FullDecodeProber) Duration(ctx context.Context, content []byte) (float64, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(content))
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	n, err := io.Copy(io.Discard, readerWithContext{ctx: ctx, r: d})
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	return pcmSeconds(n, d.SampleRate())
}

func pcmSeconds(pcmBytes int64, sampleRate int) (float64, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	return float64(pcmBytes) / bytesPerSample / float64(sampleRate), nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// FFProbeProber asks ffprobe for the container duration, feeding the
// segment on stdin.
type FFProbeProber struct {
	Binary string
}

// Duration implements Prober.
func (p FFProbeProber) Duration(ctx context.Context, content []byte) (float64, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "-i", "pipe:0")
	cmd.Stdin = bytes.NewReader(content)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return parseFFProbeDuration(output)
}

func parseFFProbeDuration(output []byte) (float64, error) {
	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", result.Format.Duration, err)
	}
	return seconds, nil
}
