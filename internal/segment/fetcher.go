package segment

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"audiobook-capture/internal/platform/metrics"
	"audiobook-capture/internal/tasks"
)

// TaskReporter is the part of the task tracker the fetcher reports to.
type TaskReporter interface {
	Add(category, description string, status tasks.Status) (string, error)
	Update(id string, status tasks.Status) error
}

// Result is one fetched part with its measured duration.
type Result struct {
	Part     int
	Content  []byte
	Duration float64
}

// Config wires a Fetcher. Client must use the same cookie jar as Relay.
type Config struct {
	Client    *http.Client
	Relay     *Relay
	Tasks     TaskReporter
	Log       *slog.Logger
	Metrics   *metrics.Metrics
	UserAgent string
	// Metadata measures duration from headers; Decoder by full decode.
	Metadata Prober
	Decoder  Prober
}

// Fetcher retrieves audio segments. It does not retry.
type Fetcher struct {
	client    *http.Client
	relay     *Relay
	tasks     TaskReporter
	log       *slog.Logger
	metrics   *metrics.Metrics
	userAgent string
	metadata  Prober
	decoder   Prober
}

// NewFetcher returns a Fetcher; nil probers default to the go-mp3 based ones.
func NewFetcher(cfg Config) *Fetcher {
	f := &Fetcher{
		client:    cfg.Client,
		relay:     cfg.Relay,
		tasks:     cfg.Tasks,
		log:       cfg.Log,
		metrics:   cfg.Metrics,
		userAgent: cfg.UserAgent,
		metadata:  cfg.Metadata,
		decoder:   cfg.Decoder,
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	if f.metadata == nil {
		f.metadata = FrameScanProber{}
	}
	if f.decoder == nil {
		f.decoder = FullDecodeProber{}
	}
	return f
}

// PartLabel formats a part number the way task categories show it.
func PartLabel(part int) string {
	return fmt.Sprintf("Part%03d", part)
}

// Fetch downloads one segment after attaching the credential to its URL.
func (f *Fetcher) Fetch(ctx context.Context, part int, rawURL, credential string) ([]byte, error) {
	taskID, err := f.tasks.Add(PartLabel(part), "Download", tasks.StatusRunning)
	if err != nil {
		return nil, err
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse segment url: %v", ErrNetwork, err)
	}
	if err := f.relay.Attach(target, credential); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for part %d: %v", ErrNetwork, part, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	f.log.Debug("fetching segment", slog.Int("part", part), slog.String("host", target.Host))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: part %d: %v", ErrNetwork, part, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: part %d: unexpected status %d", ErrNetwork, part, resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: part %d: read body: %v", ErrNetwork, part, err)
	}

	if err := f.tasks.Update(taskID, tasks.StatusCompleted); err != nil {
		return nil, err
	}
	if f.metrics != nil {
		f.metrics.IncSegmentsFetched()
		f.metrics.AddSegmentBytes(len(content))
	}
	f.log.Debug("segment fetched", slog.Int("part", part), slog.Int("bytes", len(content)))
	return content, nil
}

// FetchWithDuration downloads one segment and measures its playback time,
// by full decode when decode is set and from frame headers otherwise.
func (f *Fetcher) FetchWithDuration(ctx context.Context, part int, rawURL string, decode bool, credential string) (Result, error) {
	content, err := f.Fetch(ctx, part, rawURL, credential)
	if err != nil {
		return Result{}, err
	}

	var duration float64
	if decode {
		taskID, err := f.tasks.Add(PartLabel(part), "Decoding Audio", tasks.StatusRunning)
		if err != nil {
			return Result{}, err
		}
		duration, err = f.decoder.Duration(ctx, content)
		if err != nil {
			return Result{}, fmt.Errorf("part %d: %w", part, err)
		}
		if err := f.tasks.Update(taskID, tasks.StatusCompleted); err != nil {
			return Result{}, err
		}
	} else {
		duration, err = f.metadata.Duration(ctx, content)
		if err != nil {
			return Result{}, fmt.Errorf("part %d: %w", part, err)
		}
	}
	return Result{Part: part, Content: content, Duration: duration}, nil
}
