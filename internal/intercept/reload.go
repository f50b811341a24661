package intercept

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
)

// Reloader forces the observed page to load again so its traffic passes
// through the freshly installed subscribers.
type Reloader interface {
	Reload(ctx context.Context) error
}

// HookReloader asks the interceptor to reload the tab by POSTing to its
// control hook.
type HookReloader struct {
	URL    string
	Client *http.Client
}

// Reload implements Reloader.
func (h HookReloader) Reload(ctx context.Context) error {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader([]byte(`{"action":"reload"}`)))
	if err != nil {
		return fmt.Errorf("build reload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reload hook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("reload hook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// LogReloader only logs; the user reloads the page by hand.
type LogReloader struct {
	Log *slog.Logger
}

// Reload implements Reloader.
func (l LogReloader) Reload(context.Context) error {
	if l.Log != nil {
		l.Log.Info("no reload hook configured, reload the reader page manually")
	}
	return nil
}
