package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audiobook-capture/internal/assemble"
	"audiobook-capture/internal/capture"
	"audiobook-capture/internal/descriptor"
	"audiobook-capture/internal/intercept"
	"audiobook-capture/internal/platform/config"
	"audiobook-capture/internal/platform/logger"
	"audiobook-capture/internal/platform/metrics"
	"audiobook-capture/internal/segment"
	"audiobook-capture/internal/tasks"

	"github.com/go-chi/chi/v5"
)

const (
	shutdownTimeout = 10 * time.Second
	hookTimeout     = 15 * time.Second
)

func main() {
	_ = config.Load()
	settings := config.LoadSettings()

	log := logger.New(settings.LogLevel, settings.LogFormat)

	tracker, err := openTracker(settings, log)
	if err != nil {
		log.Error("task store unavailable", "store", settings.TaskStore, "error", err)
		os.Exit(1)
	}
	defer tracker.Close()

	decoder, err := descriptor.NewDecoder(settings.DecoderVersion)
	if err != nil {
		log.Error("descriptor decoder unavailable", "version", settings.DecoderVersion, "error", err)
		os.Exit(1)
	}

	jar, err := segment.NewCookieJar()
	if err != nil {
		log.Error("cookie jar", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	bus := intercept.NewBus()

	var metadataProber segment.Prober = segment.FrameScanProber{}
	if settings.FFProbeBinary != "" {
		metadataProber = segment.FFProbeProber{Binary: settings.FFProbeBinary}
	}
	fetcher := segment.NewFetcher(segment.Config{
		Client:    &http.Client{Jar: jar},
		Relay:     segment.NewRelay(jar),
		Tasks:     tracker,
		Log:       logger.Component(log, "segment"),
		Metrics:   met,
		UserAgent: settings.UserAgent,
		Metadata:  metadataProber,
		Decoder:   segment.FullDecodeProber{},
	})

	var reloader intercept.Reloader = intercept.LogReloader{Log: log}
	if settings.ReloadHookURL != "" {
		reloader = intercept.HookReloader{URL: settings.ReloadHookURL, Client: &http.Client{Timeout: hookTimeout}}
	}

	runLog := logger.Component(log, "assemble")
	pipeline := capture.NewPipeline(capture.Config{
		Bus:         bus,
		Reloader:    reloader,
		Tasks:       tracker,
		Accumulator: capture.NewAccumulator(decoder, settings.DescriptorPrefix),
		Merge: &assemble.MergeRunner{
			Source:      fetcher,
			OutputDir:   settings.OutputDir,
			Concurrency: settings.FetchConcurrency,
			Log:         runLog,
		},
		Parts: &assemble.PartsRunner{
			Source:      fetcher,
			OutputDir:   settings.OutputDir,
			Concurrency: settings.FetchConcurrency,
			Log:         runLog,
		},
		Log:     logger.Component(log, "pipeline"),
		Metrics: met,
	})
	h := capture.NewHandler(pipeline, bus, tracker, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetRunning(pipeline.Running()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + settings.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", settings.Port,
		"log_level", settings.LogLevel,
		"output_dir", settings.OutputDir,
		"task_store", settings.TaskStore,
		"decoder", decoder.Version(),
		"fetch_concurrency", settings.FetchConcurrency,
		"reload_hook", settings.ReloadHookURL != "",
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	pipeline.Stop()

	log.Info("server stopped")
}

func openTracker(s config.Settings, log *slog.Logger) (*tasks.Tracker, error) {
	if s.TaskStore != config.TaskStoreSQLite {
		return tasks.NewTracker(), nil
	}
	store, err := tasks.OpenSQLite(context.Background(), s.TaskDBPath)
	if err != nil {
		return nil, err
	}
	log.Info("sqlite task store opened", "path", s.TaskDBPath)
	return tasks.NewTrackerWithStore(store), nil
}
