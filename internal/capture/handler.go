package capture

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"audiobook-capture/internal/intercept"
	"audiobook-capture/internal/platform/metrics"
	"audiobook-capture/internal/tasks"

	"github.com/go-chi/chi/v5"
)

// maxObservationBytes bounds a forwarded response body.
const maxObservationBytes = 32 << 20

// TaskLister exposes the ordered task list.
type TaskLister interface {
	List() ([]tasks.Task, error)
}

// Handler exposes the control and observation endpoints using go-chi.
type Handler struct {
	pipeline *Pipeline
	bus      *intercept.Bus
	tasks    TaskLister
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewHandler returns a Handler. Metrics may be nil to disable metric
// recording (e.g. in tests).
func NewHandler(p *Pipeline, bus *intercept.Bus, tl TaskLister, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{pipeline: p, bus: bus, tasks: tl, log: log, metrics: m}
}

// Routes mounts the endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/commands", h.Command)
	r.Post("/observations", h.Observe)
	r.Get("/tasks", h.ListTasks)
	r.Get("/status", h.Status)
}

type commandResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Command handles POST /commands.
// Body: { "cmd": "start", "args": { "merge": true, "decode": false } }.
func (h *Handler) Command(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		h.log.Debug("invalid command body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted, err := h.pipeline.Handle(r.Context(), cmd)
	switch {
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, commandResponse{Result: "failed", Error: err.Error()})
	case !accepted:
		writeJSON(w, http.StatusOK, commandResponse{Result: "ignored"})
	default:
		writeJSON(w, http.StatusAccepted, commandResponse{Result: "started"})
	}
}

type observeResponse struct {
	Delivered int `json:"delivered"`
}

// Observe handles POST /observations.
// Body: { "url": "...", "method": "GET", "type": "main_frame", "body": "..." }.
func (h *Handler) Observe(w http.ResponseWriter, r *http.Request) {
	var o intercept.Observation
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxObservationBytes)).Decode(&o); err != nil {
		h.log.Debug("invalid observation body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if o.URL == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	n := h.bus.Publish(r.Context(), o)
	if n == 0 && h.metrics != nil {
		h.metrics.IncObservation("any", "unsubscribed")
	}
	writeJSON(w, http.StatusAccepted, observeResponse{Delivered: n})
}

// ListTasks handles GET /tasks.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	list, err := h.tasks.List()
	if err != nil {
		h.log.Error("list tasks failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []tasks.Task{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipeline.Status())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
