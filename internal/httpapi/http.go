package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"sprintboard/internal/config"
	"sprintboard/internal/dashboard"
	"sprintboard/internal/dataset"
	"sprintboard/internal/events"
	"sprintboard/internal/metrics"
	"sprintboard/internal/pipeline"
)

// SnapshotProvider hands out the snapshot currently being served.
type SnapshotProvider interface {
	Current() *dataset.Snapshot
}

// HealthChecker reports backing storage health.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Router builds the read-only JSON API consumed by the dashboard renderer.
type Router struct {
	cfg       config.Config
	snapshots SnapshotProvider
	bus       *events.Bus
	metrics   *metrics.Metrics
	health    HealthChecker
	log       *zap.Logger
}

func NewRouter(cfg config.Config, snapshots SnapshotProvider, bus *events.Bus, m *metrics.Metrics, health HealthChecker, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Router{cfg: cfg, snapshots: snapshots, bus: bus, metrics: m, health: health, log: log}
}

// Handler returns the routed API.
func (r *Router) Handler() http.Handler {
	m := mux.NewRouter()
	r.Register(m)
	return m
}

func (r *Router) Register(m *mux.Router) {
	api := m.PathPrefix("/api").Subrouter()
	api.HandleFunc("/view", r.view).Methods(http.MethodGet)
	api.HandleFunc("/views", r.views).Methods(http.MethodGet)
	api.HandleFunc("/options", r.options).Methods(http.MethodGet)
	api.HandleFunc("/status", r.status).Methods(http.MethodGet)
	api.HandleFunc("/health", r.healthz).Methods(http.MethodGet)
	if r.bus != nil {
		api.HandleFunc("/ws", r.stream).Methods(http.MethodGet)
	}
}

// selectionFromQuery reads project, sprint and type; absent or "All" means
// unrestricted.
func selectionFromQuery(req *http.Request) pipeline.Selection {
	q := req.URL.Query()
	sel := pipeline.Selection{}
	for param, dim := range map[string]pipeline.Dimension{
		"project": pipeline.DimProject,
		"sprint":  pipeline.DimSprint,
		"type":    pipeline.DimStoryType,
	} {
		if v := strings.TrimSpace(q.Get(param)); v != "" && v != pipeline.All {
			sel[dim] = v
		}
	}
	return sel
}

func (r *Router) view(w http.ResponseWriter, req *http.Request) {
	name := req.URL.Query().Get("view")
	spec, ok := r.cfg.View(name)
	if !ok {
		http.Error(w, "unknown view "+name, http.StatusNotFound)
		return
	}
	sel := selectionFromQuery(req)
	snap := r.snapshots.Current()
	if snap == nil {
		r.metrics.RecordView(errNoSnapshot)
		r.respondJSON(w, http.StatusServiceUnavailable, dashboard.Placeholder(spec, sel, errNoSnapshot))
		return
	}
	view, err := dashboard.Build(snap, spec, sel, strings.TrimSpace(req.URL.Query().Get("drill")))
	r.metrics.RecordView(err)
	if err != nil {
		r.log.Info("view rejected", zap.String("view", spec.Name), zap.Any("selection", sel), zap.Error(err))
		r.respondJSON(w, statusFor(err), dashboard.Placeholder(spec, sel, err))
		return
	}
	r.respondJSON(w, http.StatusOK, view)
}

func (r *Router) views(w http.ResponseWriter, req *http.Request) {
	out := make([]dashboard.ViewSpec, 0, len(r.cfg.Dashboard.Views))
	for _, v := range r.cfg.Dashboard.Views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	r.respondJSON(w, http.StatusOK, out)
}

// OptionsError is the body returned when filter choices cannot be computed.
type OptionsError struct {
	State     string             `json:"state"`
	Message   string             `json:"message"`
	Selection pipeline.Selection `json:"selection"`
}

func (r *Router) options(w http.ResponseWriter, req *http.Request) {
	sel := selectionFromQuery(req)
	snap := r.snapshots.Current()
	if snap == nil {
		r.respondJSON(w, http.StatusServiceUnavailable, OptionsError{
			State:     dashboard.StateFor(errNoSnapshot),
			Message:   errNoSnapshot.Error(),
			Selection: sel,
		})
		return
	}
	opts, err := pipeline.Options(snap.Records(), sel)
	if err != nil {
		r.log.Info("options rejected", zap.Any("selection", sel), zap.Error(err))
		r.respondJSON(w, statusFor(err), OptionsError{
			State:     dashboard.StateFor(err),
			Message:   err.Error(),
			Selection: sel,
		})
		return
	}
	r.respondJSON(w, http.StatusOK, opts)
}

func (r *Router) status(w http.ResponseWriter, req *http.Request) {
	payload := map[string]any{"metrics": r.metrics.Snapshot()}
	if snap := r.snapshots.Current(); snap != nil {
		payload["snapshot"] = map[string]any{
			"id":        snap.ID,
			"source":    snap.Source,
			"loaded_at": snap.LoadedAt,
			"rows":      snap.Len(),
		}
	}
	if r.bus != nil {
		payload["subscribers"] = r.bus.Subscribers()
	}
	r.respondJSON(w, http.StatusOK, payload)
}

func (r *Router) healthz(w http.ResponseWriter, req *http.Request) {
	if r.snapshots.Current() == nil {
		http.Error(w, errNoSnapshot.Error(), http.StatusServiceUnavailable)
		return
	}
	if r.health != nil {
		if err := r.health.Health(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var errNoSnapshot = errors.New("no snapshot loaded")

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidFilterValue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dataset.ErrMissingColumn):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (r *Router) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.log.Warn("write json", zap.Error(err))
	}
}
