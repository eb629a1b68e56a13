package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sprintboard/internal/config"
	"sprintboard/internal/dataset"
	"sprintboard/internal/events"
	"sprintboard/internal/httpapi"
	"sprintboard/internal/metrics"
	"sprintboard/internal/store"
	"sprintboard/internal/watch"
)

// App wires the snapshot source, reload watcher and HTTP API together.
type App struct {
	cfg     config.Config
	log     *zap.Logger
	store   *store.Store
	source  Source
	current atomic.Pointer[dataset.Snapshot]
	bus     *events.Bus
	metrics *metrics.Metrics
	handler http.Handler
}

// New opens the configured source. The SQLite store is only opened for the
// sqlite source.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log, bus: events.NewBus(), metrics: metrics.New()}
	var health httpapi.HealthChecker
	switch cfg.Source {
	case config.SourceSQLite:
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.store = st
		a.source = StoreSource{Store: st}
		health = st
	default:
		a.source = CSVSource{Path: cfg.CSVPath, Columns: cfg.Columns}
	}
	a.handler = httpapi.NewRouter(cfg, a, a.bus, a.metrics, health, log).Handler()
	return a, nil
}

// NewWithSource builds an App over an explicit source.
func NewWithSource(cfg config.Config, src Source, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log, source: src, bus: events.NewBus(), metrics: metrics.New()}
	a.handler = httpapi.NewRouter(cfg, a, a.bus, a.metrics, nil, log).Handler()
	return a
}

// Current returns the snapshot being served, or nil before the first load.
func (a *App) Current() *dataset.Snapshot { return a.current.Load() }

// Reload loads a new snapshot and swaps it in. On failure the previous
// snapshot keeps being served.
func (a *App) Reload(ctx context.Context) error {
	snap, err := a.source.Load(ctx)
	a.metrics.RecordReload(err)
	if err != nil {
		a.bus.Publish(events.Event{Kind: events.KindReloadFailed, Error: err.Error(), At: time.Now().UTC()})
		return fmt.Errorf("reload %s: %w", a.source.Describe(), err)
	}
	prev := a.current.Swap(snap)
	fields := []zap.Field{zap.String("snapshot", snap.ID), zap.Int("rows", snap.Len())}
	if prev != nil {
		fields = append(fields, zap.String("previous", prev.ID))
	}
	a.log.Info("snapshot loaded", fields...)
	a.bus.Publish(events.Event{Kind: events.KindSnapshotReloaded, SnapshotID: snap.ID, Rows: snap.Len(), At: time.Now().UTC()})
	return nil
}

// Run loads the first snapshot, then serves HTTP and, for the csv source,
// watches the export until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.Reload(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.EnableWatcher && a.cfg.Source == config.SourceCSV {
		w := watch.New(a.cfg.CSVPath, a, a.log)
		g.Go(func() error { return w.Run(ctx) })
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPPort,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", a.cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

func (a *App) Handler() http.Handler     { return a.handler }
func (a *App) Bus() *events.Bus          { return a.bus }
func (a *App) Metrics() *metrics.Metrics { return a.metrics }
