package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/CTAG07/Trellis/pkg/library"
	"github.com/CTAG07/Trellis/pkg/preview"
	"github.com/CTAG07/Trellis/pkg/projects"
	"github.com/CTAG07/Trellis/pkg/render"
	"github.com/CTAG07/Trellis/pkg/templating"
	"golang.org/x/sync/errgroup"
)

// previewCache is a preview store that can also be swept and inspected.
type previewCache interface {
	preview.Store
	preview.Maintainer
}

// Server owns every component of one server cycle.
type Server struct {
	cm        *ConfigManager
	config    Config
	db        *sql.DB
	logger    *slog.Logger
	telemetry *Telemetry
	lib       *library.Library
	tm        *templating.TemplateManager
	cache     previewCache
	sqlCache  *preview.SQLiteStore
	projects  *projects.Store
	stats     *StatsSink
	renderer  *render.Orchestrator
	apiMux    *http.ServeMux
}

// setupSchemas creates every table the server uses.
func setupSchemas(db *sql.DB) error {
	if err := preview.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to setup preview schema: %w", err)
	}
	if err := projects.SetupSchema(db); err != nil {
		return fmt.Errorf("failed to setup projects schema: %w", err)
	}
	if err := setupStatsSchema(db); err != nil {
		return fmt.Errorf("failed to setup stats schema: %w", err)
	}
	return nil
}

// NewServer builds the component graph from the current configuration.
// actionChan may be nil for one-shot commands that never serve HTTP.
func NewServer(cm *ConfigManager, logger *slog.Logger, db *sql.DB, actionChan chan string) (*Server, error) {
	config := cm.Get()

	if err := os.MkdirAll(filepath.Join(config.Server.LibraryPath, library.SnippetsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create library directory: %w", err)
	}

	telemetry := NewTelemetry(config.Telemetry, logger)

	lib, err := library.New(os.DirFS(config.Server.LibraryPath), logger)
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to load library: %w", err)
	}

	tm, err := templating.NewTemplateManager(logger, config.Templates, filepath.Join(config.Server.LibraryPath, library.SnippetsDir))
	if err != nil {
		_ = telemetry.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create template manager: %w", err)
	}
	cm.SetTemplateManager(tm)

	s := &Server{
		cm:        cm,
		config:    config,
		db:        db,
		logger:    logger,
		telemetry: telemetry,
		lib:       lib,
		tm:        tm,
		projects:  projects.NewStore(db, time.Now),
		stats:     NewStatsSink(db),
		apiMux:    http.NewServeMux(),
	}
	s.projects.SetLogger(logger)

	switch config.Cache.Backend {
	case "memory":
		s.cache = preview.NewMemoryStore(time.Now)
	default:
		s.sqlCache, err = preview.NewSQLiteStore(db, time.Now)
		if err != nil {
			_ = telemetry.Shutdown(context.Background())
			return nil, fmt.Errorf("failed to create preview store: %w", err)
		}
		s.sqlCache.SetLogger(logger)
		s.cache = s.sqlCache
	}

	sinks := render.FanOut{}
	if config.Telemetry.LogRenders {
		sinks = append(sinks, render.LogSink{Logger: logger})
	}
	if config.Telemetry.RecordStats {
		sinks = append(sinks, s.stats)
	}
	otelSink, err := render.NewOTelSink(telemetry.Meter(render.TracerName))
	if err != nil {
		s.Close(context.Background())
		return nil, fmt.Errorf("failed to create render instruments: %w", err)
	}
	sinks = append(sinks, otelSink)

	s.renderer = render.New(
		render.Composite{Library: lib, Projects: s.projects},
		render.Composite{Library: lib, Projects: s.projects},
		s.cache,
		tm,
		render.WithTTLPolicy(config.Cache.TTLPolicy()),
		render.WithLogger(logger),
		render.WithTracer(telemetry.Tracer(render.TracerName)),
		render.WithMetricsSink(sinks),
	)

	NewRenderAPI(s.renderer, logger).RegisterRoutes(s.apiMux)
	NewLibraryAPI(lib, tm, logger).RegisterRoutes(s.apiMux)
	NewProjectAPI(s.projects, lib, logger).RegisterRoutes(s.apiMux)
	NewTemplateAPI(tm, lib, logger).RegisterRoutes(s.apiMux)
	NewCacheAPI(s.cache, logger).RegisterRoutes(s.apiMux)
	NewStatsAPI(s.stats, telemetry, logger).RegisterRoutes(s.apiMux)
	NewServerAPI(cm, actionChan, logger).RegisterRoutes(s.apiMux)

	return s, nil
}

// Handler returns the traced API handler.
func (s *Server) Handler() http.Handler {
	return s.telemetry.TraceRequests(s.apiMux)
}

// sweepLoop removes expired previews every interval until ctx is done.
func (s *Server) sweepLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.cache.Sweep(ctx)
			if err != nil {
				s.logger.Warn("Scheduled preview sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("Swept expired previews", "removed", n)
			}
		}
	}
}

// Serve runs the API server and the sweeper until an action arrives, then
// shuts both down and returns the action.
func (s *Server) Serve(actionChan chan string) (string, error) {
	httpServer := &http.Server{
		Addr:              s.config.Server.ApiAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting api server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.sweepLoop(gctx, time.Duration(s.config.Cache.SweepIntervalSec)*time.Second)
	})
	if s.config.Server.WatchLibrary {
		watcher, err := newLibraryWatcher(s.config.Server.LibraryPath, s.reloadLibrary, s.logger)
		if err != nil {
			s.logger.Warn("Library watcher disabled", "error", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	var action string
	select {
	case action = <-actionChan:
	case <-gctx.Done():
		action = actionShutdown
	}

	s.logger.Info("Stopping server for " + action + "...")
	timeout := time.Duration(s.config.Server.ShutdownTimeoutSec) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Api server shutdown failed", "error", err)
	}
	cancel()
	if err := g.Wait(); err != nil {
		return "", err
	}
	s.logger.Info("HTTP server stopped.")
	return action, nil
}

func (s *Server) reloadLibrary() {
	if err := s.lib.Refresh(); err != nil {
		s.logger.Warn("Library reload failed", "error", err)
	}
	if err := s.tm.Refresh(); err != nil {
		s.logger.Warn("Partials reload failed", "error", err)
	}
}

// Close releases the store and flushes telemetry. The database is owned by
// the caller.
func (s *Server) Close(ctx context.Context) {
	if s.sqlCache != nil {
		s.sqlCache.Close()
	}
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Warn("Telemetry shutdown failed", "error", err)
	}
}
