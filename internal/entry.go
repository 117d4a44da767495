// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/specbook-dev/specbook/internal/api"
	"github.com/specbook-dev/specbook/internal/docservice"
	"github.com/specbook-dev/specbook/internal/index"
	"github.com/specbook-dev/specbook/internal/mcpserver"
	"github.com/specbook-dev/specbook/internal/metrics"
	"github.com/specbook-dev/specbook/internal/scanner"
	"github.com/specbook-dev/specbook/internal/sse"
	"github.com/specbook-dev/specbook/internal/storage"
	"github.com/specbook-dev/specbook/internal/store"
	"github.com/specbook-dev/specbook/internal/watcher"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := newLogger(cfg, app.mcpMode)
	slog.SetDefault(logger)

	root, err := filepath.Abs(cfg.Workspace.Root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("workspace_root", root),
		slog.String("log_level", cfg.App.LogLevel.String()),
		slog.Bool("mcp_mode", app.mcpMode))

	// Durable storage over the workspace root.
	vault, err := storage.NewFS(root)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// In-memory document store and search index. The markdown files on
	// disk remain the only durable state.
	docs := store.New()

	idx, err := index.Open("")
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer idx.Close()

	broker := sse.NewBroker()
	defer broker.Close()

	// Every store mutation fans out to the broker, the search index, and
	// the tracked-documents gauge. Registered before the initial sync so
	// the index is populated by the same event flow that keeps it current.
	docs.OnChange(func(ev store.Event) {
		broker.Publish(ev)
		if err := idx.ApplyEvent(ev); err != nil {
			logger.Warn("index update failed", slog.String("path", ev.Path), slog.String("error", err.Error()))
		}
		switch ev.Kind {
		case store.EventCreated:
			metrics.DocumentsTracked.Inc()
		case store.EventDeleted:
			metrics.DocumentsTracked.Dec()
		}
	})

	scan := scanner.New(root, logger)
	rec := watcher.NewReconciler(root, scan, docs, logger)

	// Initial full sync. An unreadable root is the only fatal condition;
	// unreadable subtrees surface as diagnostics.
	if err := rec.SyncAll(); err != nil {
		return fmt.Errorf("initial workspace sync: %w", err)
	}
	logger.Info("Workspace synchronized", slog.Int("documents", len(docs.Paths(""))))

	svc := docservice.NewService(docs, vault)

	g, gCtx := errgroup.WithContext(ctx)

	// File watcher keeps the store reconciled with external edits.
	g.Go(func() error {
		return watcher.Watch(gCtx, rec, root, watcher.Config{
			Debounce:       cfg.Watch.Debounce(),
			FallbackRescan: cfg.Watch.FallbackRescan(),
		}, logger)
	})

	if app.mcpMode {
		return runMCP(g, svc, docs, idx, logger)
	}
	return runHTTP(gCtx, g, cfg, svc, idx, broker, logger)
}

// runHTTP serves the REST API, SSE stream, health probes, and metrics.
func runHTTP(ctx context.Context, g *errgroup.Group, cfg *Config, svc *docservice.Service, idx index.DocumentIndex, broker *sse.Broker, logger *slog.Logger) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/api", api.NewRouter(svc, idx, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-ctx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// runMCP serves the Model Context Protocol over stdio. stdout carries the
// protocol, so logging has already been routed elsewhere by newLogger.
func runMCP(g *errgroup.Group, svc *docservice.Service, docs *store.Store, idx index.DocumentIndex, logger *slog.Logger) error {
	srv := mcpserver.New(svc, docs, idx)

	g.Go(func() error {
		logger.Info("Starting MCP server on stdio")
		if err := srv.ServeStdio(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// newLogger builds the structured JSON logger. In MCP mode stdout belongs
// to the protocol, so logs go to a rotating file (or stderr without one).
func newLogger(cfg *Config, mcpMode bool) *slog.Logger {
	var out io.Writer = os.Stdout
	switch {
	case cfg.App.LogFile != "":
		out = &lumberjack.Logger{
			Filename:   cfg.App.LogFile,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
	case mcpMode:
		out = os.Stderr
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}
