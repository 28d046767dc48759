// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/dagaz/internal/api"
	"github.com/starford/dagaz/internal/mcpserver"
	"github.com/starford/dagaz/internal/metrics"
	"github.com/starford/dagaz/internal/query"
	"github.com/starford/dagaz/internal/service"
	"github.com/starford/dagaz/internal/source"
	"github.com/starford/dagaz/internal/sse"
	"github.com/starford/dagaz/internal/store"
	"github.com/starford/dagaz/internal/syncer"
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

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("source_kind", cfg.Source.Kind),
		slog.String("store_kind", cfg.Store.Kind),
		slog.String("log_level", cfg.App.LogLevel.String()))

	src, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	// SSE broker doubles as the sync progress notifier.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	coord := syncer.New(src, st, logger,
		syncer.WithNotifier(broker),
		syncer.WithMetrics(m))

	// Run initial sync.
	if cfg.Sync.Initial {
		if _, err := coord.Sync(ctx, false); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}

	// Build API service and router.
	svc := service.New(st, coord, cfg.Store.PreviewLimit, m)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status, err := st.Status()
		if err != nil || !status.Ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"loading"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus metrics (unauthenticated).
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the source directory and resync on changes.
	if cfg.Sync.Watch && cfg.Source.Kind == SourceDir {
		g.Go(func() error {
			if err := syncer.Watch(gCtx, coord, cfg.Source.Dir.Path, cfg.Source.Filter(), 0, logger); err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunSync runs one reconciliation pass against the configured source and
// exits. full rebuilds the store from scratch.
func RunSync(ctx context.Context, cfg *Config, full bool) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	src, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	coord := syncer.New(src, st, logger)
	sum, err := coord.Sync(ctx, full)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	logger.Info("Sync finished",
		slog.Int("synced", sum.Synced),
		slog.Int("deleted", sum.Deleted),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("failed", sum.Failed),
		slog.Int("files", sum.Files),
		slog.Int("records", sum.Records))
	return nil
}

// RunMCP serves the MCP server over stdio. Logs go to stderr because
// stdout carries the MCP transport.
func RunMCP(ctx context.Context, cfg *Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	src, err := buildSource(cfg)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}

	st, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	coord := syncer.New(src, st, logger)

	if cfg.Sync.Initial {
		if _, err := coord.Sync(ctx, false); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}

	svc := service.New(st, coord, cfg.Store.PreviewLimit, nil)
	srv := mcpserver.New(svc)

	logger.Info("Starting MCP server on stdio")
	return srv.ServeStdio()
}

func buildSource(cfg *Config) (source.Source, error) {
	switch cfg.Source.Kind {
	case SourceBucket:
		return source.NewBucket(cfg.Source.Bucket.URL, cfg.Source.Bucket.Token, cfg.Source.Filter()), nil
	default:
		if err := os.MkdirAll(cfg.Source.Dir.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create source dir: %w", err)
		}
		return source.NewDir(cfg.Source.Dir.Path, cfg.Source.Filter())
	}
}

func buildStore(cfg *Config) (store.RecordStore, error) {
	presence, err := query.ParsePresence(cfg.Store.Presence)
	if err != nil {
		return nil, err
	}
	if cfg.Store.Kind == StoreMemory {
		return store.NewMemory(presence, cfg.Store.MaxResults), nil
	}
	return store.OpenSQLite(cfg.Store.Path, presence, cfg.Store.MaxResults)
}
