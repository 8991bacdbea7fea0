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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/postdesk/internal/api"
	"github.com/starford/postdesk/internal/mcpserver"
	"github.com/starford/postdesk/internal/models"
	"github.com/starford/postdesk/internal/posts"
	"github.com/starford/postdesk/internal/postservice"
	"github.com/starford/postdesk/internal/sse"
	"github.com/starford/postdesk/internal/storage"
	"github.com/starford/postdesk/internal/validate"
	"github.com/starford/postdesk/internal/workflow"
)

const statsThrottle = 2 * time.Second

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openStore returns the injected store or opens the configured backend.
func (a *application) openStore(ctx context.Context) (storage.Store, func() error, error) {
	if a.store != nil {
		return a.store, func() error { return nil }, nil
	}
	store, closeFn, err := storage.Open(ctx, a.config.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	return store, closeFn, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func healthOK(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("config loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_driver", cfg.Store.Driver),
		slog.String("store_path", cfg.Store.Path),
		slog.String("autosave_interval", cfg.Composer.AutosaveInterval.String()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, closeStore, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("storage: close failed", slog.String("error", err.Error()))
		}
	}()

	broker := sse.NewBroker(statsThrottle)
	defer broker.Close()

	repo := posts.NewRepository(store)
	wf := workflow.New(store, repo, broker, logger, cfg.Composer.WorkflowOptions())
	defer wf.Teardown()
	svc := postservice.NewService(store, repo)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", healthOK)
	r.Get("/health/ready", healthOK)

	r.Mount("/api", api.NewRouter(wf, svc, broker))

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Changes made by another process (CLI import, MCP) reach the dashboard
	// only through the FS watcher.
	if fs, ok := store.(*storage.FS); ok {
		g.Go(func() error {
			return storage.Watch(gCtx, fs, []string{models.DraftKey, models.PostsKey}, logger, broker.PublishStoreEvent)
		})
	}

	g.Go(func() error {
		logger.Info("http: listening", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("context cancelled, initiating shutdown")
		}

		wf.Teardown()
		// Open event streams never finish on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http: shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("server stopped")
	return nil
}

// ServeMCP serves the MCP tools on stdin/stdout. Logs go to stderr.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, app.config.App.LogLevel)
	slog.SetDefault(logger)

	store, closeStore, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	svc := postservice.NewService(store, posts.NewRepository(store))
	logger.Info("mcp: serving on stdio", slog.String("store_driver", app.config.Store.Driver))
	return mcpserver.New(svc, app.config.Composer.MaxCoverBytes).ServeStdio()
}

// ImportDraft parses a Markdown document into the persisted draft. A
// document failing content validation is reported through errs and not
// written.
func ImportDraft(ctx context.Context, markdown []byte, opts ...Option) (models.DraftFields, validate.Errors, error) {
	app, err := newApplication(opts)
	if err != nil {
		return models.DraftFields{}, nil, err
	}
	store, closeStore, err := app.openStore(ctx)
	if err != nil {
		return models.DraftFields{}, nil, err
	}
	defer func() { _ = closeStore() }()

	return postservice.NewService(store, posts.NewRepository(store)).ImportDraft(ctx, markdown)
}

// ExportPost writes the committed post id to w as Markdown.
func ExportPost(ctx context.Context, id string, w io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	store, closeStore, err := app.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	md, err := postservice.NewService(store, posts.NewRepository(store)).PostMarkdown(ctx, id)
	if err != nil {
		return err
	}
	_, err = w.Write(md)
	return err
}
