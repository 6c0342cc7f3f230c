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
	"golang.org/x/sync/errgroup"

	"github.com/starford/daymark/internal/api"
	"github.com/starford/daymark/internal/calendar"
	"github.com/starford/daymark/internal/clock"
	"github.com/starford/daymark/internal/ics"
	"github.com/starford/daymark/internal/mcpserver"
	"github.com/starford/daymark/internal/repository"
	"github.com/starford/daymark/internal/sse"
	"github.com/starford/daymark/internal/state"
	"github.com/starford/daymark/internal/store"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the components shared by every command.
// db is nil when the calendar is kept in memory.
type runtime struct {
	cfg    *Config
	clock  clock.Clock
	logger *slog.Logger
	store  store.Store
	db     *store.DB
	repo   *repository.Repository
}

func setup(opts []Option) (*runtime, error) {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.clock == nil {
		app.clock = clock.System{}
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("sqlite_watch", cfg.SQLite.Watch),
		slog.Duration("grace_period", cfg.State.GracePeriod),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &runtime{
		cfg:    cfg,
		clock:  app.clock,
		logger: logger,
	}
	if cfg.SQLite.InMemory() {
		logger.Warn("sqlite.path is empty, calendar will not be persisted")
		rt.store = store.NewMemory()
	} else {
		db, err := store.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		rt.store, rt.db = db, db
	}
	rt.repo = repository.New(rt.store, logger)
	return rt, nil
}

func (rt *runtime) controller(opts ...state.Option) *state.Controller {
	opts = append([]state.Option{
		state.WithLogger(rt.logger),
		state.WithGracePeriod(rt.cfg.State.GracePeriod),
		state.WithQueueSize(rt.cfg.State.QueueSize),
	}, opts...)
	return state.New(rt.repo, opts...)
}

// watchExternal runs the database file watcher when enabled.
func (rt *runtime) watchExternal(ctx context.Context) error {
	if !rt.cfg.SQLite.Watch || rt.db == nil {
		return nil
	}
	if err := store.WatchExternal(ctx, rt.db, rt.logger); err != nil {
		rt.logger.Warn("external change watcher stopped", slog.String("error", err.Error()))
	}
	return nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	cfg := rt.cfg
	logger := rt.logger

	// The broker is created after the controller, so failures go through a
	// late-bound reference.
	var broker *sse.Broker
	ctrl := rt.controller(state.WithFailureHandler(func(f state.Failure) {
		broker.PublishFailure(f.ID, f.Op, f.Err)
	}))
	defer ctrl.Close()

	broker = sse.NewBroker(
		sse.SharedFeed(sse.TypeEventsSnapshot, ctrl.Events()),
		sse.SharedFeed(sse.TypeMarksSnapshot, ctrl.DayMarks()),
	)
	defer broker.Close()

	apiRouter := api.NewRouter(api.NewHandler(ctrl, rt.clock), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if rt.db == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		if err := rt.db.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Run(gCtx)
	})

	g.Go(func() error {
		return rt.watchExternal(gCtx)
	})

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
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams never finish on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Unblock the controller and watcher when the signal path is taken.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctrl := rt.controller()
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gCtx)
	})
	g.Go(func() error {
		return rt.watchExternal(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		rt.logger.Info("Starting MCP server on stdio")
		return mcpserver.New(ctrl, rt.clock).Serve(gCtx, os.Stdin, os.Stdout)
	})
	return g.Wait()
}

// Export writes every event and day mark to path as iCalendar.
func Export(ctx context.Context, path string, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	ctrl := rt.controller()
	defer ctrl.Close()

	events, err := ctrl.Events().Await(ctx)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	marks, err := ctrl.DayMarks().Await(ctx)
	if err != nil {
		return fmt.Errorf("load day marks: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := ics.Export(f, events, calendar.MarkList(marks), rt.clock.Now()); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	rt.logger.Info("Calendar exported",
		slog.String("path", path),
		slog.Int("events", len(events)),
		slog.Int("marks", len(marks)))
	return nil
}

// Import adds the events and day marks found in an iCalendar file. Imported
// events keep their completion state; existing marks on the same dates are
// replaced.
func Import(ctx context.Context, path string, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.store.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	res, err := ics.Import(f)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	for _, e := range res.Events {
		if _, err := rt.repo.AddEvent(ctx, e); err != nil {
			return fmt.Errorf("add %q on %s: %w", e.Title, e.Date, err)
		}
	}
	for _, m := range res.Marks {
		if err := rt.repo.SetDayMark(ctx, m.Date, &m.Color); err != nil {
			return fmt.Errorf("mark %s: %w", m.Date, err)
		}
	}

	rt.logger.Info("Calendar imported",
		slog.String("path", path),
		slog.Int("events", len(res.Events)),
		slog.Int("marks", len(res.Marks)),
		slog.Int("skipped", res.Skipped))
	return nil
}
