package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/pkg/association"
	"github.com/teslashibe/go-beready/pkg/estimate"
	"github.com/teslashibe/go-beready/pkg/web"
)

// Source is a frame source that owns a camera.
type Source interface {
	estimate.FrameSource
	Close() error
}

// SourceOpener connects to the camera described by cfg.
type SourceOpener func(cfg Config) (Source, error)

// Option customises an App.
type Option func(*App)

// WithSourceOpener sets how Init opens the camera.
func WithSourceOpener(open SourceOpener) Option {
	return func(a *App) { a.openSource = open }
}

// App is the queue estimation service.
// It manages all components and their lifecycle.
type App struct {
	config   Config
	instance string
	logger   *slog.Logger

	openSource SourceOpener
	source     Source
	store      *estimate.Store
	engine     *estimate.Engine
	server     *web.Server

	unsubscribe func()
	closeSource sync.Once
	shutdown    sync.Once
}

// New creates the service. cfg must already carry file, env and flag
// overrides.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		config:   cfg,
		instance: uuid.NewString(),
	}
	a.logger = log.With("instance", a.instance)
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Init opens the camera and builds the estimator and server.
// Call this after New() and before Run().
func (a *App) Init() error {
	if a.openSource == nil {
		return errors.New("no video source configured")
	}
	src, err := a.openSource(a.config)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	a.source = src

	a.store = estimate.NewStore()

	var assoc estimate.Associator
	if a.config.Estimate.Strategy.TrackerFields() != 0 {
		assoc = association.NewIoUTracker(a.config.Association)
	}
	a.engine = estimate.NewEngine(a.config.Estimate, a.source, assoc, a.store)
	a.engine.SetLogger(a.logger.With("component", "estimator"))

	a.server = web.NewServer(a.config.Addr, a.instance, a.store, func() web.Status {
		return web.Status{
			Running:     a.engine.Running(),
			Frames:      a.engine.Frames(),
			LatestCount: a.engine.LatestCount(),
		}
	})
	a.unsubscribe = a.store.Subscribe(a.server.Publish)

	a.logger.Info("service initialised",
		"video", a.config.Video.URL,
		"strategy", a.config.Estimate.Strategy,
		"addr", a.config.Addr)
	return nil
}

// Run starts estimating and serving. It blocks until ctx is cancelled or the
// server fails. Running out of frames is not an error; the last estimate
// stays available.
func (a *App) Run(ctx context.Context) error {
	if a.engine == nil {
		return errors.New("queue: Run before Init")
	}
	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start estimator: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start(ctx) }()

	select {
	case <-ctx.Done():
		// A stalled camera must not hold the frame loop past cancellation.
		a.releaseSource()
		return nil
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// GetEstimate returns the latest published estimate.
func (a *App) GetEstimate() estimate.State {
	if a.store == nil {
		return estimate.State{}
	}
	return a.store.Read()
}

// Server returns the query server, nil before Init.
func (a *App) Server() *web.Server { return a.server }

// Instance returns this process's random ID.
func (a *App) Instance() string { return a.instance }

// releaseSource closes the camera once, unblocking any read in progress.
func (a *App) releaseSource() {
	a.closeSource.Do(func() {
		if a.source == nil {
			return
		}
		if err := a.source.Close(); err != nil {
			a.logger.Warn("close video", "error", err)
		}
	})
}

// Shutdown closes the camera, then stops the estimator and the server. Safe
// to call more than once.
func (a *App) Shutdown() {
	a.shutdown.Do(func() {
		a.releaseSource()
		if a.engine != nil {
			a.engine.Stop()
		}
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		if a.server != nil {
			if err := a.server.Shutdown(a.config.ShutdownTimeout); err != nil {
				a.logger.Warn("http shutdown", "error", err)
			}
		}
		st := a.GetEstimate()
		a.logger.Info("service stopped", "people", st.PeopleCount, "wait", st.WaitTime)
	})
}
