package estimate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-beready/internal/config"
	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/internal/timeutil"
	"github.com/teslashibe/go-beready/pkg/detection"
)

var (
	// ErrSourceExhausted is returned by a FrameSource with no more frames.
	// io.EOF is accepted with the same meaning.
	ErrSourceExhausted = errors.New("frame source exhausted")

	// ErrAlreadyStarted is returned by a second call to Start. An Engine runs once.
	ErrAlreadyStarted = errors.New("engine already started")
)

// Frame is one processed video frame worth of detections.
type Frame struct {
	Detections []detection.Detection
	Skipped    bool // detector did not run on this frame
}

// FrameSource yields frames until exhausted. Next must return promptly once
// ctx is cancelled.
type FrameSource interface {
	Next(ctx context.Context) (Frame, error)
}

// Associator binds the detections of one frame to stable identities.
type Associator interface {
	Update(dets []detection.Detection) []Track
}

// Engine drives the estimators: a frame loop feeding the target tracker and
// the latest head count, and a periodic sampler loop. Which of the two run
// depends on Config.Strategy.
type Engine struct {
	cfg    Config
	source FrameSource
	assoc  Associator
	store  *Store
	clock  timeutil.Clock
	logger *slog.Logger
	keep   detection.Predicate

	sampler *Sampler
	tracker *TargetTracker

	latest  atomic.Int64 // person count of the most recent processed frame
	frames  atomic.Uint64
	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. assoc may be nil when the strategy does not
// use the target tracker.
func NewEngine(cfg Config, source FrameSource, assoc Associator, store *Store) *Engine {
	return &Engine{
		cfg:    cfg,
		source: source,
		assoc:  assoc,
		store:  store,
		clock:  timeutil.RealClock{},
		logger: log.L(),
		keep:   detection.Persons(cfg.MinConfidence),
	}
}

// SetClock replaces the clock. Call before Start.
func (e *Engine) SetClock(c timeutil.Clock) { e.clock = c }

// SetLogger replaces the logger. Call before Start.
func (e *Engine) SetLogger(l *slog.Logger) { e.logger = l }

// SetPredicate replaces the filter deciding which detections are people.
// Call before Start.
func (e *Engine) SetPredicate(p detection.Predicate) { e.keep = p }

// Running reports whether the frame loop is active.
func (e *Engine) Running() bool { return e.running.Load() }

// Frames returns how many frames the loop has processed.
func (e *Engine) Frames() uint64 { return e.frames.Load() }

// LatestCount returns the person count of the most recent frame.
func (e *Engine) LatestCount() int { return int(e.latest.Load()) }

// Tracker returns the target tracker, or nil when the strategy has none.
// It must only be inspected after the engine has stopped.
func (e *Engine) Tracker() *TargetTracker { return e.tracker }

// Start launches the estimation loops. They stop when ctx is cancelled,
// when Stop is called, or when the source is exhausted. The store keeps the
// last published estimate in every case.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return ErrAlreadyStarted
	}

	useSampler := e.cfg.Strategy.SamplerFields() != 0
	useTracker := e.cfg.Strategy.TrackerFields() != 0
	if useTracker && e.assoc == nil {
		return config.Invalid("associator", "strategy %q needs one", e.cfg.Strategy)
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if useTracker {
		e.tracker = NewTargetTracker(e.cfg, e.store)
		e.tracker.SetClock(e.clock)
		e.tracker.SetLogger(e.logger)
		if e.cfg.InitialWait > 0 {
			e.store.Write(Update{
				Fields:   FieldWaitTime,
				WaitTime: e.cfg.InitialWait,
				Source:   SourceTracker,
				At:       e.clock.Now(),
			})
		}
	}

	e.running.Store(true)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		// Exhausting the source ends the sampler too; the estimate stays put.
		defer cancel()
		defer e.running.Store(false)
		e.frameLoop(ctx)
	}()

	if useSampler {
		e.sampler = NewSampler(e.cfg, e.store)
		e.sampler.SetClock(e.clock)
		e.sampler.SetLogger(e.logger)
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.sampler.Run(ctx, e.LatestCount)
		}()
	}

	e.logger.Info("estimator started",
		"strategy", e.cfg.Strategy,
		"window", e.cfg.WindowSize,
		"interval", e.cfg.SampleInterval,
		"per_person", e.cfg.PerPersonWait,
		"eviction_frames", e.cfg.EvictionThreshold)
	return nil
}

// Stop cancels the loops and waits for them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
}

// Wait blocks until both loops have exited.
func (e *Engine) Wait() { e.wg.Wait() }

func (e *Engine) frameLoop(ctx context.Context) {
	for ctx.Err() == nil {
		f, err := e.source.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF), errors.Is(err, ErrSourceExhausted):
				e.logger.Info("frame source exhausted, keeping last estimate", "frames", e.Frames())
			default:
				e.logger.Warn("frame read failed, stopping estimator", "error", err, "frames", e.Frames())
			}
			return
		}
		e.processFrame(f)
	}
}

func (e *Engine) processFrame(f Frame) {
	e.frames.Add(1)
	if f.Skipped {
		if e.tracker != nil {
			e.tracker.Skip()
		}
		return
	}

	people := detection.Filter(f.Detections, e.keep)
	e.latest.Store(int64(len(people)))

	if e.tracker != nil {
		e.tracker.Step(e.assoc.Update(people))
	}
}
