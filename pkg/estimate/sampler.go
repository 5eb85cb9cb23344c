package estimate

import (
	"context"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/internal/timeutil"
)

// SourceSampler names writes coming from the occupancy sampler.
const SourceSampler = "sampler"

// CountFunc returns the latest instantaneous person count.
type CountFunc func() int

// Sampler smooths the noisy per-frame head count into one estimate per
// window: wait = mean(window) * PerPersonWait.
//
// A Sampler is owned by a single goroutine and is not safe for concurrent use.
type Sampler struct {
	capacity  int
	interval  time.Duration
	perPerson time.Duration
	fields    Field
	sink      Sink
	clock     timeutil.Clock
	logger    *slog.Logger

	window []float64
}

// NewSampler creates a sampler publishing into sink. The fields it writes
// follow cfg.Strategy; a strategy that does not use the sampler gets both.
func NewSampler(cfg Config, sink Sink) *Sampler {
	fields := cfg.Strategy.SamplerFields()
	if fields == 0 {
		fields = FieldPeopleCount | FieldWaitTime
	}
	return &Sampler{
		capacity:  cfg.WindowSize,
		interval:  cfg.SampleInterval,
		perPerson: cfg.PerPersonWait,
		fields:    fields,
		sink:      sink,
		clock:     timeutil.RealClock{},
		logger:    log.L(),
		window:    make([]float64, 0, cfg.WindowSize),
	}
}

// SetClock replaces the clock used for ticking and timestamps.
func (s *Sampler) SetClock(c timeutil.Clock) { s.clock = c }

// SetLogger replaces the logger.
func (s *Sampler) SetLogger(l *slog.Logger) { s.logger = l }

// Len returns how many samples the current window holds.
func (s *Sampler) Len() int { return len(s.window) }

// Sample appends one instantaneous count. Negative counts are treated as zero.
// Samples beyond capacity are dropped until the window is flushed.
func (s *Sampler) Sample(count int) {
	if len(s.window) >= s.capacity {
		return
	}
	s.window = append(s.window, float64(max(count, 0)))
}

// FlushIfFull publishes and clears the window once it reaches capacity.
func (s *Sampler) FlushIfFull() (Update, bool) {
	if len(s.window) < s.capacity {
		return Update{}, false
	}
	return s.Flush()
}

// Flush publishes the average of whatever the window holds and clears it.
// An empty window is a no-op.
func (s *Sampler) Flush() (Update, bool) {
	if len(s.window) == 0 {
		return Update{}, false
	}

	avg := stat.Mean(s.window, nil)
	u := Update{
		Fields:      s.fields,
		PeopleCount: int(math.Round(avg)),
		WaitTime:    time.Duration(avg * float64(s.perPerson)),
		Source:      SourceSampler,
		At:          s.clock.Now(),
	}
	samples := len(s.window)
	s.window = s.window[:0]

	s.sink.Write(u)
	s.logger.Debug("occupancy window flushed",
		"samples", samples, "avg", avg, "people", u.PeopleCount, "wait", u.WaitTime)
	return u, true
}

// Run samples count once per interval until ctx is cancelled. The window in
// progress at cancellation is discarded without publishing.
func (s *Sampler) Run(ctx context.Context, count CountFunc) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.Sample(count())
			s.FlushIfFull()
		}
	}
}
