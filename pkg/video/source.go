// Package video turns a stream of camera frames into estimate.Frame values,
// running the person detector on every Nth frame.
package video

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-beready/internal/config"
	"github.com/teslashibe/go-beready/pkg/detection"
	"github.com/teslashibe/go-beready/pkg/estimate"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("video source closed")

// Config describes the camera stream.
type Config struct {
	URL            string `yaml:"url"`             // file path, RTSP/HTTP URL or device index
	Width          int    `yaml:"width"`           // frames are resized to Width x Height before detection
	Height         int    `yaml:"height"`          //
	DetectInterval int    `yaml:"detect_interval"` // run the detector on every Nth frame
	BufferSize     int    `yaml:"buffer_size"`     // capture buffer; 1 keeps live streams current
}

// DefaultConfig returns a 640x360 stream with detection on every frame.
func DefaultConfig() Config {
	return Config{
		URL:            "0",
		Width:          640,
		Height:         360,
		DetectInterval: 1,
		BufferSize:     1,
	}
}

// Validate checks the stream settings.
func (c Config) Validate() error {
	if c.URL == "" {
		return config.Invalid("url", "required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return config.Invalid("size", "must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.DetectInterval <= 0 {
		return config.Invalid("detect_interval", "must be > 0, got %d", c.DetectInterval)
	}
	return nil
}

// FrameReader is a camera that can advance one frame at a time.
// Close may be called while Grab is blocked and must make it return.
type FrameReader interface {
	// Grab reads the next frame. It returns false when the stream has ended
	// or the frame could not be read.
	Grab() bool

	// Detect runs person detection on the last grabbed frame.
	Detect() ([]detection.Detection, error)

	Close() error
}

type result struct {
	frame estimate.Frame
	err   error
}

// Source adapts a FrameReader to estimate.FrameSource. Reads run on their
// own goroutine so Next returns as soon as ctx is cancelled, even when the
// camera has stalled.
type Source struct {
	reader   FrameReader
	interval uint64
	count    atomic.Uint64

	busy chan struct{} // one read in flight at a time

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ estimate.FrameSource = (*Source)(nil)

// NewSource wraps r, detecting on every interval-th frame. Intervals below 1
// are treated as 1.
func NewSource(r FrameReader, interval int) *Source {
	if interval < 1 {
		interval = 1
	}
	return &Source{
		reader:   r,
		interval: uint64(interval),
		busy:     make(chan struct{}, 1),
	}
}

// Next grabs one frame. A failed read ends the stream with
// estimate.ErrSourceExhausted.
func (s *Source) Next(ctx context.Context) (estimate.Frame, error) {
	if err := ctx.Err(); err != nil {
		return estimate.Frame{}, err
	}
	if s.closed.Load() {
		return estimate.Frame{}, ErrClosed
	}

	// A read abandoned by an earlier cancelled call may still hold the slot.
	select {
	case s.busy <- struct{}{}:
	case <-ctx.Done():
		return estimate.Frame{}, ctx.Err()
	}

	done := make(chan result, 1)
	go func() {
		defer func() { <-s.busy }()
		done <- s.read()
	}()

	select {
	case r := <-done:
		return r.frame, r.err
	case <-ctx.Done():
		return estimate.Frame{}, ctx.Err()
	}
}

func (s *Source) read() result {
	if !s.reader.Grab() {
		if s.closed.Load() {
			return result{err: ErrClosed}
		}
		return result{err: estimate.ErrSourceExhausted}
	}
	n := s.count.Add(1)
	if n%s.interval != 0 {
		return result{frame: estimate.Frame{Skipped: true}}
	}

	dets, err := s.reader.Detect()
	if err != nil {
		return result{err: err}
	}
	return result{frame: estimate.Frame{Detections: dets}}
}

// Count returns how many frames have been read.
func (s *Source) Count() uint64 { return s.count.Load() }

// Close releases the reader, unblocking a read in progress. Safe to call
// more than once and concurrently with Next.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.reader.Close()
	})
	return s.closeErr
}
