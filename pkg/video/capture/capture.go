// Package capture reads camera frames with OpenCV and runs YOLO on them.
package capture

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/pkg/detection"
	"github.com/teslashibe/go-beready/pkg/detection/yolo"
	"github.com/teslashibe/go-beready/pkg/video"
)

// Detector finds objects in a decoded BGR frame. *yolo.Detector is the
// production implementation.
type Detector interface {
	DetectMat(img gocv.Mat) ([]detection.Detection, error)
	Close() error
}

var _ Detector = (*yolo.Detector)(nil)

// Reader implements video.FrameReader over a gocv.VideoCapture.
type Reader struct {
	cap      *gocv.VideoCapture
	detector Detector
	size     image.Point
	logger   *slog.Logger

	mu      sync.Mutex // guards the frame buffers and closed
	frame   gocv.Mat
	resized gocv.Mat
	closed  bool

	released    atomic.Bool
	releaseOnce sync.Once
	releaseErr  error
}

var _ video.FrameReader = (*Reader)(nil)

// Open connects to cfg.URL. A numeric URL selects a local camera.
// The reader owns det and closes it on Close.
func Open(cfg video.Config, det Detector) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open video capture %s: %w", cfg.URL, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video capture %s is not opened", cfg.URL)
	}
	if cfg.BufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(cfg.BufferSize))
	}

	r := &Reader{
		cap:      vc,
		detector: det,
		size:     image.Pt(cfg.Width, cfg.Height),
		logger:   log.With("component", "capture"),
		frame:    gocv.NewMat(),
		resized:  gocv.NewMat(),
	}
	r.logger.Info("video capture opened",
		"url", cfg.URL,
		"fps", vc.Get(gocv.VideoCaptureFPS),
		"width", cfg.Width,
		"height", cfg.Height)
	return r, nil
}

// Grab reads and resizes the next frame. It returns false once Close has
// released the capture.
func (r *Reader) Grab() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.released.Load() {
		return false
	}
	if ok := r.cap.Read(&r.frame); !ok || r.frame.Empty() {
		return false
	}
	gocv.Resize(r.frame, &r.resized, r.size, 0, 0, gocv.InterpolationLinear)
	return true
}

// Detect runs the detector on the last grabbed frame.
func (r *Reader) Detect() ([]detection.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.resized.Empty() {
		return nil, nil
	}
	return r.detector.DetectMat(r.resized)
}

// Close releases the capture first, without waiting for the frame lock, so a
// Read stalled on a dead stream returns. The buffers and the detector are
// freed once no Grab or Detect is running.
func (r *Reader) Close() error {
	r.releaseOnce.Do(func() {
		r.released.Store(true)
		if err := r.cap.Close(); err != nil {
			r.releaseErr = fmt.Errorf("close capture: %w", err)
		}
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.releaseErr
	}
	r.closed = true
	r.frame.Close()
	r.resized.Close()
	if err := r.detector.Close(); err != nil && r.releaseErr == nil {
		r.releaseErr = err
	}
	return r.releaseErr
}
