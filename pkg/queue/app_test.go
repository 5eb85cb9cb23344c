package queue

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-beready/internal/config"
	"github.com/teslashibe/go-beready/pkg/detection"
	"github.com/teslashibe/go-beready/pkg/estimate"
	"github.com/teslashibe/go-beready/pkg/web"
)

// stubSource yields n frames of the same people, then io.EOF.
type stubSource struct {
	mu     sync.Mutex
	people int
	n      int
	closed bool
}

func (s *stubSource) Next(ctx context.Context) (estimate.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.n == 0 {
		return estimate.Frame{}, io.EOF
	}
	s.n--
	dets := make([]detection.Detection, s.people)
	for i := range dets {
		x := float64(100 * i)
		dets[i] = detection.Detection{
			Box:        detection.Box{X1: x, Y1: 0, X2: x + 50, Y2: 150},
			Confidence: 0.9,
			ClassID:    detection.PersonClassID,
		}
	}
	return estimate.Frame{Detections: dets}, nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// frozenSource never returns a frame and ignores ctx; only Close frees it.
type frozenSource struct {
	release chan struct{}
	once    sync.Once
}

func (s *frozenSource) Next(context.Context) (estimate.Frame, error) {
	<-s.release
	return estimate.Frame{}, io.EOF
}

func (s *frozenSource) Close() error {
	s.once.Do(func() { close(s.release) })
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func TestNew_Validates(t *testing.T) {
	cfg := testConfig()
	cfg.Estimate.Strategy = "guess"
	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestInit_RequiresSource(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	assert.Error(t, a.Init())
}

func TestApp_DwellEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Estimate.Strategy = estimate.StrategyCombined
	cfg.Estimate.InitialWait = 20 * time.Second

	src := &stubSource{people: 3, n: 10}
	a, err := New(cfg, WithSourceOpener(func(Config) (Source, error) { return src, nil }))
	require.NoError(t, err)
	require.NoError(t, a.Init())
	assert.NotEmpty(t, a.Instance())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.engine.Frames() == 10 && !a.engine.Running()
	}, 2*time.Second, 5*time.Millisecond)

	// Nobody left the frame, so only the initial wait is published.
	assert.Equal(t, 20*time.Second, a.GetEstimate().WaitTime)

	resp, err := a.Server().App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	var health web.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, web.HealthResponse{OK: true, Instance: a.Instance(), Running: false, Frames: 10}, health)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	a.Shutdown()
	a.Shutdown()
	assert.True(t, src.closed)
}

func TestApp_ShutdownWithStalledCamera(t *testing.T) {
	src := &frozenSource{release: make(chan struct{})}
	a, err := New(testConfig(), WithSourceOpener(func(Config) (Source, error) { return src, nil }))
	require.NoError(t, err)
	require.NoError(t, a.Init())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	require.Eventually(t, a.engine.Running, time.Second, 5*time.Millisecond)

	cancel()
	stopped := make(chan struct{})
	go func() {
		<-done
		a.Shutdown()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown hung on a stalled camera")
	}
	assert.False(t, a.engine.Running())
}

func TestApp_RunBeforeInit(t *testing.T) {
	a, err := New(testConfig())
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestConfig_LoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beready.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
estimate:
  strategy: dwell
  per_person_wait: 90s
  eviction_frames: 60
video:
  url: rtsp://cam.local/stream
  detect_interval: 3
`), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFile(path))
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, estimate.StrategyDwell, cfg.Estimate.Strategy)
	assert.Equal(t, 90*time.Second, cfg.Estimate.PerPersonWait)
	assert.Equal(t, 60, cfg.Estimate.EvictionThreshold)
	assert.Equal(t, 6, cfg.Estimate.WindowSize, "unset fields keep defaults")
	assert.Equal(t, "rtsp://cam.local/stream", cfg.Video.URL)
	assert.Equal(t, 640, cfg.Video.Width)

	t.Setenv("BEREADY_PORT", "8123")
	t.Setenv("BEREADY_STRATEGY", "combined")
	t.Setenv("BEREADY_PER_PERSON_WAIT", "3m")
	cfg.LoadEnvConfig()
	assert.Equal(t, ":8123", cfg.Addr)
	assert.Equal(t, estimate.StrategyCombined, cfg.Estimate.Strategy)
	assert.Equal(t, 3*time.Minute, cfg.Estimate.PerPersonWait)
	assert.Equal(t, 3, cfg.Video.DetectInterval)

	require.NoError(t, cfg.Validate())
}
