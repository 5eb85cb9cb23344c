package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("BR_STR", "rtsp://cam")
	t.Setenv("BR_INT", "150")
	t.Setenv("BR_BAD_INT", "lots")
	t.Setenv("BR_FLOAT", "0.25")
	t.Setenv("BR_DUR", "2m")
	t.Setenv("BR_BAD_DUR", "soon")

	assert.Equal(t, "rtsp://cam", String("BR_STR", "x"))
	assert.Equal(t, "x", String("BR_UNSET", "x"))
	assert.Equal(t, 150, Int("BR_INT", 1))
	assert.Equal(t, 1, Int("BR_BAD_INT", 1))
	assert.InDelta(t, 0.25, Float("BR_FLOAT", 0), 1e-9)
	assert.Equal(t, 2*time.Minute, Duration("BR_DUR", time.Second))
	assert.Equal(t, time.Second, Duration("BR_BAD_DUR", time.Second))
}

func TestLoadYAML_KeepsDefaults(t *testing.T) {
	type sample struct {
		Port   string `yaml:"port"`
		Window int    `yaml:"window"`
	}
	path := filepath.Join(t.TempDir(), "beready.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: 12\n"), 0o644))

	s := sample{Port: "8000", Window: 6}
	require.NoError(t, LoadYAML(path, &s))
	assert.Equal(t, "8000", s.Port)
	assert.Equal(t, 12, s.Window)
}

func TestLoadYAML_Errors(t *testing.T) {
	var v map[string]any
	assert.Error(t, LoadYAML(filepath.Join(t.TempDir(), "missing.yaml"), &v))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("window: [1, 2\n"), 0o644))
	assert.Error(t, LoadYAML(path, &v))
}

func TestInvalidWrapsSentinel(t *testing.T) {
	err := Invalid("window_size", "must be > 0, got %d", 0)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "window_size")
}
