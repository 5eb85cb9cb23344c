// Package queue wires the estimator, the camera source and the query server
// into one service.
package queue

import (
	"time"

	"github.com/teslashibe/go-beready/internal/config"
	"github.com/teslashibe/go-beready/pkg/association"
	"github.com/teslashibe/go-beready/pkg/estimate"
	"github.com/teslashibe/go-beready/pkg/video"
)

// DefaultAddr is where the query server listens.
const DefaultAddr = ":8000"

// Config holds all configuration for the service.
// Flag parsing is done in cmd/beready/main.go; this struct is data only.
type Config struct {
	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug"`

	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// ShutdownTimeout bounds how long in-flight requests may take on exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Estimate    estimate.Config    `yaml:"estimate"`
	Video       video.Config       `yaml:"video"`
	Detector    DetectorConfig     `yaml:"detector"`
	Association association.Config `yaml:"association"`
}

// DetectorConfig selects and tunes the person detector.
type DetectorConfig struct {
	ModelPath  string  `yaml:"model_path"`
	Confidence float32 `yaml:"confidence"` // detector floor; the estimator applies its own threshold after
	NMS        float32 `yaml:"nms"`
	InputSize  int     `yaml:"input_size"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		ShutdownTimeout: 5 * time.Second,
		Estimate:        estimate.DefaultConfig(),
		Video:           video.DefaultConfig(),
		Detector: DetectorConfig{
			ModelPath:  "models/yolov8n.onnx",
			Confidence: 0.2,
			NMS:        0.45,
			InputSize:  640,
		},
		Association: association.DefaultConfig(),
	}
}

// LoadFile overlays the YAML file at path on c.
func (c *Config) LoadFile(path string) error {
	return config.LoadYAML(path, c)
}

// LoadEnvConfig applies BEREADY_* environment overrides.
// Call this after loading the config file and before flag overrides.
func (c *Config) LoadEnvConfig() {
	c.Video.URL = config.String("BEREADY_VIDEO", c.Video.URL)
	c.Detector.ModelPath = config.String("BEREADY_MODEL", c.Detector.ModelPath)
	if port := config.String("BEREADY_PORT", ""); port != "" {
		c.Addr = ":" + port
	}
	c.Estimate.Strategy = estimate.Strategy(config.String("BEREADY_STRATEGY", string(c.Estimate.Strategy)))
	c.Estimate.PerPersonWait = config.Duration("BEREADY_PER_PERSON_WAIT", c.Estimate.PerPersonWait)
	c.Estimate.EvictionThreshold = config.Int("BEREADY_EVICTION_FRAMES", c.Estimate.EvictionThreshold)
	c.Estimate.InitialWait = config.Duration("BEREADY_INITIAL_WAIT", c.Estimate.InitialWait)
	c.Video.DetectInterval = config.Int("BEREADY_DETECT_INTERVAL", c.Video.DetectInterval)
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return config.Invalid("addr", "required")
	}
	if err := c.Estimate.Validate(); err != nil {
		return err
	}
	if err := c.Video.Validate(); err != nil {
		return err
	}
	if c.Estimate.Strategy.TrackerFields() != 0 {
		if err := c.Association.Validate(); err != nil {
			return err
		}
	}
	if c.Detector.ModelPath == "" {
		return config.Invalid("model_path", "required")
	}
	return nil
}
