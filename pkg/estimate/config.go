package estimate

import (
	"time"

	"github.com/teslashibe/go-beready/internal/config"
)

// Strategy picks which component publishes which field of the estimate.
type Strategy string

const (
	// StrategyWindow runs only the occupancy sampler. It publishes both
	// people_count and wait_time once per completed window.
	StrategyWindow Strategy = "window"

	// StrategyDwell runs only the target tracker. It publishes wait_time and
	// the visible head count each time a head-of-queue target completes.
	StrategyDwell Strategy = "dwell"

	// StrategyBoth runs both and lets them overwrite each other: the later
	// write wins for every field it touches.
	StrategyBoth Strategy = "both"

	// StrategyCombined runs both with disjoint ownership: the sampler owns
	// people_count and the tracker owns wait_time.
	StrategyCombined Strategy = "combined"
)

// SamplerFields returns the fields the occupancy sampler publishes.
func (s Strategy) SamplerFields() Field {
	switch s {
	case StrategyWindow, StrategyBoth:
		return FieldPeopleCount | FieldWaitTime
	case StrategyCombined:
		return FieldPeopleCount
	default:
		return 0
	}
}

// TrackerFields returns the fields the target tracker publishes.
func (s Strategy) TrackerFields() Field {
	switch s {
	case StrategyDwell, StrategyBoth:
		return FieldPeopleCount | FieldWaitTime
	case StrategyCombined:
		return FieldWaitTime
	default:
		return 0
	}
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyWindow, StrategyDwell, StrategyBoth, StrategyCombined:
		return true
	}
	return false
}

// Config holds the tunable constants of the estimator.
// The per-person wait and eviction threshold are empirical; calibrate per site.
type Config struct {
	Strategy Strategy `yaml:"strategy"`

	// Occupancy sampler
	WindowSize     int           `yaml:"window_size"`     // samples per averaged window
	SampleInterval time.Duration `yaml:"sample_interval"` // time between samples
	PerPersonWait  time.Duration `yaml:"per_person_wait"` // wait contributed by each person in line

	// Target tracker
	EvictionThreshold int           `yaml:"eviction_frames"` // consecutive missed frames before an identity is gone
	InitialWait       time.Duration `yaml:"initial_wait"`    // published before the first completion (0 = none)

	// Frame loop
	MinConfidence float64 `yaml:"min_confidence"` // person detections below this are ignored
}

// DefaultConfig returns the values the service has been running with:
// six samples ten seconds apart, two minutes per person, 150 missed frames.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyWindow,
		WindowSize:        6,
		SampleInterval:    10 * time.Second,
		PerPersonWait:     2 * time.Minute,
		EvictionThreshold: 150,
		MinConfidence:     0.2,
	}
}

// Validate rejects configurations the estimator cannot run with.
func (c Config) Validate() error {
	if !c.Strategy.Valid() {
		return config.Invalid("strategy", "unknown strategy %q", c.Strategy)
	}
	if c.WindowSize <= 0 {
		return config.Invalid("window_size", "must be > 0, got %d", c.WindowSize)
	}
	if c.SampleInterval <= 0 {
		return config.Invalid("sample_interval", "must be > 0, got %v", c.SampleInterval)
	}
	if c.PerPersonWait <= 0 {
		return config.Invalid("per_person_wait", "must be > 0, got %v", c.PerPersonWait)
	}
	if c.EvictionThreshold <= 0 {
		return config.Invalid("eviction_frames", "must be > 0, got %d", c.EvictionThreshold)
	}
	if c.InitialWait < 0 {
		return config.Invalid("initial_wait", "must be >= 0, got %v", c.InitialWait)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return config.Invalid("min_confidence", "must be in [0,1], got %v", c.MinConfidence)
	}
	return nil
}
