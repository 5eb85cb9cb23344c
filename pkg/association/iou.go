// Package association binds per-frame person detections to identities that
// stay stable across frames, using greedy IoU matching in the SORT manner.
package association

import (
	"sort"
	"sync"

	"github.com/teslashibe/go-beready/internal/config"
	"github.com/teslashibe/go-beready/pkg/detection"
	"github.com/teslashibe/go-beready/pkg/estimate"
)

// Config tunes the IoU tracker.
type Config struct {
	MinIoU float64 `yaml:"min_iou"` // overlap below this never matches
	MaxAge int     `yaml:"max_age"` // frames a track survives unmatched
}

// DefaultConfig returns the usual SORT settings.
func DefaultConfig() Config {
	return Config{
		MinIoU: 0.3,
		MaxAge: 30,
	}
}

// Validate checks the tracker settings.
func (c Config) Validate() error {
	if c.MinIoU <= 0 || c.MinIoU > 1 {
		return config.Invalid("min_iou", "must be in (0,1], got %v", c.MinIoU)
	}
	if c.MaxAge < 0 {
		return config.Invalid("max_age", "must be >= 0, got %d", c.MaxAge)
	}
	return nil
}

type track struct {
	id              int
	box             detection.Box
	hits            int
	timeSinceUpdate int
}

// IoUTracker assigns integer identities to detections. IDs start at 1 and are
// never reused.
type IoUTracker struct {
	mu     sync.Mutex
	cfg    Config
	tracks map[int]*track
	nextID int
}

// NewIoUTracker creates a tracker with no identities.
func NewIoUTracker(cfg Config) *IoUTracker {
	return &IoUTracker{
		cfg:    cfg,
		tracks: make(map[int]*track),
	}
}

type pair struct {
	trackID int
	det     int
	iou     float64
}

// Update matches dets against live tracks and returns one estimate.Track per
// detection, in detection order. Unmatched detections open new identities.
func (t *IoUTracker) Update(dets []detection.Detection) []estimate.Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tr := range t.tracks {
		tr.timeSinceUpdate++
	}

	// Candidate pairs, best overlap first. Ties resolve on the older track
	// and then the earlier detection so the result does not depend on map order.
	var pairs []pair
	for id, tr := range t.tracks {
		for di, d := range dets {
			if v := d.Box.IoU(tr.box); v >= t.cfg.MinIoU {
				pairs = append(pairs, pair{trackID: id, det: di, iou: v})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].iou != pairs[j].iou {
			return pairs[i].iou > pairs[j].iou
		}
		if pairs[i].trackID != pairs[j].trackID {
			return pairs[i].trackID < pairs[j].trackID
		}
		return pairs[i].det < pairs[j].det
	})

	assigned := make([]int, len(dets))
	taken := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		if taken[p.trackID] || assigned[p.det] != 0 {
			continue
		}
		tr := t.tracks[p.trackID]
		tr.box = dets[p.det].Box
		tr.hits++
		tr.timeSinceUpdate = 0
		taken[p.trackID] = true
		assigned[p.det] = p.trackID
	}

	out := make([]estimate.Track, len(dets))
	for di, d := range dets {
		id := assigned[di]
		if id == 0 {
			t.nextID++
			id = t.nextID
			t.tracks[id] = &track{id: id, box: d.Box, hits: 1}
		}
		out[di] = estimate.Track{ID: id, Box: d.Box}
	}

	for id, tr := range t.tracks {
		if tr.timeSinceUpdate > t.cfg.MaxAge {
			delete(t.tracks, id)
		}
	}
	return out
}

// Len returns the number of live tracks, matched or coasting.
func (t *IoUTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tracks)
}

// Reset drops every track. IDs keep counting up.
func (t *IoUTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tracks = make(map[int]*track)
}
