package estimate

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-beready/internal/log"
	"github.com/teslashibe/go-beready/internal/timeutil"
	"github.com/teslashibe/go-beready/pkg/detection"
)

// SourceTracker names writes coming from the target tracker.
const SourceTracker = "tracker"

// Track is a detection bound to an identity by an external associator.
// IDs are stable across frames for the same person.
type Track struct {
	ID  int
	Box detection.Box
}

// IdentityRecord is the presence lifecycle of one tracked identity.
type IdentityRecord struct {
	ID            int
	FirstSeen     time.Time
	LastSeenFrame uint64
	Missed        int // consecutive frames not observed; 0 when seen this frame
}

// Stale reports whether the identity was not observed in the latest frame.
func (r IdentityRecord) Stale() bool { return r.Missed > 0 }

// Completion describes a head-of-queue target that left the frame.
type Completion struct {
	ID        int
	Dwell     time.Duration
	QueueSize int
	Wait      time.Duration
}

// TargetTracker keeps per-identity presence records and follows one
// head-of-queue target. When the target has been missing for
// EvictionThreshold frames its dwell is turned into a wait estimate.
//
// A TargetTracker is driven from the frame loop only and is not safe for
// concurrent use.
type TargetTracker struct {
	threshold int
	fields    Field
	sink      Sink
	clock     timeutil.Clock
	logger    *slog.Logger

	frame   uint64
	records map[int]*IdentityRecord

	hasTarget bool
	targetID  int
	queueSize int // visible identities when the target was picked

	onComplete func(Completion)
}

// NewTargetTracker creates a tracker publishing into sink. The fields it
// writes follow cfg.Strategy; a strategy that does not use the tracker gets both.
func NewTargetTracker(cfg Config, sink Sink) *TargetTracker {
	fields := cfg.Strategy.TrackerFields()
	if fields == 0 {
		fields = FieldPeopleCount | FieldWaitTime
	}
	return &TargetTracker{
		threshold: cfg.EvictionThreshold,
		fields:    fields,
		sink:      sink,
		clock:     timeutil.RealClock{},
		logger:    log.L(),
		records:   make(map[int]*IdentityRecord),
	}
}

// SetClock replaces the clock used for first-seen and completion times.
func (t *TargetTracker) SetClock(c timeutil.Clock) { t.clock = c }

// SetLogger replaces the logger.
func (t *TargetTracker) SetLogger(l *slog.Logger) { t.logger = l }

// OnComplete registers a callback run after each completion is published.
func (t *TargetTracker) OnComplete(fn func(Completion)) { t.onComplete = fn }

// Frame returns the number of frames stepped so far.
func (t *TargetTracker) Frame() uint64 { return t.frame }

// Len returns the number of live identity records.
func (t *TargetTracker) Len() int { return len(t.records) }

// Record returns a copy of the record for id.
func (t *TargetTracker) Record(id int) (IdentityRecord, bool) {
	r, ok := t.records[id]
	if !ok {
		return IdentityRecord{}, false
	}
	return *r, true
}

// Target returns the current head-of-queue record, if any.
func (t *TargetTracker) Target() (IdentityRecord, bool) {
	if !t.hasTarget {
		return IdentityRecord{}, false
	}
	return t.Record(t.targetID)
}

// QueueSize returns the visible head count recorded when the current target
// was picked, or 0 without a target.
func (t *TargetTracker) QueueSize() int {
	if !t.hasTarget {
		return 0
	}
	return t.queueSize
}

// Skip advances the frame counter for a frame the detector did not run on.
// Miss counters are left alone so skipped frames never count as absences.
func (t *TargetTracker) Skip() {
	t.frame++
}

// Step folds one frame of tracked identities into the registry. It returns
// the published update when the current target completed on this frame.
//
// Order within a frame: refresh observed identities, age absent ones,
// complete the target if it reached the threshold, sweep every other
// identity that reached it, then pick a new target if none is active.
func (t *TargetTracker) Step(tracks []Track) (Update, bool) {
	t.frame++
	now := t.clock.Now()

	present := make(map[int]Track, len(tracks))
	for _, tr := range tracks {
		present[tr.ID] = tr
		if r, ok := t.records[tr.ID]; ok {
			r.LastSeenFrame = t.frame
			r.Missed = 0
			continue
		}
		t.records[tr.ID] = &IdentityRecord{
			ID:            tr.ID,
			FirstSeen:     now,
			LastSeenFrame: t.frame,
		}
	}

	for id, r := range t.records {
		if _, ok := present[id]; !ok {
			r.Missed++
		}
	}

	var (
		update    Update
		completed bool
	)
	if t.hasTarget {
		if r, ok := t.records[t.targetID]; !ok || r.Missed >= t.threshold {
			update, completed = t.complete(r, now, len(present))
		}
	}

	for id, r := range t.records {
		if r.Missed >= t.threshold {
			delete(t.records, id)
		}
	}

	if !t.hasTarget && len(present) > 0 {
		t.selectTarget(present)
	}

	return update, completed
}

// complete publishes the wait derived from the target's dwell and clears it.
// r may be nil if the record vanished; that clears the target without a sample.
func (t *TargetTracker) complete(r *IdentityRecord, now time.Time, visible int) (Update, bool) {
	id, queueSize := t.targetID, t.queueSize
	t.hasTarget = false
	t.targetID = 0
	t.queueSize = 0
	if r == nil {
		return Update{}, false
	}
	delete(t.records, id)

	c := Completion{ID: id, Dwell: now.Sub(r.FirstSeen), QueueSize: queueSize}
	c.Wait = WaitFromDwell(c.Dwell, queueSize)

	u := Update{
		Fields:      t.fields,
		PeopleCount: visible,
		WaitTime:    c.Wait,
		Source:      SourceTracker,
		At:          now,
	}
	t.sink.Write(u)
	t.logger.Info("queue target left",
		"id", id, "dwell", c.Dwell, "queue_size", queueSize, "wait", c.Wait)

	if t.onComplete != nil {
		t.onComplete(c)
	}
	return u, true
}

// selectTarget picks the identity with the leftmost box center among those
// visible this frame. Ties go to the lowest ID.
func (t *TargetTracker) selectTarget(present map[int]Track) {
	first := true
	var bestID int
	var bestX float64
	for id, tr := range present {
		x, _ := tr.Box.Center()
		if first || x < bestX || (x == bestX && id < bestID) {
			bestID, bestX, first = id, x, false
		}
	}

	t.hasTarget = true
	t.targetID = bestID
	t.queueSize = len(present)
	t.logger.Info("queue target selected", "id", bestID, "queue_size", t.queueSize)
}

// WaitFromDwell divides the head-of-queue dwell by the queue size seen at
// selection. A zero queue size falls back to the raw dwell.
func WaitFromDwell(dwell time.Duration, queueSize int) time.Duration {
	if queueSize <= 0 {
		return dwell
	}
	return dwell / time.Duration(queueSize)
}
