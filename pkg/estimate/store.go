// Package estimate turns a stream of per-frame person detections into a
// single, continuously updated queue wait-time estimate.
//
// Two strategies produce the estimate. The Sampler averages the head count
// over a fixed window and multiplies by a per-person wait. The TargetTracker
// follows one identity at the head of the queue and divides its observed
// dwell by the queue size seen when it was picked. Both publish into a Store,
// the only state shared between goroutines. Which fields each strategy owns
// is set by Strategy.
package estimate

import (
	"sync"
	"time"
)

// Field is a bitmask of the estimate fields an Update touches.
type Field uint8

const (
	FieldPeopleCount Field = 1 << iota
	FieldWaitTime
)

// Has reports whether every bit in o is set in f.
func (f Field) Has(o Field) bool { return f&o == o }

// State is a consistent snapshot of the published estimate.
type State struct {
	PeopleCount int
	WaitTime    time.Duration
	UpdatedAt   time.Time // zero until the first write
	Source      string    // component that wrote last
	Revision    uint64    // incremented on every applied write
}

// Update carries the fields one component wants to publish.
// Only fields present in Fields are applied.
type Update struct {
	Fields      Field
	PeopleCount int
	WaitTime    time.Duration
	Source      string
	At          time.Time // defaults to time.Now() when zero
}

// Masked returns a copy of u restricted to the fields in mask.
func (u Update) Masked(mask Field) Update {
	u.Fields &= mask
	return u
}

// Sink receives estimate updates and returns the resulting state.
// *Store is the production Sink.
type Sink interface {
	Write(u Update) State
}

// Store holds the published estimate. All access goes through one RWMutex;
// writers apply every field of an Update before readers can observe it.
type Store struct {
	// notify serialises writers through subscriber delivery so that
	// subscribers see states in Revision order. It is taken before mu.
	notify sync.Mutex

	mu     sync.RWMutex
	state  State
	subs   map[int]func(State)
	nextID int
}

var _ Sink = (*Store)(nil)

// NewStore returns a store initialised to zero people and zero wait.
func NewStore() *Store {
	return &Store{subs: make(map[int]func(State))}
}

// Write applies u atomically with respect to readers. Negative values are
// clamped to zero. Subscribers are notified in Revision order, after the
// state lock is released so readers never wait on them.
// An update with no fields leaves the state untouched.
func (s *Store) Write(u Update) State {
	if u.Fields == 0 {
		return s.Read()
	}
	if u.At.IsZero() {
		u.At = time.Now()
	}

	s.notify.Lock()
	defer s.notify.Unlock()

	s.mu.Lock()
	if u.Fields.Has(FieldPeopleCount) {
		s.state.PeopleCount = max(u.PeopleCount, 0)
	}
	if u.Fields.Has(FieldWaitTime) {
		s.state.WaitTime = max(u.WaitTime, 0)
	}
	s.state.UpdatedAt = u.At
	s.state.Source = u.Source
	s.state.Revision++
	snap := s.state
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return snap
}

// Read returns a consistent copy of the current estimate.
func (s *Store) Read() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn to receive every state produced by Write.
// fn runs on the writer's goroutine, must not block and must not call Write.
// The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
