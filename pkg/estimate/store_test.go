package estimate

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InitialStateIsZero(t *testing.T) {
	s := NewStore()
	if diff := cmp.Diff(State{}, s.Read()); diff != "" {
		t.Errorf("initial state mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_WriteIsFieldGranular(t *testing.T) {
	s := NewStore()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Write(Update{Fields: FieldPeopleCount | FieldWaitTime, PeopleCount: 4, WaitTime: 8 * time.Minute, Source: SourceSampler, At: at})
	got := s.Write(Update{Fields: FieldWaitTime, WaitTime: 90 * time.Second, Source: SourceTracker, At: at.Add(time.Second)})

	want := State{
		PeopleCount: 4,
		WaitTime:    90 * time.Second,
		UpdatedAt:   at.Add(time.Second),
		Source:      SourceTracker,
		Revision:    2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, got, s.Read())
}

func TestStore_EmptyUpdateIsNoop(t *testing.T) {
	s := NewStore()
	notified := false
	s.Subscribe(func(State) { notified = true })

	got := s.Write(Update{PeopleCount: 9, WaitTime: time.Hour})
	assert.Equal(t, State{}, got)
	assert.False(t, notified)
}

func TestStore_ClampsNegatives(t *testing.T) {
	s := NewStore()
	got := s.Write(Update{Fields: FieldPeopleCount | FieldWaitTime, PeopleCount: -3, WaitTime: -time.Second})
	assert.Equal(t, 0, got.PeopleCount)
	assert.Equal(t, time.Duration(0), got.WaitTime)
}

func TestStore_SubscribeAndCancel(t *testing.T) {
	s := NewStore()
	var got []State
	cancel := s.Subscribe(func(st State) { got = append(got, st) })

	s.Write(Update{Fields: FieldPeopleCount, PeopleCount: 1})
	cancel()
	s.Write(Update{Fields: FieldPeopleCount, PeopleCount: 2})

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].PeopleCount)
	assert.Equal(t, uint64(1), got[0].Revision)
}

// Every write keeps WaitTime == PeopleCount seconds, so a torn read would
// break the relation.
func TestStore_NoTornReads(t *testing.T) {
	s := NewStore()
	const writes = 2000

	var wg sync.WaitGroup
	writer := func(source string, offset int) {
		for i := 0; i < writes; i++ {
			n := offset + i
			s.Write(Update{
				Fields:      FieldPeopleCount | FieldWaitTime,
				PeopleCount: n,
				WaitTime:    time.Duration(n) * time.Second,
				Source:      source,
			})
		}
	}

	done := make(chan struct{})
	var torn sync.Map
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				st := s.Read()
				if st.WaitTime != time.Duration(st.PeopleCount)*time.Second {
					torn.Store(st.Revision, st)
				}
			}
		}()
	}

	var writers sync.WaitGroup
	writers.Add(2)
	go func() { defer writers.Done(); writer(SourceSampler, 0) }()
	go func() { defer writers.Done(); writer(SourceTracker, 100000) }()
	writers.Wait()
	close(done)
	wg.Wait()

	torn.Range(func(k, v any) bool {
		t.Errorf("torn read at revision %v: %+v", k, v)
		return true
	})
	assert.Equal(t, uint64(2*writes), s.Read().Revision)
}

func TestField_Has(t *testing.T) {
	both := FieldPeopleCount | FieldWaitTime
	assert.True(t, both.Has(FieldWaitTime))
	assert.True(t, both.Has(both))
	assert.False(t, FieldWaitTime.Has(both))

	u := Update{Fields: both}.Masked(FieldPeopleCount)
	assert.Equal(t, FieldPeopleCount, u.Fields)
}

func TestStore_SubscribersSeeRevisionOrder(t *testing.T) {
	s := NewStore()
	const writes = 500

	var mu sync.Mutex
	var seen []uint64
	s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st.Revision)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for _, src := range []string{SourceSampler, SourceTracker} {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				s.Write(Update{Fields: FieldWaitTime, WaitTime: time.Duration(i) * time.Second, Source: src})
			}
		}(src)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2*writes)
	for i, rev := range seen {
		require.Equal(t, uint64(i+1), rev, "delivery out of order at %d", i)
	}
}
