package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"athand/internal/model"
)

// stubFetcher serves canned months and counts transport calls per key,
// standing in for the remote source.
type stubFetcher struct {
	mu     sync.Mutex
	months map[model.MonthKey]model.MonthTimeline
	errFor map[model.MonthKey]error
	calls  map[model.MonthKey]int
	addrs  []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		months: make(map[model.MonthKey]model.MonthTimeline),
		errFor: make(map[model.MonthKey]error),
		calls:  make(map[model.MonthKey]int),
	}
}

func (f *stubFetcher) FetchMonth(_ context.Context, address string, key model.MonthKey) (model.MonthTimeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	f.addrs = append(f.addrs, address)
	if err := f.errFor[key]; err != nil {
		return model.MonthTimeline{}, err
	}
	return f.months[key], nil
}

func (f *stubFetcher) callCount(key model.MonthKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *stubFetcher) addresses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.addrs))
	copy(out, f.addrs)
	return out
}

func fixedAddress() string { return "Istanbul, Turkey" }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestInitialSnapshotIsNotAsked(t *testing.T) {
	s := New(newStubFetcher(), fixedAddress)

	snap := s.Snapshot()
	if snap.OK() {
		t.Fatal("fresh service reported a timeline")
	}
	if snap.ErrKind != model.ErrNotAsked {
		t.Fatalf("ErrKind = %s, want %s", snap.ErrKind, model.ErrNotAsked)
	}
}

func TestRunOnceCachesMonths(t *testing.T) {
	f := newStubFetcher()
	s := New(f, fixedAddress)

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}

	now := time.Now()
	curKey := model.MonthKeyOf(now)
	for _, key := range []model.MonthKey{curKey, curKey.Next()} {
		if got := f.callCount(key); got != 1 {
			t.Fatalf("transport called %d times for %+v, want 1", got, key)
		}
	}
}

func TestCycleIsAllOrNothing(t *testing.T) {
	now := time.Now()
	curKey := model.MonthKeyOf(now)

	tests := []struct {
		name    string
		failKey model.MonthKey
	}{
		{"current month fails", curKey},
		{"next month fails", curKey.Next()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newStubFetcher()
			f.months[curKey] = model.MonthTimeline{
				Events: []model.Event{{Kind: model.KindFajr, Time: now.Add(time.Hour)}},
			}
			f.errFor[tc.failKey] = model.NewFetchError(model.ErrInvalidData, errors.New("down"))

			s := New(f, fixedAddress)
			if _, err := s.RunOnce(context.Background()); err == nil {
				t.Fatal("expected cycle failure")
			}

			snap := s.Snapshot()
			if snap.OK() {
				t.Fatal("partial timeline was published")
			}
			if snap.Timeline != nil {
				t.Fatal("failed snapshot carries a timeline")
			}
			if snap.ErrKind != model.ErrInvalidData {
				t.Fatalf("ErrKind = %s, want %s", snap.ErrKind, model.ErrInvalidData)
			}
		})
	}
}

func TestAddressReadFreshEachCycle(t *testing.T) {
	f := newStubFetcher()
	// Force a transport call every cycle so the address probe is visible.
	now := time.Now()
	f.errFor[model.MonthKeyOf(now)] = errors.New("down")

	addrs := []string{"first address", "second address"}
	i := 0
	s := New(f, func() string {
		a := addrs[i]
		i++
		return a
	})

	_, _ = s.RunOnce(context.Background())
	_, _ = s.RunOnce(context.Background())

	got := f.addresses()
	if len(got) != 2 || got[0] != "first address" || got[1] != "second address" {
		t.Fatalf("addresses seen by transport = %v", got)
	}
}

func TestArmTimerRearmCancelsPrior(t *testing.T) {
	s := New(newStubFetcher(), fixedAddress)

	ch1 := s.armTimer(time.Now().Add(30 * time.Millisecond))
	ch2 := s.armTimer(time.Now().Add(10 * time.Millisecond))

	select {
	case <-ch2:
	case <-ch1:
		t.Fatal("stale timer fired")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("live timer never fired")
	}

	// The stale channel must stay silent past its original deadline.
	select {
	case <-ch1:
		t.Fatal("stale timer fired after rearm")
	case <-time.After(60 * time.Millisecond):
	}

	s.stopTimer()
}

func TestArmTimerPastInstantFiresImmediately(t *testing.T) {
	s := New(newStubFetcher(), fixedAddress)

	ch := s.armTimer(time.Now().Add(-time.Hour))
	select {
	case <-ch:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("past-instant timer did not fire")
	}

	s.stopTimer()
}

func TestLoopPublishesAndRearmsAtEventBoundary(t *testing.T) {
	now := time.Now()
	curKey := model.MonthKeyOf(now)

	f := newStubFetcher()
	f.months[curKey] = model.MonthTimeline{
		Events: []model.Event{
			{Kind: model.KindAsr, Time: now.Add(60 * time.Millisecond)},
			{Kind: model.KindMaghrib, Time: now.Add(time.Hour)},
		},
	}

	s := New(f, fixedAddress)
	s.Start(context.Background())
	defer s.Stop()

	// First cycle: upcoming event is the near-future Asr.
	waitFor(t, time.Second, func() bool {
		snap := s.Snapshot()
		return snap.OK() && snap.Timeline.CurrentIndex == 0
	})

	// The timer fires at the Asr instant and triggers the next cycle,
	// which serves both months from cache and moves the pointer on.
	waitFor(t, time.Second, func() bool {
		snap := s.Snapshot()
		return snap.OK() && snap.Timeline.CurrentIndex == 1
	})

	for _, key := range []model.MonthKey{curKey, curKey.Next()} {
		if got := f.callCount(key); got != 1 {
			t.Fatalf("transport called %d times for %+v across cycles, want 1", got, key)
		}
	}
}

func TestLoopDormantOnEmptyTimeline(t *testing.T) {
	f := newStubFetcher()
	cycles := 0
	var mu sync.Mutex
	s := New(f, func() string {
		mu.Lock()
		cycles++
		mu.Unlock()
		return "x"
	})

	s.Start(context.Background())
	defer s.Stop()

	// Empty months still publish a Success with an empty timeline.
	waitFor(t, time.Second, func() bool {
		snap := s.Snapshot()
		return snap.OK() && len(snap.Timeline.Events) == 0 &&
			snap.Timeline.CurrentIndex == model.NoCurrent
	})

	// No timer is armed, so no further cycles happen on their own.
	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	got := cycles
	mu.Unlock()
	if got != 1 {
		t.Fatalf("cycle count = %d, want 1 (dormant loop re-fetched)", got)
	}

	// A manual trigger wakes the dormant loop.
	s.Refresh()
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return cycles == 2
	})
}

func TestRefreshNeverBlocks(t *testing.T) {
	s := New(newStubFetcher(), fixedAddress)

	// No loop is running, so there is no receiver; the trigger must be
	// dropped rather than queued or blocked on.
	done := make(chan struct{})
	go func() {
		s.Refresh()
		s.Refresh()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Refresh blocked")
	}
}

func TestStopCancelsLoop(t *testing.T) {
	f := newStubFetcher()
	now := time.Now()
	f.months[model.MonthKeyOf(now)] = model.MonthTimeline{
		Events: []model.Event{{Kind: model.KindFajr, Time: now.Add(time.Hour)}},
	}

	s := New(f, fixedAddress)
	s.Start(context.Background())

	waitFor(t, time.Second, func() bool { return s.Snapshot().OK() })

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}
