package scheduler

import (
	"context"
	"sync"
	"time"

	"athand/internal/cache"
	appLog "athand/internal/log"
	"athand/internal/model"
	"athand/internal/timeline"
)

// Fetcher is the remote source for one month of events. Satisfied by
// aladhan.Client; tests substitute call-counting stubs.
type Fetcher interface {
	FetchMonth(ctx context.Context, address string, key model.MonthKey) (model.MonthTimeline, error)
}

// AddressFunc supplies the location string. It is invoked fresh at the
// start of every fetch cycle, so a settings change mid-cycle is picked up
// on the next cycle rather than this one.
type AddressFunc func() string

// Snapshot is the externally observable result of the most recent cycle:
// either an assembled timeline or a classified failure. It is replaced
// wholesale on every cycle; readers always see a complete value.
type Snapshot struct {
	// Timeline is non-nil only when ErrKind is empty.
	Timeline *model.Timeline
	// ErrKind is empty on success; model.ErrNotAsked before the first
	// cycle ever completes.
	ErrKind   model.ErrorKind
	UpdatedAt time.Time
}

// OK reports whether the snapshot holds a timeline.
func (s Snapshot) OK() bool { return s.ErrKind == "" && s.Timeline != nil }

// Service drives the fetch → assemble → publish → wait cycle forever. It is
// an explicitly constructed object with Start/Stop, meant to be owned by the
// composition root and injected wherever the published state is read.
//
// All mutation of the cache, the snapshot, and the armed timer happens on
// the single run goroutine; at most one fetch cycle is in flight at a time
// by construction, since the timer only rearms after a cycle completes.
type Service struct {
	fetcher Fetcher
	address AddressFunc
	months  *cache.MonthCache

	// now is the clock; replaced in tests.
	now func() time.Time

	mu       sync.RWMutex
	snapshot Snapshot

	// refreshCh is unbuffered and sent to non-blockingly: a manual trigger
	// only lands while the loop is parked waiting, so re-entrant triggers
	// during an in-flight cycle are ignored rather than queued.
	refreshCh chan struct{}

	// timer is the single live one-shot timer; owned by the run goroutine.
	timer *time.Timer

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a stopped Service. The published state starts as NotAsked.
func New(fetcher Fetcher, address AddressFunc) *Service {
	return &Service{
		fetcher:   fetcher,
		address:   address,
		months:    cache.New(),
		now:       time.Now,
		refreshCh: make(chan struct{}),
		snapshot: Snapshot{
			ErrKind: model.ErrNotAsked,
		},
	}
}

// Start launches the run goroutine and kicks off the first cycle. It must
// be called at most once.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
}

// Stop cancels the loop, including any pending timer, and waits for the
// run goroutine to exit. Safe to call on a never-started Service.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// Refresh requests an immediate fetch cycle. The request is dropped if a
// cycle is already in flight; it never blocks.
func (s *Service) Refresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

// Snapshot returns the current published state. Safe for concurrent use.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// RunOnce performs a single fetch+assemble cycle synchronously, publishing
// the result, without starting the loop. Used by the -once CLI mode.
func (s *Service) RunOnce(ctx context.Context) (model.Timeline, error) {
	tl, err := s.cycle(ctx)
	if err != nil {
		s.publish(Snapshot{ErrKind: model.KindOf(err), UpdatedAt: s.now()})
		return model.Timeline{}, err
	}
	s.publish(Snapshot{Timeline: &tl, UpdatedAt: s.now()})
	return tl, nil
}

// run is the loop's single owning goroutine. The first cycle runs
// immediately on start; every later cycle is triggered by the one-shot
// timer firing or by a manual Refresh.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	defer s.stopTimer()

	var timerCh <-chan time.Time

	for {
		// A new cycle always invalidates whatever timer was pending, so a
		// manual refresh racing a near-due timer cannot double-fire.
		s.stopTimer()
		timerCh = nil

		tl, err := s.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			appLog.Error("refresh cycle failed", err)
			s.publish(Snapshot{ErrKind: model.KindOf(err), UpdatedAt: s.now()})
			// Dormant: no timer armed. The cron safety job or a manual
			// refresh re-triggers the loop.
		} else {
			s.publish(Snapshot{Timeline: &tl, UpdatedAt: s.now()})
			if ev, ok := tl.Current(); ok {
				timerCh = s.armTimer(ev.Time)
				appLog.Info("timer armed", "kind", ev.Kind, "at", ev.Time.Format(time.RFC3339))
			} else {
				appLog.Info("timeline exhausted; scheduler dormant",
					"event_count", len(tl.Events))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-timerCh:
			appLog.Debug("timer fired")
		case <-s.refreshCh:
			appLog.Info("manual refresh requested")
		}
	}
}

// cycle fetches (or cache-hits) the current and next month and assembles
// the merged timeline. The cycle is all-or-nothing: the first failure wins
// and any data from the other month is discarded for this cycle, so a
// partial timeline is never published.
func (s *Service) cycle(ctx context.Context) (model.Timeline, error) {
	now := s.now()
	curKey := model.MonthKeyOf(now)
	if !curKey.Valid() {
		return model.Timeline{}, model.NewFetchError(model.ErrInvalidDate, nil)
	}

	address := s.address()

	cur, err := s.monthFor(ctx, address, curKey)
	if err != nil {
		return model.Timeline{}, err
	}
	next, err := s.monthFor(ctx, address, curKey.Next())
	if err != nil {
		return model.Timeline{}, err
	}

	return timeline.Assemble(cur, next, now), nil
}

// monthFor consults the month cache before touching the remote source; a
// hit short-circuits the fetch entirely. Only successful fetches are cached.
func (s *Service) monthFor(ctx context.Context, address string, key model.MonthKey) (model.MonthTimeline, error) {
	if mt, ok := s.months.Get(key); ok {
		appLog.Debug("month cache hit", "year", key.Year, "month", key.Month)
		return mt, nil
	}
	mt, err := s.fetcher.FetchMonth(ctx, address, key)
	if err != nil {
		return model.MonthTimeline{}, err
	}
	s.months.Put(key, mt)
	return mt, nil
}

func (s *Service) publish(snap Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// armTimer cancels any pending timer and arms a new one-shot timer for the
// given instant. An instant already in the past fires immediately.
func (s *Service) armTimer(at time.Time) <-chan time.Time {
	s.stopTimer()
	d := at.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer = time.NewTimer(d)
	return s.timer.C
}

// stopTimer cancels the pending timer, if any, draining an already-fired
// channel so a stale tick can never trigger a cycle.
func (s *Service) stopTimer() {
	if s.timer == nil {
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer = nil
}
