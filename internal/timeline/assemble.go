package timeline

import (
	"sort"
	"time"

	"athand/internal/model"
)

// Assemble merges two consecutive months of events into a single ascending
// timeline and locates the next upcoming event relative to now.
//
// The merge is a stable sort over the concatenation, so events with equal
// times keep their original relative order. CurrentIndex is the first event
// strictly after now (strict, because the scheduler's timer fires exactly
// at an event's instant and that event is then over); model.NoCurrent when
// every event is already in the past or the input is empty.
//
// Pure function: no I/O, no mutation of the inputs.
func Assemble(current, next model.MonthTimeline, now time.Time) model.Timeline {
	merged := make([]model.Event, 0, len(current.Events)+len(next.Events))
	merged = append(merged, current.Events...)
	merged = append(merged, next.Events...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Time.Before(merged[j].Time)
	})

	idx := model.NoCurrent
	for i, ev := range merged {
		if ev.Time.After(now) {
			idx = i
			break
		}
	}

	return model.Timeline{
		Events:       merged,
		CurrentIndex: idx,
	}
}
