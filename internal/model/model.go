package model

import "time"

// EventKind identifies the category of a single timetable entry. The set
// mirrors the timing keys the Al Adhan API returns: the five daily prayers
// plus the extra astronomical markers the source includes alongside them.
type EventKind string

const (
	KindFajr       EventKind = "Fajr"
	KindSunrise    EventKind = "Sunrise"
	KindDhuhr      EventKind = "Dhuhr"
	KindAsr        EventKind = "Asr"
	KindSunset     EventKind = "Sunset"
	KindMaghrib    EventKind = "Maghrib"
	KindIsha       EventKind = "Isha"
	KindImsak      EventKind = "Imsak"
	KindMidnight   EventKind = "Midnight"
	KindFirstthird EventKind = "Firstthird"
	KindLastthird  EventKind = "Lastthird"
)

// knownKinds is the recognized set; timing keys outside it are dropped
// during decode rather than failing the month.
var knownKinds = map[string]EventKind{
	string(KindFajr):       KindFajr,
	string(KindSunrise):    KindSunrise,
	string(KindDhuhr):      KindDhuhr,
	string(KindAsr):        KindAsr,
	string(KindSunset):     KindSunset,
	string(KindMaghrib):    KindMaghrib,
	string(KindIsha):       KindIsha,
	string(KindImsak):      KindImsak,
	string(KindMidnight):   KindMidnight,
	string(KindFirstthird): KindFirstthird,
	string(KindLastthird):  KindLastthird,
}

// ParseEventKind maps a raw timing key from the source onto an EventKind.
// ok is false for unrecognized keys.
func ParseEventKind(s string) (EventKind, bool) {
	k, ok := knownKinds[s]
	return k, ok
}

// Event is a single dated occurrence: one prayer (or marker) instance with
// its absolute, timezone-aware time. Immutable once constructed.
type Event struct {
	Kind EventKind `json:"kind"`
	Time time.Time `json:"time"`
}

// MonthKey identifies one calendar month. It is the cache index; equality
// is structural so it can be used directly as a map key.
type MonthKey struct {
	Year  int
	Month int // 1-12
}

// MonthKeyOf decomposes an instant into the key of the month it falls in.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: int(t.Month())}
}

// Next returns the key of the following calendar month, rolling the year
// over December.
func (k MonthKey) Next() MonthKey {
	if k.Month == 12 {
		return MonthKey{Year: k.Year + 1, Month: 1}
	}
	return MonthKey{Year: k.Year, Month: k.Month + 1}
}

// Valid reports whether the month component is in range.
func (k MonthKey) Valid() bool {
	return k.Month >= 1 && k.Month <= 12
}

// MonthTimeline is one month's worth of events as returned by a successful
// fetch. Events is sorted ascending by time; the source is expected (but not
// required) to keep every event inside the month starting at StartOfMonth.
type MonthTimeline struct {
	StartOfMonth time.Time
	Events       []Event
}

// Timeline is the assembled two-month view: the merged, ascending event
// sequence plus the index of the next upcoming event.
type Timeline struct {
	Events []Event

	// CurrentIndex is the index of the first event strictly in the future
	// at assembly time, or NoCurrent when the window is exhausted or empty.
	CurrentIndex int
}

// NoCurrent is the CurrentIndex value meaning "no upcoming event".
const NoCurrent = -1

// Current returns the upcoming event, if any.
func (t Timeline) Current() (Event, bool) {
	if t.CurrentIndex == NoCurrent || t.CurrentIndex >= len(t.Events) {
		return Event{}, false
	}
	return t.Events[t.CurrentIndex], true
}
