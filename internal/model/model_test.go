package model

import (
	"errors"
	"testing"
	"time"
)

func TestMonthKeyNext(t *testing.T) {
	tests := []struct {
		name string
		in   MonthKey
		want MonthKey
	}{
		{"mid-year", MonthKey{2026, 8}, MonthKey{2026, 9}},
		{"december rolls the year", MonthKey{2026, 12}, MonthKey{2027, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Next(); got != tc.want {
				t.Fatalf("Next() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestMonthKeyOf(t *testing.T) {
	got := MonthKeyOf(time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC))
	if got != (MonthKey{Year: 2026, Month: 8}) {
		t.Fatalf("MonthKeyOf = %+v", got)
	}
	if !got.Valid() {
		t.Fatal("valid key reported invalid")
	}
	if (MonthKey{Year: 2026, Month: 13}).Valid() {
		t.Fatal("month 13 reported valid")
	}
}

func TestParseEventKind(t *testing.T) {
	if k, ok := ParseEventKind("Fajr"); !ok || k != KindFajr {
		t.Fatalf("ParseEventKind(Fajr) = %v, %v", k, ok)
	}
	if _, ok := ParseEventKind("Teatime"); ok {
		t.Fatal("unknown kind was accepted")
	}
	// Kind matching is exact; the source uses capitalized keys.
	if _, ok := ParseEventKind("fajr"); ok {
		t.Fatal("lowercased kind was accepted")
	}
}

func TestTimelineCurrent(t *testing.T) {
	events := []Event{
		{Kind: KindFajr, Time: time.Date(2026, 8, 1, 5, 0, 0, 0, time.UTC)},
		{Kind: KindDhuhr, Time: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)},
	}

	tl := Timeline{Events: events, CurrentIndex: 1}
	ev, ok := tl.Current()
	if !ok || ev.Kind != KindDhuhr {
		t.Fatalf("Current() = %+v, %v", ev, ok)
	}

	tl = Timeline{Events: events, CurrentIndex: NoCurrent}
	if _, ok := tl.Current(); ok {
		t.Fatal("Current() on exhausted timeline reported an event")
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")
	err := NewFetchError(ErrInvalidDate, cause)

	if got := KindOf(err); got != ErrInvalidDate {
		t.Fatalf("KindOf = %s, want %s", got, ErrInvalidDate)
	}
	if !errors.Is(err, cause) {
		t.Fatal("FetchError does not unwrap to its cause")
	}
	// Plain errors classify as invalid data.
	if got := KindOf(errors.New("plain")); got != ErrInvalidData {
		t.Fatalf("KindOf(plain) = %s, want %s", got, ErrInvalidData)
	}
	// Wrapped FetchErrors are still found.
	wrapped := NewFetchError(ErrInvalidData, err)
	if got := KindOf(wrapped); got != ErrInvalidData {
		t.Fatalf("KindOf(wrapped) = %s, want %s", got, ErrInvalidData)
	}
}
