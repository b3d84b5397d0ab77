package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/medidir/booking-engine/internal/timerange"
)

func openAll(hours timerange.TimeRange) WeekCalendar {
	var w WeekCalendar
	for i := range w {
		w[i] = DayRule{Open: true, Hours: hours}
	}
	return w
}

func date(t *testing.T, s string) timerange.Date {
	t.Helper()
	d, err := timerange.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

func TestDayRuleValidate(t *testing.T) {
	closed := DayRule{Open: false}
	if err := closed.Validate(); err != nil {
		t.Fatalf("closed day should not validate hours: %v", err)
	}

	bad := DayRule{Open: true, Hours: timerange.TimeRange{Start: 960, End: 480}}
	if err := bad.Validate(); !errors.Is(err, timerange.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestWeekCalendarValidate(t *testing.T) {
	w := openAll(timerange.TimeRange{Start: 480, End: 960})
	if err := w.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w[time.Tuesday] = DayRule{Open: true, Hours: timerange.TimeRange{Start: 600, End: 600}}
	if err := w.Validate(); !errors.Is(err, timerange.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestClosureValidateAndCovers(t *testing.T) {
	c := Closure{StartDate: date(t, "2025-07-01"), EndDate: date(t, "2025-07-14"), Reason: "vacation"}
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !c.Covers(date(t, "2025-07-01")) || !c.Covers(date(t, "2025-07-14")) {
		t.Fatal("bounds should be inclusive")
	}
	if c.Covers(date(t, "2025-06-30")) || c.Covers(date(t, "2025-07-15")) {
		t.Fatal("dates outside the range must not be covered")
	}

	inverted := Closure{StartDate: date(t, "2025-07-14"), EndDate: date(t, "2025-07-01")}
	if err := inverted.Validate(); !errors.Is(err, timerange.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestOpenInterval(t *testing.T) {
	cal := Calendar{Week: openAll(timerange.TimeRange{Start: 480, End: 960})}
	cal.Week[time.Sunday] = DayRule{Open: false}

	// Monday is open.
	if r, ok := cal.OpenInterval(date(t, "2025-06-02")); !ok || r.Start != 480 || r.End != 960 {
		t.Fatalf("expected 08:00-16:00 open, got %v ok=%v", r, ok)
	}

	// Sunday rule closed.
	if _, ok := cal.OpenInterval(date(t, "2025-06-01")); ok {
		t.Fatal("expected Sunday closed")
	}

	// Closure overrides an otherwise open weekday.
	cal.Closures = append(cal.Closures, Closure{
		StartDate: date(t, "2025-06-02"),
		EndDate:   date(t, "2025-06-02"),
		Reason:    "conference",
	})
	if _, ok := cal.OpenInterval(date(t, "2025-06-02")); ok {
		t.Fatal("expected closure to close the day")
	}
}

func TestBlockedIntervalsMerged(t *testing.T) {
	cal := Calendar{
		Week: openAll(timerange.TimeRange{Start: 480, End: 960}),
		Breaks: []Break{
			{Range: timerange.TimeRange{Start: 720, End: 780}},
			{Range: timerange.TimeRange{Start: 750, End: 800}}, // overlaps the first
			{Range: timerange.TimeRange{Start: 900, End: 915}},
		},
	}

	got := cal.BlockedIntervals()
	if len(got) != 2 {
		t.Fatalf("expected 2 merged intervals, got %v", got)
	}
	if (got[0] != timerange.TimeRange{Start: 720, End: 800}) {
		t.Fatalf("expected merged 12:00-13:20, got %v", got[0])
	}

	if (Calendar{}).BlockedIntervals() != nil {
		t.Fatal("expected nil for no breaks")
	}
}
