package timerange

import (
	"errors"
	"testing"
	"time"
)

func mustClock(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseClock(s)
	if err != nil {
		t.Fatalf("ParseClock(%q): %v", s, err)
	}
	return tod
}

func TestParseClock(t *testing.T) {
	if got := mustClock(t, "08:30"); got != 510 {
		t.Fatalf("expected 510, got %d", got)
	}
	if got := mustClock(t, "00:00"); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := mustClock(t, "24:00"); got != EndOfDay {
		t.Fatalf("expected %d, got %d", EndOfDay, got)
	}
	if got := mustClock(t, "8:30"); got != 510 {
		t.Fatalf("expected 510 for single-digit hour, got %d", got)
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Fatal("expected error for 25:00")
	}
	if _, err := ParseClock("bogus"); err == nil {
		t.Fatal("expected error for garbage input")
	}
	for _, s := range []string{"08:30junk", "-1:30", "08:-5", "08:3", "08:305", ":30", "08:", "0x:30"} {
		if _, err := ParseClock(s); err == nil {
			t.Fatalf("expected error for %q", s)
		}
	}
}

func TestTimeOfDayString(t *testing.T) {
	if s := TimeOfDay(510).String(); s != "08:30" {
		t.Fatalf("expected 08:30, got %q", s)
	}
}

func TestParseDateAndWeekday(t *testing.T) {
	d, err := ParseDate("2025-06-02")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %v", d.Weekday())
	}
	if d.String() != "2025-06-02" {
		t.Fatalf("round trip mismatch: %q", d.String())
	}

	if _, err := ParseDate("02/06/2025"); err == nil {
		t.Fatal("expected error for wrong format")
	}
}

func TestDateAt(t *testing.T) {
	d := Date{Year: 2025, Month: time.June, Day: 2}
	got := d.At(mustClock(t, "08:30"), time.UTC)
	want := time.Date(2025, time.June, 2, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestDateOrderingAndAddDays(t *testing.T) {
	a := Date{Year: 2025, Month: time.June, Day: 30}
	b := a.AddDays(1)
	if b.Month != time.July || b.Day != 1 {
		t.Fatalf("expected rollover to July 1, got %v", b)
	}
	if !a.Before(b) || b.Before(a) {
		t.Fatal("ordering broken")
	}
	if !b.After(a) {
		t.Fatal("After broken")
	}
}

func TestValidate(t *testing.T) {
	if err := (TimeRange{Start: 480, End: 960}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (TimeRange{Start: 960, End: 480}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	if err := (TimeRange{Start: 480, End: 480}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval for empty range, got %v", err)
	}
	if err := (TimeRange{Start: 0, End: EndOfDay + 1}).Validate(); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval past midnight, got %v", err)
	}
}

func TestMergeRanges(t *testing.T) {
	got := MergeRanges([]TimeRange{
		{Start: 600, End: 660},
		{Start: 480, End: 540},
		{Start: 520, End: 610}, // bridges the first two
		{Start: 700, End: 720},
		{Start: 720, End: 740}, // adjacent, still merges
	})

	want := []TimeRange{
		{Start: 480, End: 660},
		{Start: 700, End: 740},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d ranges, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("range %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if MergeRanges(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestSubtractRanges(t *testing.T) {
	base := TimeRange{Start: 480, End: 960} // 08:00-16:00

	got := SubtractRanges(base, []TimeRange{{Start: 720, End: 780}}) // 12:00-13:00
	want := []TimeRange{
		{Start: 480, End: 720},
		{Start: 780, End: 960},
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// Blocked range swallowing the whole base.
	if got := SubtractRanges(base, []TimeRange{{Start: 0, End: EndOfDay}}); len(got) != 0 {
		t.Fatalf("expected empty remainder, got %v", got)
	}

	// Blocked range outside the base leaves it untouched.
	got = SubtractRanges(base, []TimeRange{{Start: 0, End: 60}})
	if len(got) != 1 || got[0] != base {
		t.Fatalf("expected base untouched, got %v", got)
	}

	// Blocked overlapping the head.
	got = SubtractRanges(base, []TimeRange{{Start: 400, End: 540}})
	if len(got) != 1 || (got[0] != TimeRange{Start: 540, End: 960}) {
		t.Fatalf("expected tail remainder, got %v", got)
	}
}

func TestCarve(t *testing.T) {
	r := TimeRange{Start: 480, End: 960} // 08:00-16:00

	slots := Carve(r, 30)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if slots[0] != 480 || slots[15] != 930 {
		t.Fatalf("expected 08:00..15:30, got %v..%v", slots[0], slots[15])
	}

	// Partial tail is dropped: 08:00-08:50 at 30min yields one slot.
	slots = Carve(TimeRange{Start: 480, End: 530}, 30)
	if len(slots) != 1 || slots[0] != 480 {
		t.Fatalf("expected single 08:00 slot, got %v", slots)
	}

	if Carve(r, 0) != nil {
		t.Fatal("expected nil for non-positive step")
	}
}
