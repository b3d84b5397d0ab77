package availability

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/booking"
	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

var (
	primaryLoc = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	hostLoc    = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// Monday 2025-06-02.
var monday = timerange.Date{Year: 2025, Month: time.June, Day: 2}

// Tuesday 2025-06-03.
var tuesday = timerange.Date{Year: 2025, Month: time.June, Day: 3}

func weekdaysOpen(hours timerange.TimeRange) schedule.WeekCalendar {
	var w schedule.WeekCalendar
	for wd := time.Monday; wd <= time.Friday; wd++ {
		w[wd] = schedule.DayRule{Open: true, Hours: hours}
	}
	return w
}

func baseInputs() Inputs {
	return Inputs{
		Calendar: schedule.Calendar{
			Week: weekdaysOpen(timerange.TimeRange{Start: 480, End: 960}), // 08:00-16:00
		},
		PrimaryLocationID: primaryLoc,
		Location:          time.UTC,
	}
}

func at(d timerange.Date, clock string) time.Time {
	tod, err := timerange.ParseClock(clock)
	if err != nil {
		panic(err)
	}
	return d.At(tod, time.UTC)
}

func TestGenerateOpenMonday(t *testing.T) {
	slots := Generate(baseInputs(), monday, 30)

	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
	if !slots[0].Start.Equal(at(monday, "08:00")) {
		t.Fatalf("first slot should be 08:00, got %v", slots[0].Start)
	}
	if !slots[15].Start.Equal(at(monday, "15:30")) {
		t.Fatalf("last slot should be 15:30, got %v", slots[15].Start)
	}
	for i, s := range slots {
		if s.LocationID != primaryLoc {
			t.Fatalf("slot %d tagged with wrong location", i)
		}
		if i > 0 && slots[i-1].End().After(s.Start) {
			t.Fatalf("slots %d and %d overlap", i-1, i)
		}
	}
}

func TestGenerateLunchBreak(t *testing.T) {
	in := baseInputs()
	in.Calendar.Breaks = []schedule.Break{
		{Range: timerange.TimeRange{Start: 720, End: 780}}, // 12:00-13:00
	}

	slots := Generate(in, monday, 30)
	if len(slots) != 14 {
		t.Fatalf("expected 14 slots, got %d", len(slots))
	}

	saw1130 := false
	for _, s := range slots {
		if !s.Start.Before(at(monday, "13:00")) {
			continue
		}
		if !s.Start.Before(at(monday, "12:00")) {
			t.Fatalf("slot starting inside the break: %v", s.Start)
		}
		if s.Start.Equal(at(monday, "11:30")) {
			saw1130 = true
		}
	}
	if !saw1130 {
		t.Fatal("the 11:30 slot ends exactly at the break and must survive")
	}
}

func TestGenerateClosureEmptiesDay(t *testing.T) {
	in := baseInputs()
	in.Calendar.Closures = []schedule.Closure{
		{StartDate: monday, EndDate: monday.AddDays(4), Reason: "vacation"},
	}

	if slots := Generate(in, monday, 30); len(slots) != 0 {
		t.Fatalf("expected no slots on a closed day, got %d", len(slots))
	}
}

func TestGenerateClosedWeekday(t *testing.T) {
	in := baseInputs()
	sunday := timerange.Date{Year: 2025, Month: time.June, Day: 1}
	if slots := Generate(in, sunday, 30); len(slots) != 0 {
		t.Fatalf("expected no slots on a closed weekday, got %d", len(slots))
	}
}

func TestGenerateGuestAffiliationOverlay(t *testing.T) {
	in := baseInputs()
	in.Affiliations = []booking.GuestAffiliation{{
		ID:             uuid.New(),
		HostLocationID: hostLoc,
		Date:           tuesday,
		Window:         timerange.TimeRange{Start: 600, End: 720}, // 10:00-12:00
		SlotMinutes:    20,
		Status:         booking.AffiliationConfirmed,
	}}

	slots := Generate(in, tuesday, 30)

	windowStart := at(tuesday, "10:00")
	windowEnd := at(tuesday, "12:00")

	var hostCount, primaryOutside int
	for _, s := range slots {
		insideWindow := s.Start.Before(windowEnd) && windowStart.Before(s.End())
		switch s.LocationID {
		case hostLoc:
			hostCount++
			if s.DurationMinutes != 20 {
				t.Fatalf("host slot should use the affiliation's 20min duration, got %d", s.DurationMinutes)
			}
			if !insideWindow {
				t.Fatalf("host slot outside the window: %v", s.Start)
			}
		case primaryLoc:
			if insideWindow {
				t.Fatalf("primary slot overlapping the affiliation window: %v", s.Start)
			}
			primaryOutside++
		default:
			t.Fatalf("unexpected location %v", s.LocationID)
		}
	}

	if hostCount != 6 {
		t.Fatalf("expected 6 host slots (10:00..11:40 at 20min), got %d", hostCount)
	}
	// Primary 08:00-16:00 at 30min is 16 slots; 10:00..11:30 are evicted.
	if primaryOutside != 12 {
		t.Fatalf("expected 12 primary slots outside the window, got %d", primaryOutside)
	}
}

func TestGenerateAffiliationWithoutOpenCalendar(t *testing.T) {
	in := baseInputs()
	// Closure shuts the primary calendar; the confirmed visit still offers
	// slots at the host location.
	in.Calendar.Closures = []schedule.Closure{{StartDate: tuesday, EndDate: tuesday}}
	in.Affiliations = []booking.GuestAffiliation{{
		HostLocationID: hostLoc,
		Date:           tuesday,
		Window:         timerange.TimeRange{Start: 600, End: 660},
		SlotMinutes:    30,
		Status:         booking.AffiliationConfirmed,
	}}

	slots := Generate(in, tuesday, 30)
	if len(slots) != 2 {
		t.Fatalf("expected 2 host slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.LocationID != hostLoc {
			t.Fatalf("expected host location, got %v", s.LocationID)
		}
	}
}

func TestGeneratePendingAffiliationIgnored(t *testing.T) {
	in := baseInputs()
	in.Affiliations = []booking.GuestAffiliation{{
		HostLocationID: hostLoc,
		Date:           monday,
		Window:         timerange.TimeRange{Start: 600, End: 720},
		SlotMinutes:    20,
		Status:         booking.AffiliationPending,
	}}

	slots := Generate(in, monday, 30)
	if len(slots) != 16 {
		t.Fatalf("pending affiliation must not change availability, got %d slots", len(slots))
	}
}

func TestGenerateBookingsRemoveSlots(t *testing.T) {
	in := baseInputs()
	in.Bookings = []booking.Booking{
		{SlotStart: at(monday, "09:00"), DurationMinutes: 30, Status: booking.StatusConfirmed},
		// A 45-minute service booking knocks out both overlapped grid slots.
		{SlotStart: at(monday, "14:00"), DurationMinutes: 45, Status: booking.StatusRequested},
		// Cancelled bookings free their slot.
		{SlotStart: at(monday, "10:00"), DurationMinutes: 30, Status: booking.StatusCancelled},
	}

	slots := Generate(in, monday, 30)
	if len(slots) != 13 {
		t.Fatalf("expected 13 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.Start.Equal(at(monday, "09:00")) {
			t.Fatal("09:00 is booked and must not appear")
		}
		if s.Start.Equal(at(monday, "14:00")) || s.Start.Equal(at(monday, "14:30")) {
			t.Fatalf("slot intersecting the 45-minute booking must not appear: %v", s.Start)
		}
	}
}

func TestGenerateNonStandardDuration(t *testing.T) {
	slots := Generate(baseInputs(), monday, 45)
	// 480 minutes / 45 = 10 full slots (08:00..14:45).
	if len(slots) != 10 {
		t.Fatalf("expected 10 slots at 45min, got %d", len(slots))
	}
	if !slots[9].Start.Equal(at(monday, "14:45")) {
		t.Fatalf("last 45min slot should start 14:45, got %v", slots[9].Start)
	}
}
