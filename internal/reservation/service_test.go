package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medidir/booking-engine/internal/booking"
	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

type fixture struct {
	svc      *Service
	repo     *booking.MemoryRepository
	provider *booking.Provider
}

func openWeek(hours timerange.TimeRange) schedule.WeekCalendar {
	var w schedule.WeekCalendar
	for i := range w {
		w[i] = schedule.DayRule{Open: true, Hours: hours}
	}
	return w
}

func newFixture(t *testing.T, autoConfirm bool) *fixture {
	t.Helper()

	repo := booking.NewMemoryRepository()
	provider := &booking.Provider{
		ID:                uuid.New(),
		Name:              "Dr. Test",
		PrimaryLocationID: uuid.New(),
		SlotMinutes:       30,
		AutoConfirm:       autoConfirm,
		TimeZone:          "UTC",
	}
	repo.PutProvider(provider)

	svc := NewService(repo, NewMemoryLocker(), zerolog.Nop())
	if err := svc.SetWeekCalendar(context.Background(), provider.ID, openWeek(timerange.TimeRange{Start: 480, End: 960})); err != nil {
		t.Fatalf("SetWeekCalendar: %v", err)
	}
	return &fixture{svc: svc, repo: repo, provider: provider}
}

// futureDate returns a date comfortably in the future so slot starts pass
// the past-slot check.
func futureDate() timerange.Date {
	return timerange.DateOf(time.Now().AddDate(0, 0, 7), time.UTC)
}

func slotAt(d timerange.Date, clock string) time.Time {
	tod, err := timerange.ParseClock(clock)
	if err != nil {
		panic(err)
	}
	return d.At(tod, time.UTC)
}

func TestReserveHappyPath(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	d := futureDate()

	b, err := f.svc.Reserve(ctx, ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "08:00"),
		Subject:    booking.SubjectRef{Name: "Pat", Phone: "555-0100"},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Status != booking.StatusRequested {
		t.Fatalf("expected requested without auto-confirm, got %s", b.Status)
	}
	if b.DurationMinutes != 30 {
		t.Fatalf("expected provider default duration, got %d", b.DurationMinutes)
	}

	// The slot is gone from availability.
	slots, err := f.svc.Availability(ctx, f.provider.ID, d, 0)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	for _, s := range slots {
		if s.Start.Equal(b.SlotStart) {
			t.Fatal("reserved slot still offered")
		}
	}
}

func TestReserveAutoConfirm(t *testing.T) {
	f := newFixture(t, true)
	d := futureDate()

	b, err := f.svc.Reserve(context.Background(), ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "09:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Status != booking.StatusConfirmed {
		t.Fatalf("expected confirmed with auto-confirm, got %s", b.Status)
	}
}

func TestReserveSlotTaken(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	d := futureDate()
	req := ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "10:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	}

	if _, err := f.svc.Reserve(ctx, req); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if _, err := f.svc.Reserve(ctx, req); !errors.Is(err, ErrSlotNoLongerAvailable) {
		t.Fatalf("expected ErrSlotNoLongerAvailable, got %v", err)
	}
}

func TestReserveOffGridSlot(t *testing.T) {
	f := newFixture(t, true)
	d := futureDate()

	_, err := f.svc.Reserve(context.Background(), ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "08:10"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	})
	if !errors.Is(err, ErrSlotNoLongerAvailable) {
		t.Fatalf("expected ErrSlotNoLongerAvailable for off-grid start, got %v", err)
	}
}

func TestReservePastSlot(t *testing.T) {
	f := newFixture(t, true)
	d := timerange.DateOf(time.Now().AddDate(0, 0, -1), time.UTC)

	_, err := f.svc.Reserve(context.Background(), ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "08:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	})
	if !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}
}

func TestReserveLocationMismatch(t *testing.T) {
	f := newFixture(t, true)
	d := futureDate()

	_, err := f.svc.Reserve(context.Background(), ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: uuid.New(), // not the primary location, no affiliation
		Date:       d,
		SlotStart:  slotAt(d, "08:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	})
	if !errors.Is(err, ErrLocationMismatch) {
		t.Fatalf("expected ErrLocationMismatch, got %v", err)
	}
}

func TestReserveServiceDuration(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	d := futureDate()

	svcID := uuid.New()
	price := int64(15000)
	f.repo.PutService(&booking.Service{
		ID:              svcID,
		ProviderID:      f.provider.ID,
		Name:            "extended consult",
		DurationMinutes: 45,
		PriceMinor:      &price,
	})

	b, err := f.svc.Reserve(ctx, ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "08:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
		ServiceID:  &svcID,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.DurationMinutes != 45 {
		t.Fatalf("expected service duration 45, got %d", b.DurationMinutes)
	}

	// The 45-minute booking blocks both default-grid slots it overlaps.
	slots, err := f.svc.Availability(ctx, f.provider.ID, d, 0)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	for _, s := range slots {
		if s.Start.Equal(slotAt(d, "08:00")) || s.Start.Equal(slotAt(d, "08:30")) {
			t.Fatalf("slot overlapping the 45min booking still offered: %v", s.Start)
		}
	}
}

func TestReserveServiceOfOtherProvider(t *testing.T) {
	f := newFixture(t, true)
	d := futureDate()

	svcID := uuid.New()
	f.repo.PutService(&booking.Service{ID: svcID, ProviderID: uuid.New(), DurationMinutes: 45})

	_, err := f.svc.Reserve(context.Background(), ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "08:00"),
		ServiceID:  &svcID,
	})
	if !errors.Is(err, booking.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	f := newFixture(t, true)
	d := futureDate()
	req := ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "11:00"),
		Subject:    booking.SubjectRef{Name: "Racer"},
	}

	const n = 25
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Reserve(context.Background(), req)
		}(i)
	}
	wg.Wait()

	wins, losses := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotNoLongerAvailable):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != n-1 {
		t.Fatalf("expected exactly 1 winner and %d losers, got %d/%d", n-1, wins, losses)
	}
}

func TestConfirmLifecycle(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	d := futureDate()

	b, err := f.svc.Reserve(ctx, ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "12:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	confirmed, err := f.svc.Confirm(ctx, b.ID)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != booking.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", confirmed.Status)
	}

	if _, err := f.svc.Confirm(ctx, b.ID); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double confirm, got %v", err)
	}
}

func TestCancelAndTerminalGuard(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	d := futureDate()

	b, err := f.svc.Reserve(ctx, ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "13:00"),
		Subject:    booking.SubjectRef{Name: "Pat"},
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, b.ID, "patient request")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != booking.StatusCancelled || cancelled.Reason != "patient request" {
		t.Fatalf("unexpected cancel result: %+v", cancelled)
	}

	if _, err := f.svc.Cancel(ctx, b.ID, "again"); !errors.Is(err, booking.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on cancelling a cancelled booking, got %v", err)
	}

	// Cancelled slot is bookable again.
	if _, err := f.svc.Reserve(ctx, ReserveRequest{
		ProviderID: f.provider.ID,
		LocationID: f.provider.PrimaryLocationID,
		Date:       d,
		SlotStart:  slotAt(d, "13:00"),
		Subject:    booking.SubjectRef{Name: "Next"},
	}); err != nil {
		t.Fatalf("re-reserve after cancel: %v", err)
	}
}

func TestSweepCompletionsIdempotent(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	b := &booking.Booking{
		ProviderID:      f.provider.ID,
		LocationID:      f.provider.PrimaryLocationID,
		SlotStart:       past,
		DurationMinutes: 30,
		Status:          booking.StatusConfirmed,
	}
	if err := f.repo.CreateBooking(ctx, b); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	// A requested booking in the past is not swept; only confirmed ones are.
	stale := &booking.Booking{
		ProviderID:      f.provider.ID,
		LocationID:      f.provider.PrimaryLocationID,
		SlotStart:       past,
		DurationMinutes: 30,
		Status:          booking.StatusRequested,
	}
	if err := f.repo.CreateBooking(ctx, stale); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}

	swept, err := f.svc.SweepCompletions(ctx, &f.provider.ID)
	if err != nil {
		t.Fatalf("SweepCompletions: %v", err)
	}
	if len(swept) != 1 || swept[0].Status != booking.StatusCompleted {
		t.Fatalf("expected one completed booking, got %+v", swept)
	}

	again, err := f.svc.SweepCompletions(ctx, &f.provider.ID)
	if err != nil {
		t.Fatalf("second SweepCompletions: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", len(again))
	}
}

func TestScheduleWriteBoundary(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	bad := openWeek(timerange.TimeRange{Start: 960, End: 480})
	if err := f.svc.SetWeekCalendar(ctx, f.provider.ID, bad); !errors.Is(err, timerange.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}

	if err := f.svc.AddBreak(ctx, f.provider.ID, schedule.Break{Range: timerange.TimeRange{Start: 780, End: 720}}); !errors.Is(err, timerange.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval for inverted break, got %v", err)
	}

	d := futureDate()
	if err := f.svc.AddClosure(ctx, f.provider.ID, schedule.Closure{StartDate: d.AddDays(3), EndDate: d}); !errors.Is(err, timerange.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval for inverted closure, got %v", err)
	}
}

func TestBreakRemovesCoveredSlots(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	d := futureDate()

	before, err := f.svc.Availability(ctx, f.provider.ID, d, 0)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}

	if err := f.svc.AddBreak(ctx, f.provider.ID, schedule.Break{Range: timerange.TimeRange{Start: 720, End: 780}}); err != nil {
		t.Fatalf("AddBreak: %v", err)
	}

	after, err := f.svc.Availability(ctx, f.provider.ID, d, 0)
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(after) != len(before)-2 {
		t.Fatalf("expected the lunch break to remove 2 slots, got %d -> %d", len(before), len(after))
	}
	for _, s := range after {
		if !s.Start.Before(slotAt(d, "12:00")) && s.Start.Before(slotAt(d, "13:00")) {
			t.Fatalf("slot starting inside the break survived: %v", s.Start)
		}
	}
}
