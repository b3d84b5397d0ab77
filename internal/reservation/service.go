// Package reservation is the only mutator of booking state. Every write to a
// provider's bookings for a date runs under that (provider, date) lock, and
// reservations re-derive availability inside the critical section so a stale
// client slot list can never win a race.
package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medidir/booking-engine/internal/availability"
	"github.com/medidir/booking-engine/internal/booking"
	"github.com/medidir/booking-engine/internal/metrics"
	redisclient "github.com/medidir/booking-engine/internal/redis"
	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

const (
	EventReservationCreated   = "RESERVATION_CREATED"
	EventBookingConfirmed     = "BOOKING_CONFIRMED"
	EventBookingCancelled     = "BOOKING_CANCELLED"
	EventBookingCompleted     = "BOOKING_COMPLETED"
	EventAffiliationProposed  = "AFFILIATION_PROPOSED"
	EventAffiliationConfirmed = "AFFILIATION_CONFIRMED"
	EventAffiliationCancelled = "AFFILIATION_CANCELLED"
)

var (
	ErrSlotNoLongerAvailable      = errors.New("slot is no longer available")
	ErrPastSlot                   = errors.New("slot start has already elapsed")
	ErrLocationMismatch           = errors.New("location is not valid for the provider")
	ErrOverlapsExistingCommitment = errors.New("provider already has a commitment overlapping that window")
)

type Service struct {
	repo   booking.Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo booking.Repository, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    log,
	}
}

// ReserveRequest names a provider, a slot, and who the booking is for.
// DurationMinutes zero means "use the service's duration if ServiceID is
// set, otherwise the provider's default".
type ReserveRequest struct {
	ProviderID      uuid.UUID
	LocationID      uuid.UUID
	Date            timerange.Date
	SlotStart       time.Time
	DurationMinutes int
	Subject         booking.SubjectRef
	ServiceID       *uuid.UUID
}

// Availability returns the bookable slots for one provider and date. This is
// the lock-free read path; a possibly stale answer is fine because Reserve
// re-derives under the lock before committing.
func (s *Service) Availability(ctx context.Context, providerID uuid.UUID, date timerange.Date, durationMinutes int) ([]availability.Slot, error) {
	provider, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	duration := durationMinutes
	if duration <= 0 {
		duration = provider.SlotMinutes
	}

	in, err := s.snapshot(ctx, provider, date)
	if err != nil {
		return nil, err
	}
	return availability.Generate(*in, date, duration), nil
}

// Reserve commits a booking for one slot, or reports why it cannot.
// The re-derive inside the lock is the correctness mechanism: no other
// writer can insert a conflicting booking between the check and the commit.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (*booking.Booking, error) {
	provider, err := s.repo.GetProvider(ctx, req.ProviderID)
	if err != nil {
		metrics.RecordReservation("error")
		return nil, err
	}

	duration, serviceID, err := s.resolveDuration(ctx, provider, req)
	if err != nil {
		metrics.RecordReservation("error")
		return nil, err
	}

	var created *booking.Booking

	err = s.locker.WithProviderDateLock(ctx, req.ProviderID, req.Date, func(lockCtx context.Context) error {
		in, err := s.snapshot(lockCtx, provider, req.Date)
		if err != nil {
			return err
		}

		slots := availability.Generate(*in, req.Date, duration)

		// A slot counts only when its length matches too: host-location
		// slots are carved at the affiliation's own duration, and a longer
		// booking would spill past the declared window.
		matched := false
		locationSeen := false
		for _, slot := range slots {
			if !slot.Start.Equal(req.SlotStart) || slot.DurationMinutes != duration {
				continue
			}
			matched = true
			if slot.LocationID == req.LocationID {
				locationSeen = true
				break
			}
		}
		if !matched {
			return ErrSlotNoLongerAvailable
		}
		if !req.SlotStart.After(time.Now()) {
			return ErrPastSlot
		}
		if !locationSeen {
			return ErrLocationMismatch
		}

		status := booking.StatusRequested
		if provider.AutoConfirm {
			status = booking.StatusConfirmed
		}

		b := &booking.Booking{
			ID:              uuid.New(),
			ProviderID:      req.ProviderID,
			LocationID:      req.LocationID,
			AffiliationID:   coveringAffiliation(in.Affiliations, req.LocationID),
			SlotStart:       req.SlotStart,
			DurationMinutes: duration,
			ServiceID:       serviceID,
			Subject:         req.Subject,
			Status:          status,
		}
		if err := s.repo.CreateBooking(lockCtx, b); err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		created = b

		s.logEvent(lockCtx, EventReservationCreated, &b.ID, map[string]any{
			"provider_id": req.ProviderID.String(),
			"location_id": req.LocationID.String(),
			"slot_start":  req.SlotStart,
			"duration":    duration,
			"status":      string(status),
		})
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, ErrSlotNoLongerAvailable),
			errors.Is(err, ErrLocationMismatch),
			errors.Is(err, ErrPastSlot),
			errors.Is(err, redisclient.ErrLockNotAcquired):
			metrics.RecordReservation("conflict")
		default:
			metrics.RecordReservation("error")
		}
		return nil, err
	}

	metrics.RecordReservation("created")
	return created, nil
}

// Confirm moves a requested booking to confirmed (provider acceptance when
// auto-confirm is off).
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := booking.CheckTransition(b.Status, booking.StatusConfirmed); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateBookingStatus(ctx, id, booking.StatusRequested, booking.StatusConfirmed, "")
	if err != nil {
		if errors.Is(err, booking.ErrStatusConflict) {
			// Lost a race with another transition.
			return nil, fmt.Errorf("confirm booking: %w", booking.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("confirm booking: %w", err)
	}

	s.logEvent(ctx, EventBookingConfirmed, &updated.ID, map[string]any{})
	return updated, nil
}

// Cancel moves any non-terminal booking to cancelled. It runs under the same
// (provider, date) key as reservations so a cancel and a concurrent new
// reservation cannot land inconsistently.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*booking.Booking, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	provider, err := s.repo.GetProvider(ctx, b.ProviderID)
	if err != nil {
		return nil, err
	}
	date := timerange.DateOf(b.SlotStart, providerLocation(provider))

	var updated *booking.Booking
	err = s.locker.WithProviderDateLock(ctx, b.ProviderID, date, func(lockCtx context.Context) error {
		current, err := s.repo.GetBooking(lockCtx, id)
		if err != nil {
			return err
		}
		if err := booking.CheckTransition(current.Status, booking.StatusCancelled); err != nil {
			return err
		}
		updated, err = s.repo.UpdateBookingStatus(lockCtx, id, current.Status, booking.StatusCancelled, reason)
		if err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		s.logEvent(lockCtx, EventBookingCancelled, &updated.ID, map[string]any{"reason": reason})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCancellation()
	return updated, nil
}

// SweepCompletions transitions every confirmed booking whose window has
// fully elapsed to completed. Idempotent: a second run finds nothing to do.
func (s *Service) SweepCompletions(ctx context.Context, providerID *uuid.UUID) ([]booking.Booking, error) {
	candidates, err := s.repo.FindSweepCandidates(ctx, providerID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("find sweep candidates: %w", err)
	}

	var swept []booking.Booking
	for _, b := range candidates {
		updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, booking.StatusConfirmed, booking.StatusCompleted, "")
		if err != nil {
			// A concurrent cancel or an earlier sweep already moved it on.
			if errors.Is(err, booking.ErrStatusConflict) || errors.Is(err, booking.ErrBookingNotFound) {
				continue
			}
			s.log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("sweep transition failed")
			continue
		}
		swept = append(swept, *updated)
		metrics.RecordCompletionSwept()
		s.logEvent(ctx, EventBookingCompleted, &updated.ID, map[string]any{"swept": true})
	}
	return swept, nil
}

// ProposeAffiliationRequest starts the guest visit handshake; the other
// party finalizes it through RespondAffiliation.
type ProposeAffiliationRequest struct {
	ProviderID     uuid.UUID
	HostLocationID uuid.UUID
	Date           timerange.Date
	Window         timerange.TimeRange
	SlotMinutes    int
	InitiatedBy    booking.InitiatorRole
}

func (s *Service) ProposeAffiliation(ctx context.Context, req ProposeAffiliationRequest) (*booking.GuestAffiliation, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	if req.SlotMinutes <= 0 {
		return nil, fmt.Errorf("slot duration must be positive: %w", timerange.ErrInvalidInterval)
	}
	if _, err := s.repo.GetProvider(ctx, req.ProviderID); err != nil {
		return nil, err
	}

	a := &booking.GuestAffiliation{
		ID:             uuid.New(),
		ProviderID:     req.ProviderID,
		HostLocationID: req.HostLocationID,
		Date:           req.Date,
		Window:         req.Window,
		SlotMinutes:    req.SlotMinutes,
		Status:         booking.AffiliationPending,
		InitiatedBy:    req.InitiatedBy,
	}
	if err := s.repo.CreateAffiliation(ctx, a); err != nil {
		return nil, fmt.Errorf("create affiliation: %w", err)
	}

	s.logEvent(ctx, EventAffiliationProposed, nil, map[string]any{
		"affiliation_id": a.ID.String(),
		"provider_id":    a.ProviderID.String(),
		"date":           a.Date.String(),
		"window":         a.Window.String(),
	})
	return a, nil
}

// AffiliationDecision carries the finalized affiliation and, for a cancelled
// confirmed visit, every booking the cancellation cascaded to.
type AffiliationDecision struct {
	Affiliation      *booking.GuestAffiliation
	CascadeCancelled []booking.Booking
}

// RespondAffiliation finalizes a guest visit. Confirming fails when the
// provider already has an overlapping commitment elsewhere; cancelling a
// confirmed visit cascade-cancels any booking placed against its window and
// reports them to the caller rather than dropping them silently.
func (s *Service) RespondAffiliation(ctx context.Context, id uuid.UUID, decision booking.AffiliationStatus) (*AffiliationDecision, error) {
	if decision != booking.AffiliationConfirmed && decision != booking.AffiliationCancelled {
		return nil, fmt.Errorf("decision %q: %w", decision, booking.ErrInvalidTransition)
	}

	aff, err := s.repo.GetAffiliation(ctx, id)
	if err != nil {
		return nil, err
	}
	provider, err := s.repo.GetProvider(ctx, aff.ProviderID)
	if err != nil {
		return nil, err
	}

	var result *AffiliationDecision
	err = s.locker.WithProviderDateLock(ctx, aff.ProviderID, aff.Date, func(lockCtx context.Context) error {
		current, err := s.repo.GetAffiliation(lockCtx, id)
		if err != nil {
			return err
		}
		if err := booking.CheckAffiliationTransition(current.Status, decision); err != nil {
			return err
		}

		if decision == booking.AffiliationConfirmed {
			if err := s.checkNoOverlappingCommitment(lockCtx, provider, current); err != nil {
				return err
			}
			updated, err := s.repo.UpdateAffiliationStatus(lockCtx, id, current.Status, booking.AffiliationConfirmed)
			if err != nil {
				return fmt.Errorf("confirm affiliation: %w", err)
			}
			result = &AffiliationDecision{Affiliation: updated}
			s.logEvent(lockCtx, EventAffiliationConfirmed, nil, map[string]any{"affiliation_id": id.String()})
			return nil
		}

		wasConfirmed := current.Status == booking.AffiliationConfirmed
		updated, err := s.repo.UpdateAffiliationStatus(lockCtx, id, current.Status, booking.AffiliationCancelled)
		if err != nil {
			return fmt.Errorf("cancel affiliation: %w", err)
		}
		result = &AffiliationDecision{Affiliation: updated}
		s.logEvent(lockCtx, EventAffiliationCancelled, nil, map[string]any{"affiliation_id": id.String()})

		if !wasConfirmed {
			return nil
		}

		// The slots this visit offered no longer exist; bookings placed
		// against them are cancelled and reported back.
		placed, err := s.repo.ListBookingsByAffiliation(lockCtx, id)
		if err != nil {
			return fmt.Errorf("list affiliation bookings: %w", err)
		}
		for _, b := range placed {
			if !b.Active() {
				continue
			}
			cancelled, err := s.repo.UpdateBookingStatus(lockCtx, b.ID, b.Status, booking.StatusCancelled, "guest visit cancelled")
			if err != nil {
				if errors.Is(err, booking.ErrStatusConflict) {
					continue
				}
				return fmt.Errorf("cascade cancel booking %s: %w", b.ID, err)
			}
			result.CascadeCancelled = append(result.CascadeCancelled, *cancelled)
			metrics.RecordCancellation()
			s.logEvent(lockCtx, EventBookingCancelled, &cancelled.ID, map[string]any{
				"reason":         "guest visit cancelled",
				"affiliation_id": id.String(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordAffiliationDecision(string(decision))
	return result, nil
}

// SetWeekCalendar, AddBreak, AddClosure and their removals are the schedule
// write boundary: malformed intervals are rejected here and never reach the
// generator.

func (s *Service) SetWeekCalendar(ctx context.Context, providerID uuid.UUID, week schedule.WeekCalendar) error {
	if err := week.Validate(); err != nil {
		return err
	}
	if _, err := s.repo.GetProvider(ctx, providerID); err != nil {
		return err
	}
	return s.repo.PutWeekCalendar(ctx, providerID, week)
}

// SetDayRule rewrites a single weekday, leaving the other six untouched.
func (s *Service) SetDayRule(ctx context.Context, providerID uuid.UUID, weekday time.Weekday, rule schedule.DayRule) error {
	if rule.Open {
		if err := rule.Hours.Validate(); err != nil {
			return err
		}
	}
	cal, err := s.repo.GetCalendar(ctx, providerID)
	if err != nil {
		return err
	}
	week := cal.Week
	week[weekday] = rule
	return s.repo.PutWeekCalendar(ctx, providerID, week)
}

func (s *Service) AddBreak(ctx context.Context, providerID uuid.UUID, b schedule.Break) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.repo.AddBreak(ctx, providerID, b)
}

func (s *Service) RemoveBreak(ctx context.Context, providerID uuid.UUID, r timerange.TimeRange) error {
	return s.repo.RemoveBreak(ctx, providerID, r)
}

func (s *Service) AddClosure(ctx context.Context, providerID uuid.UUID, c schedule.Closure) error {
	if err := c.Validate(); err != nil {
		return err
	}
	return s.repo.AddClosure(ctx, providerID, c)
}

func (s *Service) RemoveClosure(ctx context.Context, providerID uuid.UUID, startDate timerange.Date) error {
	return s.repo.RemoveClosure(ctx, providerID, startDate)
}

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookings returns a provider's bookings for one date, any status.
func (s *Service) ListBookings(ctx context.Context, providerID uuid.UUID, date timerange.Date) ([]booking.Booking, error) {
	provider, err := s.repo.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := providerLocation(provider)
	return s.repo.ListBookingsOn(ctx, providerID, date.At(0, loc), date.AddDays(1).At(0, loc))
}

// snapshot loads everything the generator needs for one provider and date.
func (s *Service) snapshot(ctx context.Context, provider *booking.Provider, date timerange.Date) (*availability.Inputs, error) {
	loc := providerLocation(provider)

	cal, err := s.repo.GetCalendar(ctx, provider.ID)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	affs, err := s.repo.ListConfirmedAffiliations(ctx, provider.ID, date)
	if err != nil {
		return nil, fmt.Errorf("load affiliations: %w", err)
	}
	bookings, err := s.repo.ListBookingsOn(ctx, provider.ID, date.At(0, loc), date.AddDays(1).At(0, loc))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	return &availability.Inputs{
		Calendar:          *cal,
		PrimaryLocationID: provider.PrimaryLocationID,
		Affiliations:      affs,
		Bookings:          bookings,
		Location:          loc,
	}, nil
}

func (s *Service) resolveDuration(ctx context.Context, provider *booking.Provider, req ReserveRequest) (int, *uuid.UUID, error) {
	if req.ServiceID != nil {
		svc, err := s.repo.GetService(ctx, *req.ServiceID)
		if err != nil {
			return 0, nil, err
		}
		if svc.ProviderID != provider.ID {
			return 0, nil, booking.ErrServiceNotFound
		}
		return svc.DurationMinutes, req.ServiceID, nil
	}
	if req.DurationMinutes > 0 {
		return req.DurationMinutes, nil, nil
	}
	return provider.SlotMinutes, nil, nil
}

// checkNoOverlappingCommitment rejects a confirmation when the provider is
// already committed elsewhere for that window: a confirmed affiliation at
// another location, or any active booking at a location other than the host.
func (s *Service) checkNoOverlappingCommitment(ctx context.Context, provider *booking.Provider, aff *booking.GuestAffiliation) error {
	others, err := s.repo.ListConfirmedAffiliations(ctx, provider.ID, aff.Date)
	if err != nil {
		return fmt.Errorf("load affiliations: %w", err)
	}
	for _, other := range others {
		if other.ID == aff.ID || other.HostLocationID == aff.HostLocationID {
			continue
		}
		if other.Window.Overlaps(aff.Window) {
			return ErrOverlapsExistingCommitment
		}
	}

	loc := providerLocation(provider)
	windowStart := aff.Date.At(aff.Window.Start, loc)
	windowEnd := aff.Date.At(aff.Window.End, loc)

	bookings, err := s.repo.ListBookingsOn(ctx, provider.ID, aff.Date.At(0, loc), aff.Date.AddDays(1).At(0, loc))
	if err != nil {
		return fmt.Errorf("load bookings: %w", err)
	}
	for _, b := range bookings {
		if !b.Active() || b.LocationID == aff.HostLocationID {
			continue
		}
		if b.SlotStart.Before(windowEnd) && windowStart.Before(b.SlotEnd()) {
			return ErrOverlapsExistingCommitment
		}
	}
	return nil
}

func coveringAffiliation(affs []booking.GuestAffiliation, locationID uuid.UUID) *uuid.UUID {
	for _, a := range affs {
		if a.HostLocationID == locationID {
			id := a.ID
			return &id
		}
	}
	return nil
}

func providerLocation(p *booking.Provider) *time.Location {
	if p.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Service) logEvent(ctx context.Context, eventType string, bookingID *uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := booking.EventLog{
		EventType: eventType,
		BookingID: bookingID,
		Payload:   data,
		CreatedAt: time.Now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("insert event log")
	}
}
