package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrAffiliationNotFound = errors.New("guest affiliation not found")
	ErrStatusConflict      = errors.New("status changed concurrently")
)

// Repository contains all storage interactions needed by the service.
// UpdateBookingStatus and UpdateAffiliationStatus are compare-and-set on the
// current status and return ErrStatusConflict when the stored status is no
// longer `from`.
type Repository interface {
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetService(ctx context.Context, id uuid.UUID) (*Service, error)

	// Declared availability
	GetCalendar(ctx context.Context, providerID uuid.UUID) (*schedule.Calendar, error)
	PutWeekCalendar(ctx context.Context, providerID uuid.UUID, week schedule.WeekCalendar) error
	AddBreak(ctx context.Context, providerID uuid.UUID, b schedule.Break) error
	RemoveBreak(ctx context.Context, providerID uuid.UUID, r timerange.TimeRange) error
	AddClosure(ctx context.Context, providerID uuid.UUID, c schedule.Closure) error
	RemoveClosure(ctx context.Context, providerID uuid.UUID, startDate timerange.Date) error

	// Bookings
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	CreateBooking(ctx context.Context, b *Booking) error
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, reason string) (*Booking, error)
	ListBookingsOn(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]Booking, error)
	ListBookingsByAffiliation(ctx context.Context, affiliationID uuid.UUID) ([]Booking, error)

	// Completion sweep
	FindSweepCandidates(ctx context.Context, providerID *uuid.UUID, now time.Time) ([]Booking, error)

	// Guest affiliations
	GetAffiliation(ctx context.Context, id uuid.UUID) (*GuestAffiliation, error)
	CreateAffiliation(ctx context.Context, a *GuestAffiliation) error
	UpdateAffiliationStatus(ctx context.Context, id uuid.UUID, from, to AffiliationStatus) (*GuestAffiliation, error)
	ListConfirmedAffiliations(ctx context.Context, providerID uuid.UUID, date timerange.Date) ([]GuestAffiliation, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
