package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/timerange"
)

type BookingStatus string

const (
	StatusRequested BookingStatus = "requested"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

type AffiliationStatus string

const (
	AffiliationPending   AffiliationStatus = "pending"
	AffiliationConfirmed AffiliationStatus = "confirmed"
	AffiliationCancelled AffiliationStatus = "cancelled"
)

type InitiatorRole string

const (
	InitiatedByHost     InitiatorRole = "host"
	InitiatedByProvider InitiatorRole = "provider"
)

// Provider is a doctor or clinic that owns a schedule and receives bookings.
type Provider struct {
	ID                uuid.UUID
	Name              string
	PrimaryLocationID uuid.UUID
	SlotMinutes       int
	AutoConfirm       bool
	TimeZone          string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Service sizes a slot when a booking is tied to a specific service;
// otherwise the provider's default SlotMinutes applies.
type Service struct {
	ID                 uuid.UUID
	ProviderID         uuid.UUID
	Name               string
	DurationMinutes    int
	PriceMinor         *int64
	DiscountPriceMinor *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SubjectRef identifies who the booking is for: a registered user or a
// guest contact.
type SubjectRef struct {
	UserID *uuid.UUID
	Name   string
	Phone  string
}

type Booking struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	LocationID      uuid.UUID
	AffiliationID   *uuid.UUID
	SlotStart       time.Time
	DurationMinutes int
	ServiceID       *uuid.UUID
	Subject         SubjectRef
	Status          BookingStatus
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SlotEnd is the exclusive end of the booked window.
func (b Booking) SlotEnd() time.Time {
	return b.SlotStart.Add(time.Duration(b.DurationMinutes) * time.Minute)
}

// Active reports whether the booking still occupies its slot.
func (b Booking) Active() bool {
	return b.Status == StatusRequested || b.Status == StatusConfirmed
}

// GuestAffiliation is a time-boxed grant letting a provider be booked at a
// host location other than their primary one, for a single date and window.
type GuestAffiliation struct {
	ID             uuid.UUID
	ProviderID     uuid.UUID
	HostLocationID uuid.UUID
	Date           timerange.Date
	Window         timerange.TimeRange
	SlotMinutes    int
	Status         AffiliationStatus
	InitiatedBy    InitiatorRole
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EventLog is an append-only audit record for every engine mutation.
type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
