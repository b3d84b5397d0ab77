package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

// MemoryRepository is an in-memory Repository used by tests and single-node
// deployments. All maps are guarded by one RWMutex; the compare-and-set
// status updates give the same guarantees as the Postgres implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	providers    map[uuid.UUID]*Provider
	services     map[uuid.UUID]*Service
	calendars    map[uuid.UUID]*schedule.Calendar
	bookings     map[uuid.UUID]*Booking
	affiliations map[uuid.UUID]*GuestAffiliation
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:    make(map[uuid.UUID]*Provider),
		services:     make(map[uuid.UUID]*Service),
		calendars:    make(map[uuid.UUID]*schedule.Calendar),
		bookings:     make(map[uuid.UUID]*Booking),
		affiliations: make(map[uuid.UUID]*GuestAffiliation),
	}
}

// PutProvider registers a provider with an empty calendar if none exists.
func (m *MemoryRepository) PutProvider(p *Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.providers[p.ID] = &cp
	if _, ok := m.calendars[p.ID]; !ok {
		m.calendars[p.ID] = &schedule.Calendar{}
	}
}

func (m *MemoryRepository) PutService(s *Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.services[s.ID] = &cp
}

func (m *MemoryRepository) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) GetService(_ context.Context, id uuid.UUID) (*Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryRepository) GetCalendar(_ context.Context, providerID uuid.UUID) (*schedule.Calendar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cal, ok := m.calendars[providerID]
	if !ok {
		return nil, ErrProviderNotFound
	}
	cp := schedule.Calendar{
		Week:     cal.Week,
		Closures: append([]schedule.Closure(nil), cal.Closures...),
		Breaks:   append([]schedule.Break(nil), cal.Breaks...),
	}
	return &cp, nil
}

func (m *MemoryRepository) PutWeekCalendar(_ context.Context, providerID uuid.UUID, week schedule.WeekCalendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	cal.Week = week
	return nil
}

func (m *MemoryRepository) AddBreak(_ context.Context, providerID uuid.UUID, b schedule.Break) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	cal.Breaks = append(cal.Breaks, b)
	return nil
}

func (m *MemoryRepository) RemoveBreak(_ context.Context, providerID uuid.UUID, r timerange.TimeRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	kept := cal.Breaks[:0]
	for _, b := range cal.Breaks {
		if b.Range != r {
			kept = append(kept, b)
		}
	}
	cal.Breaks = kept
	return nil
}

func (m *MemoryRepository) AddClosure(_ context.Context, providerID uuid.UUID, c schedule.Closure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	cal.Closures = append(cal.Closures, c)
	return nil
}

func (m *MemoryRepository) RemoveClosure(_ context.Context, providerID uuid.UUID, startDate timerange.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	kept := cal.Closures[:0]
	for _, c := range cal.Closures {
		if c.StartDate != startDate {
			kept = append(kept, c)
		}
	}
	cal.Closures = kept
	return nil
}

func (m *MemoryRepository) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryRepository) CreateBooking(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryRepository) UpdateBookingStatus(_ context.Context, id uuid.UUID, from, to BookingStatus, reason string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if b.Status != from {
		return nil, fmt.Errorf("booking %s is %s, expected %s: %w", id, b.Status, from, ErrStatusConflict)
	}
	b.Status = to
	if reason != "" {
		b.Reason = reason
	}
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (m *MemoryRepository) ListBookingsOn(_ context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.ProviderID != providerID {
			continue
		}
		if b.SlotStart.Before(dayStart) || !b.SlotStart.Before(dayEnd) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *MemoryRepository) ListBookingsByAffiliation(_ context.Context, affiliationID uuid.UUID) ([]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.AffiliationID != nil && *b.AffiliationID == affiliationID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *MemoryRepository) FindSweepCandidates(_ context.Context, providerID *uuid.UUID, now time.Time) ([]Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Booking
	for _, b := range m.bookings {
		if b.Status != StatusConfirmed {
			continue
		}
		if providerID != nil && b.ProviderID != *providerID {
			continue
		}
		if b.SlotEnd().After(now) {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *MemoryRepository) GetAffiliation(_ context.Context, id uuid.UUID) (*GuestAffiliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.affiliations[id]
	if !ok {
		return nil, ErrAffiliationNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) CreateAffiliation(_ context.Context, a *GuestAffiliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	m.affiliations[a.ID] = &cp
	return nil
}

func (m *MemoryRepository) UpdateAffiliationStatus(_ context.Context, id uuid.UUID, from, to AffiliationStatus) (*GuestAffiliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.affiliations[id]
	if !ok {
		return nil, ErrAffiliationNotFound
	}
	if a.Status != from {
		return nil, fmt.Errorf("affiliation %s is %s, expected %s: %w", id, a.Status, from, ErrStatusConflict)
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *MemoryRepository) ListConfirmedAffiliations(_ context.Context, providerID uuid.UUID, date timerange.Date) ([]GuestAffiliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []GuestAffiliation
	for _, a := range m.affiliations {
		if a.ProviderID != providerID || a.Status != AffiliationConfirmed || a.Date != date {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the audit log, oldest first.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}
