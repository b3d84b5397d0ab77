// Package availability derives bookable slots from a provider's declared
// schedule, guest affiliations, and existing bookings. Generation is pure
// and side-effect free; an empty result is a valid answer, never an error.
package availability

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/booking"
	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

// Slot is one bookable window, tagged with the location offering it.
type Slot struct {
	Start           time.Time `json:"start"`
	LocationID      uuid.UUID `json:"location_id"`
	DurationMinutes int       `json:"duration_minutes"`
}

func (s Slot) End() time.Time {
	return s.Start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

// Inputs is the read-only snapshot Generate consumes. Affiliations must be
// confirmed grants for the target provider; Bookings must cover the target
// date at every location the provider serves.
type Inputs struct {
	Calendar          schedule.Calendar
	PrimaryLocationID uuid.UUID
	Affiliations      []booking.GuestAffiliation
	Bookings          []booking.Booking
	Location          *time.Location
}

// Generate returns the ordered slot starts for one provider and date.
//
// Primary-location slots are carved from the open interval minus merged
// breaks at the requested duration. Confirmed guest affiliations at another
// location layer their own windows on top, carved at the affiliation's own
// slot duration, and evict any primary slot they overlap in time (the
// provider cannot hold two concurrent offers). Finally every candidate that
// intersects an active booking, at either location and at the booking's true
// duration, is dropped.
func Generate(in Inputs, d timerange.Date, durationMinutes int) []Slot {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}

	affiliations := visitingAffiliations(in, d)

	var candidates []Slot

	if base, ok := in.Calendar.OpenInterval(d); ok && durationMinutes > 0 {
		blocked := in.Calendar.BlockedIntervals()
		for _, free := range timerange.SubtractRanges(base, blocked) {
			for _, start := range timerange.Carve(free, durationMinutes) {
				window := timerange.TimeRange{Start: start, End: start + timerange.TimeOfDay(durationMinutes)}
				if overlapsAnyWindow(window, affiliations) {
					continue
				}
				candidates = append(candidates, Slot{
					Start:           d.At(start, loc),
					LocationID:      in.PrimaryLocationID,
					DurationMinutes: durationMinutes,
				})
			}
		}
	}

	for _, aff := range affiliations {
		for _, start := range timerange.Carve(aff.Window, aff.SlotMinutes) {
			candidates = append(candidates, Slot{
				Start:           d.At(start, loc),
				LocationID:      aff.HostLocationID,
				DurationMinutes: aff.SlotMinutes,
			})
		}
	}

	candidates = dropBooked(candidates, in.Bookings)

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].Start.Equal(candidates[j].Start) {
			return candidates[i].Start.Before(candidates[j].Start)
		}
		return bytes.Compare(candidates[i].LocationID[:], candidates[j].LocationID[:]) < 0
	})
	return candidates
}

// visitingAffiliations keeps confirmed grants for the date at a location
// other than the provider's primary one.
func visitingAffiliations(in Inputs, d timerange.Date) []booking.GuestAffiliation {
	var out []booking.GuestAffiliation
	for _, aff := range in.Affiliations {
		if aff.Status != booking.AffiliationConfirmed {
			continue
		}
		if aff.Date != d {
			continue
		}
		if aff.HostLocationID == in.PrimaryLocationID {
			continue
		}
		out = append(out, aff)
	}
	return out
}

func overlapsAnyWindow(r timerange.TimeRange, affiliations []booking.GuestAffiliation) bool {
	for _, aff := range affiliations {
		if r.Overlaps(aff.Window) {
			return true
		}
	}
	return false
}

// dropBooked removes candidates intersecting an active booking at the
// booking's true duration, regardless of location.
func dropBooked(candidates []Slot, bookings []booking.Booking) []Slot {
	if len(candidates) == 0 {
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		occupied := false
		for _, b := range bookings {
			if !b.Active() {
				continue
			}
			if c.Start.Before(b.SlotEnd()) && b.SlotStart.Before(c.End()) {
				occupied = true
				break
			}
		}
		if !occupied {
			kept = append(kept, c)
		}
	}
	return kept
}
