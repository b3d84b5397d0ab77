package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/booking"
)

type SubjectPayload struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Name   string     `json:"name"`
	Phone  string     `json:"phone,omitempty"`
}

type ReserveBookingRequest struct {
	ProviderID      string         `json:"provider_id"`
	LocationID      string         `json:"location_id"`
	Date            string         `json:"date"`       // 2006-01-02
	SlotStart       time.Time      `json:"slot_start"` // RFC 3339
	DurationMinutes int            `json:"duration_minutes,omitempty"`
	ServiceID       *string        `json:"service_id,omitempty"`
	Subject         SubjectPayload `json:"subject"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason,omitempty"`
}

type BookingResponse struct {
	ID              uuid.UUID      `json:"id"`
	ProviderID      uuid.UUID      `json:"provider_id"`
	LocationID      uuid.UUID      `json:"location_id"`
	AffiliationID   *uuid.UUID     `json:"affiliation_id,omitempty"`
	SlotStart       time.Time      `json:"slot_start"`
	DurationMinutes int            `json:"duration_minutes"`
	ServiceID       *uuid.UUID     `json:"service_id,omitempty"`
	Subject         SubjectPayload `json:"subject"`
	Status          string         `json:"status"`
	Reason          string         `json:"reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		ProviderID:      b.ProviderID,
		LocationID:      b.LocationID,
		AffiliationID:   b.AffiliationID,
		SlotStart:       b.SlotStart,
		DurationMinutes: b.DurationMinutes,
		ServiceID:       b.ServiceID,
		Subject: SubjectPayload{
			UserID: b.Subject.UserID,
			Name:   b.Subject.Name,
			Phone:  b.Subject.Phone,
		},
		Status:    string(b.Status),
		Reason:    b.Reason,
		CreatedAt: b.CreatedAt,
	}
}

func toBookingResponses(bs []booking.Booking) []BookingResponse {
	out := make([]BookingResponse, 0, len(bs))
	for i := range bs {
		out = append(out, toBookingResponse(&bs[i]))
	}
	return out
}

type DayRulePayload struct {
	Weekday int    `json:"weekday"` // 0 = Sunday
	Open    bool   `json:"open"`
	Start   string `json:"start,omitempty"` // HH:MM
	End     string `json:"end,omitempty"`
}

type WeekCalendarRequest struct {
	Days []DayRulePayload `json:"days"`
}

type BreakRequest struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`
}

type ClosureRequest struct {
	StartDate string `json:"start_date"` // 2006-01-02
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

type ProposeAffiliationRequest struct {
	ProviderID     string `json:"provider_id"`
	HostLocationID string `json:"host_location_id"`
	Date           string `json:"date"`
	WindowStart    string `json:"window_start"` // HH:MM
	WindowEnd      string `json:"window_end"`
	SlotMinutes    int    `json:"slot_minutes"`
	InitiatedBy    string `json:"initiated_by"` // host | provider
}

type AffiliationResponse struct {
	ID             uuid.UUID `json:"id"`
	ProviderID     uuid.UUID `json:"provider_id"`
	HostLocationID uuid.UUID `json:"host_location_id"`
	Date           string    `json:"date"`
	WindowStart    string    `json:"window_start"`
	WindowEnd      string    `json:"window_end"`
	SlotMinutes    int       `json:"slot_minutes"`
	Status         string    `json:"status"`
	InitiatedBy    string    `json:"initiated_by"`
	CreatedAt      time.Time `json:"created_at"`
}

func toAffiliationResponse(a *booking.GuestAffiliation) AffiliationResponse {
	return AffiliationResponse{
		ID:             a.ID,
		ProviderID:     a.ProviderID,
		HostLocationID: a.HostLocationID,
		Date:           a.Date.String(),
		WindowStart:    a.Window.Start.String(),
		WindowEnd:      a.Window.End.String(),
		SlotMinutes:    a.SlotMinutes,
		Status:         string(a.Status),
		InitiatedBy:    string(a.InitiatedBy),
		CreatedAt:      a.CreatedAt,
	}
}

type RespondAffiliationRequest struct {
	Decision string `json:"decision"` // confirmed | cancelled
}

type AffiliationDecisionResponse struct {
	Affiliation      AffiliationResponse `json:"affiliation"`
	CascadeCancelled []BookingResponse   `json:"cascade_cancelled"`
}

type SweepRequest struct {
	ProviderID *string `json:"provider_id,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
