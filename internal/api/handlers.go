package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/availability"
	"github.com/medidir/booking-engine/internal/booking"
	redisclient "github.com/medidir/booking-engine/internal/redis"
	"github.com/medidir/booking-engine/internal/reservation"
	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

func getAvailabilityHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}

		dateStr := r.URL.Query().Get("date")
		if dateStr == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}
		date, err := timerange.ParseDate(dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		duration := 0
		if d := r.URL.Query().Get("duration"); d != "" {
			parsed, err := parsePositiveInt(d)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive integer")
				return
			}
			duration = parsed
		}

		slots, err := svc.Availability(r.Context(), providerID, date, duration)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		if slots == nil {
			slots = []availability.Slot{}
		}
		writeJSON(w, http.StatusOK, slots)
	}
}

func reserveHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		locationID, err := uuid.Parse(req.LocationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_location_id", "location_id must be a valid UUID")
			return
		}
		date, err := timerange.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		if req.SlotStart.IsZero() {
			writeError(w, http.StatusBadRequest, "missing_slot_start", "slot_start is required")
			return
		}

		var serviceID *uuid.UUID
		if req.ServiceID != nil {
			id, err := uuid.Parse(*req.ServiceID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
				return
			}
			serviceID = &id
		}

		b, err := svc.Reserve(r.Context(), reservation.ReserveRequest{
			ProviderID:      providerID,
			LocationID:      locationID,
			Date:            date,
			SlotStart:       req.SlotStart,
			DurationMinutes: req.DurationMinutes,
			Subject: booking.SubjectRef{
				UserID: req.Subject.UserID,
				Name:   req.Subject.Name,
				Phone:  req.Subject.Phone,
			},
			ServiceID: serviceID,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		b, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func listBookingsHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		date, err := timerange.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		bs, err := svc.ListBookings(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponses(bs))
	}
}

// listBookingsQueryHandler is the query-parameter form of the provider
// bookings listing, for clients that only hold IDs.
func listBookingsQueryHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		date, err := timerange.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		bs, err := svc.ListBookings(r.Context(), providerID, date)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponses(bs))
	}
}

func confirmBookingHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		b, err := svc.Confirm(r.Context(), id)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func cancelBookingHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req CancelBookingRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}
		b, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func putWeekCalendarHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		var req WeekCalendarRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var week schedule.WeekCalendar
		for _, day := range req.Days {
			if day.Weekday < 0 || day.Weekday > 6 {
				writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0..6")
				return
			}
			rule := schedule.DayRule{Open: day.Open}
			if day.Open {
				start, err := timerange.ParseClock(day.Start)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_clock", "start must be HH:MM")
					return
				}
				end, err := timerange.ParseClock(day.End)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_clock", "end must be HH:MM")
					return
				}
				rule.Hours = timerange.TimeRange{Start: start, End: end}
			}
			week[day.Weekday] = rule
		}

		if err := svc.SetWeekCalendar(r.Context(), providerID, week); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func setDayRuleHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		var req DayRulePayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0..6")
			return
		}
		rule := schedule.DayRule{Open: req.Open}
		if req.Open {
			start, err := timerange.ParseClock(req.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clock", "start must be HH:MM")
				return
			}
			end, err := timerange.ParseClock(req.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_clock", "end must be HH:MM")
				return
			}
			rule.Hours = timerange.TimeRange{Start: start, End: end}
		}
		if err := svc.SetDayRule(r.Context(), providerID, time.Weekday(req.Weekday), rule); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addBreakHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		rng, ok := parseBreakBody(w, r)
		if !ok {
			return
		}
		if err := svc.AddBreak(r.Context(), providerID, schedule.Break{Range: rng}); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeBreakHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		rng, ok := parseBreakBody(w, r)
		if !ok {
			return
		}
		if err := svc.RemoveBreak(r.Context(), providerID, rng); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseBreakBody(w http.ResponseWriter, r *http.Request) (timerange.TimeRange, bool) {
	var req BreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return timerange.TimeRange{}, false
	}
	start, err := timerange.ParseClock(req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clock", "start must be HH:MM")
		return timerange.TimeRange{}, false
	}
	end, err := timerange.ParseClock(req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_clock", "end must be HH:MM")
		return timerange.TimeRange{}, false
	}
	return timerange.TimeRange{Start: start, End: end}, true
}

func addClosureHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		var req ClosureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		start, err := timerange.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD")
			return
		}
		end, err := timerange.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD")
			return
		}
		if err := svc.AddClosure(r.Context(), providerID, schedule.Closure{
			StartDate: start,
			EndDate:   end,
			Reason:    req.Reason,
		}); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeClosureHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUIDParam(w, r, "providerID")
		if !ok {
			return
		}
		startDate, err := timerange.ParseDate(chi.URLParam(r, "startDate"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "closure date must be YYYY-MM-DD")
			return
		}
		if err := svc.RemoveClosure(r.Context(), providerID, startDate); err != nil {
			handleDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func proposeAffiliationHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProposeAffiliationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		hostLocationID, err := uuid.Parse(req.HostLocationID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_host_location_id", "host_location_id must be a valid UUID")
			return
		}
		date, err := timerange.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := timerange.ParseClock(req.WindowStart)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clock", "window_start must be HH:MM")
			return
		}
		end, err := timerange.ParseClock(req.WindowEnd)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clock", "window_end must be HH:MM")
			return
		}

		initiatedBy := booking.InitiatorRole(req.InitiatedBy)
		if initiatedBy != booking.InitiatedByHost && initiatedBy != booking.InitiatedByProvider {
			writeError(w, http.StatusBadRequest, "invalid_initiator", "initiated_by must be host or provider")
			return
		}

		aff, err := svc.ProposeAffiliation(r.Context(), reservation.ProposeAffiliationRequest{
			ProviderID:     providerID,
			HostLocationID: hostLocationID,
			Date:           date,
			Window:         timerange.TimeRange{Start: start, End: end},
			SlotMinutes:    req.SlotMinutes,
			InitiatedBy:    initiatedBy,
		})
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAffiliationResponse(aff))
	}
}

func respondAffiliationHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseUUIDParam(w, r, "id")
		if !ok {
			return
		}
		var req RespondAffiliationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		decision := booking.AffiliationStatus(req.Decision)
		if decision != booking.AffiliationConfirmed && decision != booking.AffiliationCancelled {
			writeError(w, http.StatusBadRequest, "invalid_decision", "decision must be confirmed or cancelled")
			return
		}

		result, err := svc.RespondAffiliation(r.Context(), id, decision)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, AffiliationDecisionResponse{
			Affiliation:      toAffiliationResponse(result.Affiliation),
			CascadeCancelled: toBookingResponses(result.CascadeCancelled),
		})
	}
}

func sweepHandler(svc *reservation.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SweepRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		var providerID *uuid.UUID
		if req.ProviderID != nil {
			id, err := uuid.Parse(*req.ProviderID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			providerID = &id
		}

		swept, err := svc.SweepCompletions(r.Context(), providerID)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponses(swept))
	}
}

func parseUUIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("not positive")
	}
	return n, nil
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrAffiliationNotFound):
		writeError(w, http.StatusNotFound, "affiliation_not_found", err.Error())
	case errors.Is(err, reservation.ErrSlotNoLongerAvailable):
		writeError(w, http.StatusConflict, "slot_no_longer_available", err.Error())
	case errors.Is(err, reservation.ErrPastSlot):
		writeError(w, http.StatusUnprocessableEntity, "past_slot", err.Error())
	case errors.Is(err, reservation.ErrLocationMismatch):
		writeError(w, http.StatusConflict, "location_mismatch", err.Error())
	case errors.Is(err, reservation.ErrOverlapsExistingCommitment):
		writeError(w, http.StatusConflict, "overlaps_existing_commitment", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, timerange.ErrInvalidInterval):
		writeError(w, http.StatusUnprocessableEntity, "invalid_interval", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
