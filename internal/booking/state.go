package booking

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

// bookingTransitions is the closed transition table for a reservation.
// Cancelled and completed are terminal.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	StatusRequested: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
	StatusCancelled: nil,
	StatusCompleted: nil,
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to BookingStatus) bool {
	for _, t := range bookingTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CheckTransition returns ErrInvalidTransition (wrapped with both statuses)
// when the move is not allowed.
func CheckTransition(from, to BookingStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("booking %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// Terminal reports whether no further transition is possible.
func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0
}

// affiliationTransitions is the smaller lifecycle for a guest affiliation.
// A confirmed visit can still be called off by either side until it starts.
var affiliationTransitions = map[AffiliationStatus][]AffiliationStatus{
	AffiliationPending:   {AffiliationConfirmed, AffiliationCancelled},
	AffiliationConfirmed: {AffiliationCancelled},
	AffiliationCancelled: nil,
}

func CanTransitionAffiliation(from, to AffiliationStatus) bool {
	for _, t := range affiliationTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func CheckAffiliationTransition(from, to AffiliationStatus) error {
	if !CanTransitionAffiliation(from, to) {
		return fmt.Errorf("affiliation %s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

func (s AffiliationStatus) Terminal() bool {
	return len(affiliationTransitions[s]) == 0
}
