// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_engine_reservations_total",
			Help: "Reservation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	CancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_engine_cancellations_total",
			Help: "Bookings moved to cancelled, cascades included.",
		},
	)

	CompletionsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_engine_completions_swept_total",
			Help: "Confirmed bookings transitioned to completed by the sweep.",
		},
	)

	AffiliationDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_engine_affiliation_decisions_total",
			Help: "Guest affiliation responses by decision.",
		},
		[]string{"decision"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_engine_http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		},
		[]string{"method", "route", "status"},
	)
)

// RecordReservation tallies one reservation attempt.
// outcome is "created", "conflict" or "error".
func RecordReservation(outcome string) {
	ReservationsTotal.WithLabelValues(outcome).Inc()
}

func RecordCancellation() {
	CancellationsTotal.Inc()
}

func RecordCompletionSwept() {
	CompletionsSweptTotal.Inc()
}

func RecordAffiliationDecision(decision string) {
	AffiliationDecisionsTotal.WithLabelValues(decision).Inc()
}

func RecordHTTPRequest(method, route, status string) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}
