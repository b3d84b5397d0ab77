package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medidir/booking-engine/internal/reservation"
)

type RouterConfig struct {
	Service *reservation.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/availability", getAvailabilityHandler(cfg.Service))
		r.Get("/bookings", listBookingsHandler(cfg.Service))

		r.Route("/schedule", func(r chi.Router) {
			r.Put("/week", putWeekCalendarHandler(cfg.Service))
			r.Post("/day-rules", setDayRuleHandler(cfg.Service))
			r.Post("/breaks", addBreakHandler(cfg.Service))
			r.Delete("/breaks", removeBreakHandler(cfg.Service))
			r.Post("/closures", addClosureHandler(cfg.Service))
			r.Delete("/closures/{startDate}", removeClosureHandler(cfg.Service))
		})
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", reserveHandler(cfg.Service))
		r.Get("/", listBookingsQueryHandler(cfg.Service))
		r.Get("/{id}", getBookingHandler(cfg.Service))
		r.Post("/{id}/confirm", confirmBookingHandler(cfg.Service))
		r.Post("/{id}/cancel", cancelBookingHandler(cfg.Service))
	})

	r.Route("/affiliations", func(r chi.Router) {
		r.Post("/", proposeAffiliationHandler(cfg.Service))
		r.Post("/{id}/respond", respondAffiliationHandler(cfg.Service))
	})

	r.Post("/sweep", sweepHandler(cfg.Service))

	return r
}
