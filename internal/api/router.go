package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/dental-slot-booking/internal/appointment"
	"github.com/hackgods/dental-slot-booking/internal/events"
	"github.com/hackgods/dental-slot-booking/internal/logging"
	"github.com/hackgods/dental-slot-booking/internal/metrics"
)

type RouterConfig struct {
	Service  *appointment.Service
	Location *time.Location // clinic zone for date/time request fields

	Hours    HoursStore        // optional, enables /dentists/{id}/hours
	Calendar events.Subscriber // optional, enables /ws/calendar
	Metrics  *metrics.BookingMetrics
	Gatherer prometheus.Gatherer // optional, enables /metrics

	PgPool *pgxpool.Pool
	Redis  *redis.Client
	Logger *zap.Logger

	RateLimitPerMinute int
	Env                string
	Version            string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.OrNop(cfg.Logger)
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	h := &handlers{svc: cfg.Service, loc: loc, logger: logger}

	r.Group(func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}

		r.Get("/availability", h.availability)
		r.Get("/recommendations", h.recommendations)

		// Appointment endpoints
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", h.createAppointment)
			r.Get("/", h.listAppointments)
			r.Get("/{id}", h.getAppointment)
			r.Patch("/{id}", h.updateAppointment)
			r.Delete("/{id}", h.cancelAppointment)
		})

		r.Post("/blocked-ranges", h.createBlockedRange)
		r.Post("/waitlist", h.createWaitlistEntry)
		r.Get("/waitlist", h.listWaitlist)

		if cfg.Hours != nil {
			hours := &hoursHandlers{store: cfg.Hours}
			r.Get("/dentists/{id}/hours", hours.get)
			r.Put("/dentists/{id}/hours", hours.put)
		}

		r.Post("/webhooks/sms", h.smsWebhook)
	})

	if cfg.Calendar != nil {
		ws := &calendarHandler{sub: cfg.Calendar, logger: logger}
		r.Get("/ws/calendar", ws.serve)
	}

	return r
}
