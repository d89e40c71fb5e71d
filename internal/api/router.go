package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/auth"
	"github.com/hackgods/clinic-booking/internal/profile"
	"github.com/hackgods/clinic-booking/internal/schedule"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Schedules    *schedule.Service
	Profiles     *profile.Service
	Auth         *auth.Authenticator
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Gatherer     prometheus.Gatherer
	Logger       zerolog.Logger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := &handlers{
		appointments: cfg.Appointments,
		schedules:    cfg.Schedules,
		profiles:     cfg.Profiles,
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		// Doctor endpoints
		r.Get("/doctors", h.searchDoctors)
		r.Get("/doctors/{id}/schedule", h.getSchedule)
		r.Put("/doctors/{id}/schedule", h.putSchedule)
		r.Get("/doctors/{id}/slots", h.freeSlots)

		// Appointment endpoints
		r.Post("/appointments", h.bookAppointment)
		r.Get("/appointments", h.listAppointments)
		r.Get("/appointments/{id}", h.getAppointment)
		r.Post("/appointments/{id}/cancel", h.cancelAppointment)
		r.Post("/appointments/{id}/complete", h.completeAppointment)

		// Profile endpoints
		r.Get("/me", h.getMe)
		r.Post("/me/ensure", h.ensureMe)

		r.Get("/admin/stats", h.adminStats)
	})

	return r
}
