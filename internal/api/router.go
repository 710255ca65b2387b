package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
	"github.com/hackgods/clinic-appointment-scheduling/internal/patient"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Patients     *patient.Service
	Logger       *logging.Logger
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer    prometheus.Gatherer
	RateLimiter *RateLimiter
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	h := NewHandlers(cfg.Appointments, cfg.Patients, logger)

	// Writes share a per-client budget
	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}
		r.Post("/patients", h.RegisterPatient)
		r.Post("/appointments", h.BookAppointment)
		r.Post("/appointments/{id}/cancel", h.CancelAppointment)
		r.Post("/appointments/{id}/remind", h.RemindAppointment)
	})

	r.Get("/patients/{id}", h.GetPatient)
	r.Get("/appointments/{id}", h.GetAppointment)
	r.Get("/appointments/{id}/notifications", h.ListNotifications)
	r.Get("/doctors/{doctor}/appointments", h.ListDoctorAppointments)

	return r
}
