package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/telehealth-scheduling/internal/appointment"
	"github.com/hackgods/telehealth-scheduling/internal/metrics"
	"github.com/hackgods/telehealth-scheduling/internal/schedule"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Schedules    *schedule.Service
	Metrics      *metrics.Collector
	Postgres     Pinger
	Redis        Pinger
	Logger       logrus.FieldLogger
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	validate := newRequestValidator()

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	appts := &appointmentHandler{svc: cfg.Appointments, validate: validate}
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", appts.create)
		r.Get("/", appts.list)
		r.Get("/slots/available", appts.availableSlots)
		r.Get("/{id}", appts.get)
		r.Post("/{id}/reschedule", appts.reschedule)
		r.Post("/{id}/cancel", appts.cancel)
		r.Post("/{id}/status", appts.updateStatus)
	})

	sched := &scheduleHandler{svc: cfg.Schedules, validate: validate}
	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/profile", sched.getProfile)
		r.Put("/profile", sched.putProfile)
		r.Get("/availability", sched.getWeekly)
		r.Put("/availability", sched.putWeekly)
		r.Get("/unavailability", sched.listOverrides)
		r.Put("/unavailability/{date}", sched.putOverride)
		r.Delete("/unavailability/{date}", sched.deleteOverride)
	})

	return r
}
