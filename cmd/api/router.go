package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/crucial707/rule-scheduler/internal/config"
	"github.com/crucial707/rule-scheduler/internal/handlers"
	"github.com/crucial707/rule-scheduler/internal/middleware"
	"github.com/crucial707/rule-scheduler/internal/repo"
)

// service is everything the engine offers the HTTP layer.
type service interface {
	handlers.ScheduleService
	handlers.Checker
}

type deps struct {
	cfg    config.Config
	log    zerolog.Logger
	engine service
	pce    handlers.PolicyBrowser
	ready  func() error
	store  repo.Store
	audit  repo.AuditLog
	checks *handlers.CheckHandler
}

func newRouter(d deps) http.Handler {
	if d.checks == nil {
		d.checks = &handlers.CheckHandler{Engine: d.engine, Log: d.log}
	}
	schedules := &handlers.ScheduleHandler{Engine: d.engine, Log: d.log}
	rulesets := &handlers.RuleSetHandler{PCE: d.pce, Schedules: d.engine, Log: d.log}
	audit := &handlers.AuditHandler{Repo: d.audit, Log: d.log}
	auth := &handlers.AuthHandler{
		User:         d.cfg.AdminUser,
		PasswordHash: d.cfg.AdminPasswordHash,
		Secret:       []byte(d.cfg.JWTSecret),
		TTL:          jwtTTL(d.cfg),
	}
	health := &handlers.HealthHandler{
		Store: func(ctx context.Context) error {
			_, err := d.store.KindOf(ctx, "/")
			return err
		},
		PCE: d.ready,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLog(d.log))
	r.Use(middleware.Recoverer(d.log))
	r.Use(middleware.Prometheus)
	r.Use(middleware.SecurityHeaders(d.cfg.TLSCertFile != "" && d.cfg.TLSKeyFile != ""))
	r.Use(middleware.CORS(d.cfg.CORSAllowedOrigins))
	r.Use(middleware.MaxBytes(0))

	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.With(middleware.LoginRateLimiter().Middleware).Post("/auth/login", auth.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware([]byte(d.cfg.JWTSecret)))

		r.Get("/schedules", schedules.ListSchedules)
		r.Get("/schedules/*", schedules.GetSchedule)
		r.Put("/schedules/*", schedules.PutSchedule)
		r.Delete("/schedules/*", schedules.DeleteSchedule)

		r.Post("/checks", d.checks.StartCheck)
		r.Get("/checks/{id}", d.checks.GetCheck)

		r.Get("/rulesets", rulesets.SearchRuleSets)
		r.Get("/rulesets/*", rulesets.GetRuleSet)

		r.Get("/audit", audit.ListAudit)
	})
	return r
}
