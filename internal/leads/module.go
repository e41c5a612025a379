// Package leads provides the lead pipeline bounded context module.
// This file defines the module that encapsulates leads setup and route registration.
package leads

import (
	"github.com/syed-c/standzon-sub008/internal/builders"
	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/internal/geo"
	apphttp "github.com/syed-c/standzon-sub008/internal/http"
	"github.com/syed-c/standzon-sub008/internal/leads/handler"
	"github.com/syed-c/standzon-sub008/internal/leads/intake"
	"github.com/syed-c/standzon-sub008/internal/leads/lifecycle"
	"github.com/syed-c/standzon-sub008/internal/leads/repository"
	"github.com/syed-c/standzon-sub008/internal/leads/service"
	"github.com/syed-c/standzon-sub008/internal/matching"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/logger"
	"github.com/syed-c/standzon-sub008/platform/validator"

	"github.com/gin-gonic/gin"
)

// ModuleConfig combines the config interfaces the leads module reads.
type ModuleConfig interface {
	config.MatchingConfig
	config.IntakeConfig
	config.LifecycleConfig
}

// Observer receives lifecycle and matching measurements.
type Observer interface {
	lifecycle.Observer
	service.MatchObserver
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	store   repository.Store
	tracker *lifecycle.Tracker
	service *service.Service
	admin   *handler.Handler
	public  *handler.PublicHandler
}

// NewModule wires intake, matching and the lifecycle tracker over store.
// The dispatcher is injected afterwards with SetDispatcher because it needs
// the store and tracker built here. obs may be nil.
func NewModule(store repository.Store, directory builders.Directory, eventBus events.Bus, val *validator.Validator, cfg ModuleConfig, obs Observer, log *logger.Logger) (*Module, error) {
	engine, err := matching.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	trackerOpts := []lifecycle.Option{lifecycle.WithMaxConflictRetries(cfg.GetLifecycleMaxConflictRetries())}
	var matchObs service.MatchObserver
	if obs != nil {
		trackerOpts = append(trackerOpts, lifecycle.WithObserver(obs))
		matchObs = obs
	}
	tracker := lifecycle.New(store, log, trackerOpts...)

	svc := service.New(service.Deps{
		Store:     store,
		Intake:    intake.New(store, val, geo.Default(), intake.WithDedupWindow(cfg.GetIntakeDedupWindow())),
		Directory: directory,
		Ranker:    engine,
		Tracker:   tracker,
		Bus:       eventBus,
		Observer:  matchObs,
		Log:       log,
	})
	if eventBus != nil {
		svc.RegisterHandlers(eventBus)
	}

	return &Module{
		store:   store,
		tracker: tracker,
		service: svc,
		admin:   handler.New(svc, val),
		public:  handler.NewPublicHandler(svc),
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the lead pipeline for the scheduler and other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Store returns the lead store shared with the notification dispatcher.
func (m *Module) Store() repository.Store {
	return m.store
}

// Tracker returns the lifecycle tracker shared with the notification dispatcher.
func (m *Module) Tracker() *lifecycle.Tracker {
	return m.tracker
}

// SetDispatcher injects the notification dispatcher (breaks circular dependency).
func (m *Module) SetDispatcher(d service.Dispatcher) {
	m.service.SetDispatcher(d)
}

// RegisterRoutes mounts the public form and the admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	var limiter gin.HandlerFunc
	if ctx.SubmissionLimiter != nil {
		limiter = ctx.SubmissionLimiter.RateLimit()
	}
	m.public.RegisterRoutes(ctx.V1.Group("/leads"), limiter)

	m.admin.RegisterRoutes(ctx.Admin.Group("/leads"))
	m.admin.RegisterBuilderRoutes(ctx.Admin.Group("/builders"))
	m.admin.RegisterNotificationRoutes(ctx.Admin.Group("/notifications"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
