// Package http holds what the router needs from the composition root: the
// assembled App and the Module contract every HTTP-facing context satisfies.
package http

import (
	"context"
	"net/http"

	"github.com/syed-c/standzon-sub008/internal/events"
	"github.com/syed-c/standzon-sub008/platform/config"
	"github.com/syed-c/standzon-sub008/platform/httpkit"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is built by cmd/api and handed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health and Metrics are optional; without them /api/health always
	// reports ok and /metrics is not mounted.
	Health   HealthChecker
	Metrics  http.Handler
	EventBus events.Bus
	Modules  []Module
}

// Module mounts one bounded context's routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what a module may mount on. Admin already enforces an
// admin access token; V1 is public.
type RouterContext struct {
	Engine *gin.Engine
	V1     *gin.RouterGroup
	Admin  *gin.RouterGroup
	Config config.JWTConfig
	// SubmissionLimiter throttles anonymous lead submissions per client IP.
	SubmissionLimiter *httpkit.IPRateLimiter
}
