package router

import (
	"net/http"
	"time"

	apphttp "github.com/syed-c/standzon-sub008/internal/http"
	"github.com/syed-c/standzon-sub008/platform/apperr"
	"github.com/syed-c/standzon-sub008/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const adminRole = "admin"

// New builds the engine: shared middleware, health and metrics endpoints,
// then every module's routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(app.Config)))

	engine.GET("/api/health", func(c *gin.Context) {
		if app.Health != nil {
			if err := app.Health.Ping(c.Request.Context()); err != nil {
				httpkit.HandleError(c, apperr.Wrap(apperr.KindUnavailable, "database unavailable", err))
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if app.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(app.Metrics))
	}

	v1 := engine.Group("/api/v1")
	admin := v1.Group("/admin")
	admin.Use(httpkit.AuthRequired(app.Config), httpkit.RequireRole(adminRole))

	ctx := &apphttp.RouterContext{
		Engine:            engine,
		V1:                v1,
		Admin:             admin,
		Config:            app.Config,
		SubmissionLimiter: httpkit.NewSubmissionRateLimiter(app.Config.GetSubmitRatePerMinute(), app.Logger),
	}
	for _, m := range app.Modules {
		m.RegisterRoutes(ctx)
		app.Logger.Debug("registered module routes", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", httpkit.HeaderRequestID},
		ExposeHeaders:    []string{httpkit.HeaderRequestID},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
