package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/fieldserve/backend/internal/config"
	"github.com/fieldserve/backend/internal/http/handlers"
	"github.com/fieldserve/backend/internal/http/middleware"
	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/service"

	_ "github.com/fieldserve/backend/docs"
)

func Router(cfg config.Config, store service.Store, orchestrator *service.Orchestrator, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:          store,
		Orchestrator:   orchestrator,
		Validator:      validator.New(),
		Logger:         logger,
		Location:       orchestrator.Location,
		RequestTimeout: cfg.RequestTimeout,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(middleware.AdminKey(cfg.AdminKey))
	{
		api.POST("/companies/:company_id/auto-assign", h.AutoAssign)
		api.POST("/companies/:company_id/routes/optimize", h.OptimizeCompanyRoutes)
		api.POST("/jobs/:kind/:id/assign", h.AssignJob)
		api.POST("/jobs/:kind/:id/score", h.ScoreJob)
		api.POST("/technicians/:id/routes/optimize", h.OptimizeTechnicianRoute)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
