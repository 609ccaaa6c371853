// Package http wires the gin router and HTTP server for the protest API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/fairclaim/protest-engine/internal/interfaces/http/handlers"
	"github.com/fairclaim/protest-engine/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and cross-cutting dependencies the
// route tree needs.
type RouterConfig struct {
	PropertyHandler *handlers.PropertyHandler
	SessionHandler  *handlers.SessionHandler
	ReportHandler   *handlers.ReportHandler
	HealthHandler   *handlers.HealthHandler

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
	CORS             *middleware.CORSConfig

	// Mode is the gin mode: "debug", "release" or "test".
	Mode string
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, middleware.DefaultLoggingConfig()))
	}
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	registerPropertyRoutes(api, cfg.PropertyHandler)
	registerSessionRoutes(api, cfg.SessionHandler, cfg.ReportHandler)
	registerReportRoutes(api, cfg.ReportHandler)
	return r
}

func registerPropertyRoutes(r *gin.RouterGroup, h *handlers.PropertyHandler) {
	if h == nil {
		return
	}
	r.GET("/properties/:acct", h.Get)
	r.GET("/properties/:acct/comparables", h.Comparables)
}

func registerSessionRoutes(r *gin.RouterGroup, h *handlers.SessionHandler, rh *handlers.ReportHandler) {
	if h == nil {
		return
	}
	s := r.Group("/sessions")
	s.POST("", h.Start)
	s.GET("", h.List)
	s.GET("/:id", h.Get)
	s.POST("/:id/advance", h.Advance)
	s.POST("/:id/back", h.Back)
	s.POST("/:id/overrides", h.SetOverrides)
	s.POST("/:id/analysis", h.Analysis)
	s.POST("/:id/analysis/exclusions", h.ExcludeComparables)
	s.POST("/:id/deductions", h.AddDeduction)
	s.DELETE("/:id/deductions/:dedID", h.RemoveDeduction)
	s.POST("/:id/deductions/:dedID/evidence", h.UploadEvidence)
	s.DELETE("/:id/deductions/:dedID/evidence/:fileID", h.DetachEvidence)
	s.POST("/:id/extra-features", h.AddExtraFeature)
	s.POST("/:id/market-adjustment", h.SetMarketAdjustment)
	s.GET("/:id/proposed-value", h.ProposedValue)
	if rh != nil {
		s.POST("/:id/report", rh.Generate)
	}
}

func registerReportRoutes(r *gin.RouterGroup, h *handlers.ReportHandler) {
	if h == nil {
		return
	}
	r.GET("/reports/:id", h.Get)
	r.GET("/reports/:id/download", h.Download)
}

// compile-time check that the engine is a plain handler for the server.
var _ http.Handler = (*gin.Engine)(nil)
