package handler

import (
	"github.com/GoPolymarket/polylend/internal/middleware"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Currency    string
	AdminKey    string
	AdminRPS    float64
	AdminBurst  int
	MetricsPath string
}

// NewRouter wires the admin HTTP surface.
func NewRouter(cfg RouterConfig, reports ReportReader, store repository.Store, trigger Trigger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	status := NewStatusHandler(reports, cfg.Currency)
	lending := NewLendingHandler(store, cfg.Currency)
	control := NewControlHandler(trigger)

	r.GET("/health", status.Health)
	if cfg.MetricsPath != "" {
		r.GET(cfg.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	v1.Use(middleware.AdminMiddleware(cfg.AdminKey))
	v1.Use(middleware.RateLimitMiddleware(cfg.AdminRPS, cfg.AdminBurst))
	{
		v1.GET("/status", status.Status)
		v1.GET("/cycles", status.Cycles)
		v1.GET("/orders", lending.Orders)
		v1.GET("/interest", lending.Interest)
		v1.GET("/summaries", lending.Summaries)
		v1.POST("/cycles", control.RunCycle)
		v1.POST("/settlements", control.Settle)
	}
	return r
}
