package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"facility-alerting/internal/logging"
)

func NewRouter(basePath string, h *Handler, logger *logging.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(basePath)
	{
		// Alerts
		api.POST("/alerts", h.CreateAlert)
		api.GET("/alerts", h.ListActiveAlerts)
		api.GET("/alerts/:id", h.GetAlert)
		api.PATCH("/alerts/:id", h.UpdateAlert)
		api.POST("/alerts/escalations/process", h.ProcessEscalations)

		// Readings
		api.POST("/readings", h.IngestReading)

		// Jobs
		api.POST("/jobs", h.CreateJob)
		api.GET("/jobs/stats", h.JobStats)
		api.GET("/jobs/health", h.JobHealth)
		api.GET("/jobs/:id", h.GetJob)
		api.POST("/jobs/:id/cancel", h.CancelJob)

		api.GET("/ws", h.Subscribe)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}
