package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers all routes on the router
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.POST("/send", h.EnqueueMessage)
	router.GET("/messages/:id", h.GetMessage)
	router.GET("/queue/stats", h.QueueStats)

	router.GET("/status", h.SessionStatus)
	router.GET("/qr", h.ChallengeArtifact)

	router.POST("/dispatcher/start", h.StartDispatcher)
	router.POST("/dispatcher/stop", h.StopDispatcher)
	router.GET("/dispatcher/status", h.GetDispatcherStatus)

	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
