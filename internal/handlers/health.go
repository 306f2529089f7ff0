package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Session   string            `json:"session"`
	Metrics   map[string]string `json:"metrics"`
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Session:   string(h.sess.Current()),
		Metrics:   make(map[string]string),
	}

	if err := h.queue.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.dispatcher.IsRunning() {
		response.Metrics["dispatcher"] = "running"
	} else {
		response.Metrics["dispatcher"] = "stopped"
	}
	response.Metrics["uptime"] = time.Since(h.startedAt).Round(time.Second).String()

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
