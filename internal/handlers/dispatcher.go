package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartDispatcher starts the dispatch loop
func (h *Handlers) StartDispatcher(c *gin.Context) {
	if err := h.dispatcher.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// StopDispatcher stops the dispatch loop, letting the in-flight delivery
// reach its terminal write first.
func (h *Handlers) StopDispatcher(c *gin.Context) {
	if err := h.dispatcher.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// GetDispatcherStatus returns dispatch loop status
func (h *Handlers) GetDispatcherStatus(c *gin.Context) {
	status := "stopped"
	if h.dispatcher.IsRunning() {
		status = "running"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
