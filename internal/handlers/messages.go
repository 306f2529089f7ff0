package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"whatsapp-dispatch-go/internal/store"
)

// EnqueueRequest is the producer payload for a new outbound message.
type EnqueueRequest struct {
	Recipient  string `json:"recipient" binding:"required"`
	Body       string `json:"body"`
	Attachment string `json:"attachment_path"`
}

// EnqueueMessage accepts a message into the queue and returns its id. The
// message is delivered later by the dispatch loop; a 202 here only means
// "durably queued".
func (h *Handlers) EnqueueMessage(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Body == "" && req.Attachment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body may be empty only when an attachment is provided"})
		return
	}

	id, err := h.queue.Enqueue(c.Request.Context(), req.Recipient, req.Body, req.Attachment)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.metrics.EnqueuedTotal.Inc()
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "queued"})
}

// GetMessage returns a single message with its lifecycle state.
func (h *Handlers) GetMessage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	msg, err := h.queue.GetMessage(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, msg)
}

// QueueStats returns per-status message counts and the resolved store path.
func (h *Handlers) QueueStats(c *gin.Context) {
	counts, err := h.queue.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"counts":     counts,
		"store_path": h.queue.Path(),
	})
}
