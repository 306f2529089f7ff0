package handlers

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"whatsapp-dispatch-go/internal/driver"
	"whatsapp-dispatch-go/internal/session"
)

// SessionStatus reports the delivery channel's current lifecycle state.
func (h *Handlers) SessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": h.sess.Current()})
}

// ChallengeArtifact returns the authentication challenge (QR code) as a
// base64 image, or 404 while none is shown.
func (h *Handlers) ChallengeArtifact(c *gin.Context) {
	if h.sess.Current() == session.StateConnected {
		c.JSON(http.StatusOK, gin.H{"status": session.StateConnected, "qr_base64": nil})
		return
	}

	img, err := h.challenge.ChallengeArtifact(c.Request.Context())
	if errors.Is(err, driver.ErrNoChallenge) || errors.Is(err, driver.ErrNotInitialized) {
		c.JSON(http.StatusNotFound, gin.H{"error": "challenge not available (yet)"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    h.sess.Current(),
		"qr_base64": base64.StdEncoding.EncodeToString(img),
	})
}
