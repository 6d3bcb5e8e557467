package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"snacktrack-backend/internal/apperr"
)

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		respondError(c, apperr.New(apperr.CodeUnavailable, "vapid keys are not configured", http.StatusServiceUnavailable))
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
