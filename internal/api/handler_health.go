package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"snacktrack-backend/internal/apperr"
)

// Root handles GET /.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"service": "snacktrack", "status": "ok"})
}

// Healthz reports that the process is serving.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz reports whether the store answers a ping within two seconds.
func (h *Handler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		e := apperr.New(apperr.CodeUnavailable, "store unavailable: "+err.Error(), http.StatusServiceUnavailable)
		e.Err = err
		respondError(c, e)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
