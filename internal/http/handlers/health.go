package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	ping    func(ctx context.Context) error
	timeout time.Duration
}

// NewHealthHandler builds liveness and readiness probes. ping reports whether the
// user storage answers; a nil ping is always ready.
func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping, timeout: time.Second}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.ping != nil {
		c, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
		defer cancel()

		err := h.ping(c)
		if err != nil {
			_ = ctx.Error(err)
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
