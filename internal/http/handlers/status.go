package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
)

type UserCounter interface {
	Count(ctx context.Context) (int64, error)
}

// StatusHandler serves the dashboard's status card: liveness, user count and the
// request counters since process start.
type StatusHandler struct {
	users   UserCounter
	metrics *observability.RequestMetrics
	timeout time.Duration
}

func NewStatusHandler(users UserCounter, metrics *observability.RequestMetrics, timeout time.Duration) *StatusHandler {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &StatusHandler{users: users, metrics: metrics, timeout: timeout}
}

func (h *StatusHandler) Status(ctx *gin.Context) {
	c, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	n, err := h.users.Count(c)

	if err != nil {
		respondStoreError(ctx, err, "Could not count users")
		return
	}

	resp := gin.H{
		"status": "online",
		"users":  n,
	}

	if h.metrics != nil {
		snap := h.metrics.Snapshot()
		resp["requests"] = snap.Total
		resp["failedRequests"] = snap.Failed
		resp["avgLatencyMs"] = snap.AverageDuration.Milliseconds()
		resp["uptimeSeconds"] = int64(snap.Uptime.Seconds())
	}

	ctx.JSON(http.StatusOK, resp)
}
