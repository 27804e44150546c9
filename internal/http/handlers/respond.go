package handlers

import (
	"net/http"

	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

// APIError is the body of every error response, nested under "error".
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if s := ctx.GetString(middlewares.CtxRequestID); s != "" {
		return s
	}

	return ctx.GetHeader(middlewares.RequestIDHeader)
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

// RespondEmailTaken keeps the 400 the dashboard already handles for a taken address.
func RespondEmailTaken(ctx *gin.Context) {
	RespondError(ctx, http.StatusBadRequest, "email_taken", "Email already exists", nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondUnavailable(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusServiceUnavailable, "unavailable", message, nil)
}
