package middlewares

import (
	"log/slog"
	"time"

	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID accepts a caller supplied id or mints one, and puts it on both the gin
// context and the request context so store logs carry it too.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(RequestIDHeader)

		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx.Writer.Header().Set(RequestIDHeader, id)
		ctx.Set(CtxRequestID, id)
		ctx.Request = ctx.Request.WithContext(observability.WithRequestID(ctx.Request.Context(), id))

		ctx.Next()
	}
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx *gin.Context) {
		start := time.Now()

		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path // 404s have no route template
		}

		method := ctx.Request.Method

		ctx.Next()

		status := ctx.Writer.Status()

		attrs := []any{
			"method", method,
			"route", route,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}

		if userID, ok := ctx.Get(CtxUserID); ok {
			attrs = append(attrs, "user_id", userID)
		}

		if len(ctx.Errors) > 0 {
			attrs = append(attrs, "errors", ctx.Errors.String())
		}

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}

		log.Log(ctx.Request.Context(), level, "http_request", attrs...)
	}
}
