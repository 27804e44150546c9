package middlewares

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireJSON rejects writes whose body is not declared as JSON.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || mt != "application/json" {
				reqID, _ := c.Get(CtxRequestID)
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"error": gin.H{
						"code":      "unsupported_media_type",
						"message":   "Content-Type must be application/json",
						"requestId": reqID,
					},
				})
				return
			}
		}
		c.Next()
	}
}
