package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
)

// SecurityHeaders sets the usual hardening headers. The API only ever returns JSON,
// so the content security policy denies everything.
func SecurityHeaders(log *slog.Logger, isDev bool) gin.HandlerFunc {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		IsDevelopment:         isDev,
	})

	return func(c *gin.Context) {
		err := sec.Process(c.Writer, c.Request)
		if err != nil {
			if log != nil {
				log.WarnContext(c.Request.Context(), "secure headers blocked request", "err", err)
			}
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		c.Next()
	}
}
