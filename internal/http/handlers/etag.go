package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RespondJSONWithETag writes payload with a content hash ETag, or a bare 304 when
// the client already holds that version. The dashboard polls the list, so most
// polls end here without a body.
func RespondJSONWithETag(ctx *gin.Context, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		_ = ctx.Error(err)
		RespondInternal(ctx, "Could not encode response")
		return
	}

	etag := bodyETag(body)
	ctx.Header("ETag", etag)
	ctx.Header("Cache-Control", "no-cache")

	if ifNoneMatchMatches(ctx.GetHeader("If-None-Match"), etag) {
		ctx.Status(http.StatusNotModified)
		return
	}

	ctx.Data(status, "application/json; charset=utf-8", body)
}

func bodyETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func ifNoneMatchMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}

	if header == "*" {
		return true
	}

	for _, part := range strings.Split(header, ",") {
		// weak comparison, W/"x" matches "x"
		candidate := strings.TrimPrefix(strings.TrimSpace(part), "W/")
		if candidate == etag {
			return true
		}
	}

	return false
}
