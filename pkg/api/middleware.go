package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger logs one structured line per request via log/slog,
// mirroring tarsy's gin middleware shape.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http_request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
