package observe

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GinMiddleware returns a gin handler that records request duration to
// [Metrics.HTTPRequestDuration] and logs request completion. The route
// template (e.g. "/api/recordings/:id/download") is used as the path
// attribute so per-ID URLs do not explode metric cardinality.
func GinMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		duration := time.Since(start)
		m.HTTPRequestDuration.Record(c.Request.Context(), duration.Seconds(),
			metric.WithAttributes(
				attribute.String("method", c.Request.Method),
				attribute.String("path", path),
			),
		)

		slog.LogAttrs(c.Request.Context(), slog.LevelInfo, "request completed",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", duration),
		)
	}
}
