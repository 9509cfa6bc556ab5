package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/deepresearch-backend/internal/observability"
)

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MetricsText serves the registry in Prometheus text format; empty body when
// metrics are disabled.
func MetricsText(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.Status(http.StatusOK)
	if m := observability.Current(); m != nil {
		_ = m.WritePrometheus(c.Writer)
	}
}
