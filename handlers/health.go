package handlers

import (
	"net/http"
	"time"

	"faultline/models"
	"faultline/version"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type healthCheck struct {
	Service   string `json:"service"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
}

// HealthCheck pings the database and reports retention state. An
// unreachable database answers 503.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := h.adminContext(c)
	defer cancel()

	status := "healthy"
	checks := make([]healthCheck, 0, 2)

	start := time.Now()
	if err := h.svc.Errors.Ping(ctx); err != nil {
		logrus.WithError(err).Warn("Health check: database ping failed")
		status = "unhealthy"
		checks = append(checks, healthCheck{
			Service:   "database",
			Status:    "unhealthy",
			LatencyMS: time.Since(start).Milliseconds(),
			Message:   "Database unreachable",
		})
	} else {
		checks = append(checks, healthCheck{
			Service:   "database",
			Status:    "healthy",
			LatencyMS: time.Since(start).Milliseconds(),
			Message:   "Database responding normally",
		})
	}

	body := gin.H{
		"status":    status,
		"timestamp": models.FormatTimestamp(time.Now()),
		"version":   version.GetFullVersion(),
		"checks":    checks,
	}

	if status == "healthy" {
		if last, err := h.svc.Retention.LastRun(ctx); err == nil && last != nil {
			body["last_cleanup"] = gin.H{
				"at":            models.FormatTimestamp(last.At),
				"deleted_count": last.Deleted,
			}
		}
		if alerting, err := h.svc.Errors.Alerting(ctx, h.defaultMinutes); err == nil {
			body["alert_threshold_exceeded"] = alerting
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.Header("Cache-Control", noStore)
	if c.Request.Method == http.MethodHead {
		c.Status(code)
		return
	}
	c.JSON(code, body)
}
