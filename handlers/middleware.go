package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"faultline/core"
	"faultline/metrics"
	"faultline/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// RequestIDHeader carries the per-request correlation id.
	RequestIDHeader = "X-Request-ID"
	// RayIDHeader carries the edge network's request id, when one fronts us.
	RayIDHeader = "CF-Ray"

	requestIDKey = "request_id"
)

// requestID reuses the caller's X-Request-ID or generates one, and echoes it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func requestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// accessLog writes one logrus entry per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logrus.WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"request_id": requestIDFrom(c),
		})
		switch {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

// observe records handler latency per matched route.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// recovery turns a handler panic into a generic 500 and records it as a
// critical worker error.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := core.NewTracedError(fmt.Errorf("panic: %v", recovered))
		core.LogCritical(c.Request.Context(), "Unhandled panic in request handler", err, requestContext(c))
		respondError(c, http.StatusInternalServerError, msgInternal)
	})
}

// requestContext derives the error context of the inbound request.
func requestContext(c *gin.Context) models.ErrorContext {
	return models.ErrorContext{
		URL:       c.Request.URL.String(),
		Method:    c.Request.Method,
		UserAgent: c.Request.UserAgent(),
		RayID:     c.GetHeader(RayIDHeader),
		RequestID: requestIDFrom(c),
	}
}
