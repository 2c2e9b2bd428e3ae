// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsLogged counts error records accepted by the store, by level and service.
	ErrorsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_errors_logged_total",
		Help: "Error records written to the store.",
	}, []string{"level", "service"})

	// LogFailures counts writes dropped because the store failed.
	LogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_error_log_failures_total",
		Help: "Error records dropped because the store write failed.",
	})

	// ErrorsPurged counts rows removed by retention cleanup.
	ErrorsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_errors_purged_total",
		Help: "Error records deleted by retention cleanup.",
	})

	// ReportsDropped counts client-side reports that never reached the server.
	ReportsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_reports_dropped_total",
		Help: "Client reports that failed to transmit.",
	})

	// SQLiteBusy counts SQLITE_BUSY errors seen by the GORM logger.
	SQLiteBusy = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_sqlite_busy_errors_total",
		Help: "SQLite busy errors.",
	})

	// SQLiteLocked counts SQLITE_LOCKED errors seen by the GORM logger.
	SQLiteLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_sqlite_locked_errors_total",
		Help: "SQLite locked errors.",
	})

	// RequestDuration observes HTTP handler latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faultline_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route", "method", "status"})
)
