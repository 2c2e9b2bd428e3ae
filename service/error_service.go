package service

import (
	"context"
	"strings"
	"time"

	"faultline/core"
	"faultline/models"
)

// DefaultAlertThreshold is the errors-per-minute figure above which the
// stats report raises its alert flag.
const DefaultAlertThreshold = 1.0

// Pinger checks that the backing store answers
type Pinger interface {
	Ping(ctx context.Context) error
}

// RequestInfo is the context derived from the inbound HTTP request
type RequestInfo struct {
	URL       string
	Method    string
	UserAgent string
	RayID     string
	RequestID string
}

// StatsReport is the payload of the stats endpoint
type StatsReport struct {
	models.ErrorStats
	AlertThresholdExceeded bool `json:"alert_threshold_exceeded"`
	WindowMinutes          int  `json:"window_minutes"`
}

// ErrorServiceOptions tunes an ErrorService
type ErrorServiceOptions struct {
	AlertThreshold float64
}

// ErrorService handles ingestion and reporting of error records
type ErrorService struct {
	logger    *core.ErrorLogger
	pinger    Pinger
	threshold float64
}

// NewErrorService constructs an error service
func NewErrorService(logger *core.ErrorLogger, pinger Pinger, opts ErrorServiceOptions) *ErrorService {
	if opts.AlertThreshold <= 0 {
		opts.AlertThreshold = DefaultAlertThreshold
	}
	return &ErrorService{logger: logger, pinger: pinger, threshold: opts.AlertThreshold}
}

// AlertThreshold returns the configured threshold
func (s *ErrorService) AlertThreshold() float64 {
	return s.threshold
}

// Validate checks a client report. Required fields are reported together,
// before the level and service enums are checked.
func (s *ErrorService) Validate(report *models.ErrorReport) (models.Level, models.Service, error) {
	report.Normalize()

	var missing []string
	if report.Level == "" {
		missing = append(missing, "level")
	}
	if report.Service == "" {
		missing = append(missing, "service")
	}
	if report.Message == "" {
		missing = append(missing, "message")
	}
	if report.URL == "" {
		missing = append(missing, "url")
	}
	if len(missing) > 0 {
		return "", "", core.NewMissingFieldsError(missing)
	}

	level, ok := models.ParseLevel(report.Level)
	if !ok {
		allowed := make([]string, 0, 4)
		for _, l := range models.Levels() {
			allowed = append(allowed, string(l))
		}
		return "", "", core.NewInvalidFieldError("level", allowed)
	}

	service, ok := models.ParseService(report.Service)
	if !ok {
		var allowed []string
		for _, svc := range models.Services() {
			allowed = append(allowed, string(svc))
		}
		return "", "", core.NewInvalidFieldError("service", allowed)
	}
	return level, service, nil
}

// Ingest validates report and hands it to the error logger. Nothing is
// logged when validation fails. The returned id is the request id stored
// with the record.
func (s *ErrorService) Ingest(ctx context.Context, report *models.ErrorReport, req RequestInfo) (string, error) {
	level, service, err := s.Validate(report)
	if err != nil {
		return "", err
	}

	ec := models.ErrorContext{
		URL:            report.URL,
		Method:         defaultIfEmpty(req.Method, "POST"),
		UserAgent:      report.UserAgent,
		RayID:          req.RayID,
		RequestID:      req.RequestID,
		AdditionalData: report.AdditionalData,
	}
	if ec.UserAgent == "" {
		ec.UserAgent = req.UserAgent
	}
	if ec.RequestID == "" {
		ec.RequestID = core.NewRequestID(time.Now())
	}

	s.logger.LogError(ctx, level, report.Message, core.ReconstructError(report.Message, report.Stack), ec, service)
	return ec.RequestID, nil
}

// Stats aggregates the window and evaluates the alert threshold against it.
func (s *ErrorService) Stats(ctx context.Context, minutes int) (*StatsReport, error) {
	stats, err := s.logger.GetErrorStats(ctx, minutes)
	if err != nil {
		return nil, err
	}
	return &StatsReport{
		ErrorStats:             *stats,
		AlertThresholdExceeded: stats.ErrorRate > s.threshold,
		WindowMinutes:          minutes,
	}, nil
}

// Alerting reports whether the error rate over minutes exceeds the
// configured threshold.
func (s *ErrorService) Alerting(ctx context.Context, minutes int) (bool, error) {
	return s.logger.CheckErrorRateThreshold(ctx, s.threshold, minutes)
}

// Ping checks the store
func (s *ErrorService) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return core.ErrStoreUnavailable
	}
	return s.pinger.Ping(ctx)
}

func defaultIfEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
