package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"faultline/metrics"
	"faultline/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultRetentionDays is how long error records are kept.
	DefaultRetentionDays = 30
	// RecentErrorsLimit caps the individual records returned with stats.
	RecentErrorsLimit = 50

	defaultWriteTimeout = 5 * time.Second
)

// ErrorStore persists error records.
type ErrorStore interface {
	// Upsert inserts the record, or bumps count and last_seen of the row
	// with the same (fingerprint, timestamp).
	Upsert(ctx context.Context, rec *models.ErrorLog) error
	// QueryWindow returns per-level totals and the newest records at or
	// after since.
	QueryWindow(ctx context.Context, since time.Time, limit int) (*models.WindowResult, error)
	// PurgeOlderThan deletes records strictly older than cutoff.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// LoggerOptions configures an ErrorLogger
type LoggerOptions struct {
	RetentionDays int
	WriteTimeout  time.Duration
	Now           func() time.Time
	Fallback      logrus.FieldLogger
}

// ErrorLogger records errors into an ErrorStore. Writes are best-effort:
// LogError never reports failure to its caller.
type ErrorLogger struct {
	store         ErrorStore
	retentionDays int
	writeTimeout  time.Duration
	now           func() time.Time
	fallback      logrus.FieldLogger
}

// NewErrorLogger builds a logger over store
func NewErrorLogger(store ErrorStore, opts LoggerOptions) *ErrorLogger {
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = DefaultRetentionDays
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fallback == nil {
		opts.Fallback = logrus.StandardLogger()
	}
	return &ErrorLogger{
		store:         store,
		retentionDays: opts.RetentionDays,
		writeTimeout:  opts.WriteTimeout,
		now:           opts.Now,
		fallback:      opts.Fallback,
	}
}

// RetentionDays returns the configured retention horizon
func (l *ErrorLogger) RetentionDays() int {
	return l.retentionDays
}

// LogError records an error. Failures, including panics from the store, are
// written to the fallback logger and swallowed.
func (l *ErrorLogger) LogError(ctx context.Context, level models.Level, message string, err error, partial models.ErrorContext, service models.Service) {
	var rec *models.ErrorLog
	defer func() {
		if r := recover(); r != nil {
			l.logFallback(level, message, err, rec, fmt.Errorf("panic: %v", r))
		}
	}()

	rec = l.BuildRecord(level, message, err, partial, service)

	if l.store == nil {
		l.logFallback(level, message, err, rec, ErrStoreUnavailable)
		return
	}

	// The write outlives a cancelled request but stays bounded.
	if ctx == nil {
		ctx = context.Background()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.writeTimeout)
	defer cancel()

	if storeErr := l.store.Upsert(writeCtx, rec); storeErr != nil {
		l.logFallback(level, message, err, rec, storeErr)
		return
	}
	metrics.ErrorsLogged.WithLabelValues(string(rec.Level), string(rec.Service)).Inc()
}

// BuildRecord normalizes the inputs of LogError into a storable row
func (l *ErrorLogger) BuildRecord(level models.Level, message string, err error, partial models.ErrorContext, service models.Service) *models.ErrorLog {
	if service == "" {
		service = models.ServiceWorker
	}
	if level == "" {
		level = models.LevelError
	}

	rec := &models.ErrorLog{
		Timestamp: models.FormatTimestamp(l.now()),
		Level:     level,
		Service:   service,
		Message:   message,
		URL:       defaultString(partial.URL, "unknown"),
		Method:    defaultString(partial.Method, "unknown"),
		UserAgent: partial.UserAgent,
		RayID:     partial.RayID,
		RequestID: partial.RequestID,
		UserID:    partial.UserID,
		Count:     1,
		LastSeen:  l.now().UTC(),
	}
	if rec.RequestID == "" {
		rec.RequestID = NewRequestID(l.now())
	}
	rec.SetAdditionalData(partial.AdditionalData)

	errorType := ""
	if err != nil {
		var traced *TracedError
		if errors.As(err, &traced) {
			rec.Stack = traced.Stack
		}
		errorType = ErrorTypeName(err)
		rec.ErrorCode = errorType
	}

	// The fingerprint uses the url as given by the caller, not the "unknown"
	// placeholder, so that url-less errors still group together.
	rec.Fingerprint = Fingerprint(message, errorType, partial.URL, FirstStackLine(rec.Stack))
	return rec
}

func (l *ErrorLogger) logFallback(level models.Level, message string, err error, rec *models.ErrorLog, cause error) {
	metrics.LogFailures.Inc()

	fields := logrus.Fields{
		"level":   level,
		"message": message,
		"cause":   cause,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if rec != nil {
		fields["fingerprint"] = rec.Fingerprint
		fields["request_id"] = rec.RequestID
		fields["url"] = rec.URL
	}
	l.fallback.WithFields(fields).Error("Error logging failed")
}

// GetErrorStats aggregates the last windowMinutes minutes
func (l *ErrorLogger) GetErrorStats(ctx context.Context, windowMinutes int) (*models.ErrorStats, error) {
	if windowMinutes < 1 {
		return nil, fmt.Errorf("window must be at least 1 minute, got %d", windowMinutes)
	}
	if l.store == nil {
		return nil, ErrStoreUnavailable
	}

	since := l.now().Add(-time.Duration(windowMinutes) * time.Minute)
	window, err := l.store.QueryWindow(ctx, since, RecentErrorsLimit)
	if err != nil {
		return nil, fmt.Errorf("query error window: %w", err)
	}

	stats := &models.ErrorStats{
		CriticalCount: window.Counts[models.LevelCritical],
		ErrorCount:    window.Counts[models.LevelError],
		WarnCount:     window.Counts[models.LevelWarn],
		InfoCount:     window.Counts[models.LevelInfo],
		RecentErrors:  window.Recent,
	}
	for _, n := range window.Counts {
		stats.TotalErrors += n
	}
	stats.ErrorRate = RoundRate(float64(stats.TotalErrors) / float64(windowMinutes))
	if stats.RecentErrors == nil {
		stats.RecentErrors = []models.ErrorSummary{}
	}
	return stats, nil
}

// CheckErrorRateThreshold reports whether errors per minute over the window
// exceed threshold. There is no request-volume denominator: the threshold is
// an absolute errors-per-minute figure.
func (l *ErrorLogger) CheckErrorRateThreshold(ctx context.Context, threshold float64, windowMinutes int) (bool, error) {
	stats, err := l.GetErrorStats(ctx, windowMinutes)
	if err != nil {
		return false, err
	}
	return stats.ErrorRate > threshold, nil
}

// CleanupOldLogs deletes records older than the retention horizon
func (l *ErrorLogger) CleanupOldLogs(ctx context.Context) (int64, error) {
	if l.store == nil {
		return 0, ErrStoreUnavailable
	}
	cutoff := l.now().AddDate(0, 0, -l.retentionDays)
	deleted, err := l.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge error logs: %w", err)
	}
	metrics.ErrorsPurged.Add(float64(deleted))
	return deleted, nil
}

// RoundRate rounds to two decimals
func RoundRate(v float64) float64 {
	return math.Round(v*100) / 100
}

// NewRequestID generates a request identifier
func NewRequestID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return "req_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + suffix
}

// DetermineLevel guesses a severity from the error type
func DetermineLevel(err error) models.Level {
	if err == nil {
		return models.LevelError
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.LevelWarn
	}

	name := strings.ToLower(ErrorTypeName(err))
	for _, k := range []string{"database", "auth", "payment", "fatal"} {
		if strings.Contains(name, k) {
			return models.LevelCritical
		}
	}
	for _, k := range []string{"validation", "timeout", "abort"} {
		if strings.Contains(name, k) {
			return models.LevelWarn
		}
	}
	return models.LevelError
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

var (
	defaultLogger   *ErrorLogger
	defaultLoggerMu sync.RWMutex
)

// SetDefault installs the process-wide logger used by the helpers below
func SetDefault(l *ErrorLogger) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = l
}

// Default returns the process-wide logger, or nil before SetDefault
func Default() *ErrorLogger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// Helper functions for server-side code

// LogCritical records a critical worker error through the default logger
func LogCritical(ctx context.Context, message string, err error, ec models.ErrorContext) {
	logDefault(ctx, models.LevelCritical, message, err, ec)
}

// LogErrorWithContext records a worker error through the default logger
func LogErrorWithContext(ctx context.Context, message string, err error, ec models.ErrorContext) {
	logDefault(ctx, models.LevelError, message, err, ec)
}

// LogWarn records a warning through the default logger
func LogWarn(ctx context.Context, message string, err error, ec models.ErrorContext) {
	logDefault(ctx, models.LevelWarn, message, err, ec)
}

func logDefault(ctx context.Context, level models.Level, message string, err error, ec models.ErrorContext) {
	l := Default()
	if l == nil {
		logrus.WithFields(logrus.Fields{"level": level, "error": err}).Error(message)
		return
	}
	l.LogError(ctx, level, message, err, ec, models.ServiceWorker)
}
