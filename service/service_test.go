package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"faultline/config"
	"faultline/core"
	"faultline/database"
	"faultline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestServices(t *testing.T) (*Services, *gorm.DB) {
	t.Helper()
	cfg := config.Defaults()
	cfg.LogLevel = "ERROR"
	cfg.RetentionSchedule = ""

	db, err := database.Open(filepath.Join(t.TempDir(), "errors.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		core.SetDefault(nil)
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return InitServices(db, cfg), db
}

func validReport() *models.ErrorReport {
	return &models.ErrorReport{
		Level:   "error",
		Service: "frontend",
		Message: "x is undefined",
		Stack:   "TypeError: x is undefined\n    at render (app.js:10:3)",
		URL:     "https://shop.example/p/1",
	}
}

func TestIngest_Valid(t *testing.T) {
	svc, db := newTestServices(t)

	id, err := svc.Errors.Ingest(context.Background(), validReport(), RequestInfo{
		Method:    "POST",
		UserAgent: "curl/8",
		RayID:     "ray-1",
		RequestID: "req-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-abc", id)

	var rows []models.ErrorLog
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "TypeError", rows[0].ErrorCode)
	assert.Equal(t, "curl/8", rows[0].UserAgent)
	assert.Equal(t, "ray-1", rows[0].RayID)
	assert.Equal(t, models.ServiceFrontend, rows[0].Service)
	assert.Equal(t, core.Fingerprint("x is undefined", "TypeError", "https://shop.example/p/1", "at render (app.js:10:3)"), rows[0].Fingerprint)
}

func TestIngest_GeneratesRequestID(t *testing.T) {
	svc, _ := newTestServices(t)

	id, err := svc.Errors.Ingest(context.Background(), validReport(), RequestInfo{})
	require.NoError(t, err)
	assert.Regexp(t, `^req_\d+_`, id)
}

func TestIngest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *models.ErrorReport)
		wantMsg string
	}{
		{"missing url", func(r *models.ErrorReport) { r.URL = "" }, "Missing required fields: url"},
		{"missing several", func(r *models.ErrorReport) { r.Level = ""; r.Message = "  " }, "Missing required fields: level, message"},
		{"bad level", func(r *models.ErrorReport) { r.Level = "bogus" }, "Invalid level. Must be one of: critical, error, warn, info"},
		{"bad service", func(r *models.ErrorReport) { r.Service = "mainframe" }, "Invalid service. Must be one of: worker, frontend, data-store, object-store, external-api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db := newTestServices(t)
			report := validReport()
			tt.mutate(report)

			_, err := svc.Errors.Ingest(context.Background(), report, RequestInfo{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, core.ErrInvalidReport))
			assert.Equal(t, tt.wantMsg, err.Error())

			var n int64
			require.NoError(t, db.Model(&models.ErrorLog{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestStats_ReflectsIngest(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	before, err := svc.Errors.Stats(ctx, 60)
	require.NoError(t, err)
	assert.Zero(t, before.TotalErrors)
	assert.False(t, before.AlertThresholdExceeded)
	assert.Equal(t, 60, before.WindowMinutes)

	_, err = svc.Errors.Ingest(ctx, validReport(), RequestInfo{})
	require.NoError(t, err)

	after, err := svc.Errors.Stats(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.TotalErrors)
	assert.Equal(t, int64(1), after.ErrorCount)
	assert.Equal(t, core.RoundRate(1.0/60.0), after.ErrorRate)
	require.Len(t, after.RecentErrors, 1)
	assert.Equal(t, "at render (app.js:10:3)", after.RecentErrors[0].TopFrame)
}

func TestStats_AlertThreshold(t *testing.T) {
	svc, _ := newTestServices(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := validReport()
		r.Message = r.Message + string(rune('a'+i))
		_, err := svc.Errors.Ingest(ctx, r, RequestInfo{})
		require.NoError(t, err)
	}

	report, err := svc.Errors.Stats(ctx, 1)
	require.NoError(t, err)
	assert.True(t, report.AlertThresholdExceeded)

	alerting, err := svc.Errors.Alerting(ctx, 1)
	require.NoError(t, err)
	assert.True(t, alerting)
}

func TestRetention_CleanupRecordsRun(t *testing.T) {
	svc, db := newTestServices(t)
	ctx := context.Background()

	old := &models.ErrorLog{
		Timestamp:   models.FormatTimestamp(time.Now().AddDate(0, 0, -45)),
		Level:       models.LevelError,
		Service:     models.ServiceWorker,
		Message:     "ancient",
		RequestID:   "req_old",
		Fingerprint: "fp_old",
	}
	require.NoError(t, database.NewErrorStore(db).Upsert(ctx, old))

	res, err := svc.Retention.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, 30, res.RetentionDays)

	last, err := svc.Retention.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(1), last.Deleted)

	res, err = svc.Retention.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Deleted)
}

func TestRetention_Schedule(t *testing.T) {
	logger := core.NewErrorLogger(nil, core.LoggerOptions{})

	disabled := NewRetentionService(logger, nil, RetentionOptions{})
	assert.NoError(t, disabled.Start())
	disabled.Stop(context.Background())

	bad := NewRetentionService(logger, nil, RetentionOptions{Schedule: "every tuesday-ish"})
	assert.Error(t, bad.Start())

	ok := NewRetentionService(logger, nil, RetentionOptions{Schedule: "@hourly"})
	require.NoError(t, ok.Start())
	assert.Error(t, ok.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ok.Stop(ctx)
}

func TestRetention_CleanupWithoutStore(t *testing.T) {
	logger := core.NewErrorLogger(nil, core.LoggerOptions{})
	svc := NewRetentionService(logger, nil, RetentionOptions{})

	_, err := svc.Cleanup(context.Background())
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}
