package core

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"faultline/models"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu       sync.Mutex
	rows     map[string]*models.ErrorLog
	failWith error
	panics   bool
	cutoff   time.Time
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*models.ErrorLog{}}
}

func (s *memStore) Upsert(ctx context.Context, rec *models.ErrorLog) error {
	if s.panics {
		panic("store exploded")
	}
	if s.failWith != nil {
		return s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Fingerprint + "|" + rec.Timestamp
	if existing, ok := s.rows[key]; ok {
		existing.Count++
		existing.LastSeen = rec.LastSeen
		return nil
	}
	cp := *rec
	s.rows[key] = &cp
	return nil
}

func (s *memStore) QueryWindow(ctx context.Context, since time.Time, limit int) (*models.WindowResult, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bound := models.FormatTimestamp(since)
	out := &models.WindowResult{Counts: map[models.Level]int64{}}
	var rows []*models.ErrorLog
	for _, r := range s.rows {
		if r.Timestamp >= bound {
			out.Counts[r.Level] += r.Count
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp > rows[j].Timestamp })
	for i, r := range rows {
		if i == limit {
			break
		}
		out.Recent = append(out.Recent, r.Summary())
	}
	return out, nil
}

func (s *memStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	bound := models.FormatTimestamp(cutoff)
	var n int64
	for k, r := range s.rows {
		if r.Timestamp < bound {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLogger(store ErrorStore, now time.Time) (*ErrorLogger, *logtest.Hook) {
	fallback, hook := logtest.NewNullLogger()
	return NewErrorLogger(store, LoggerOptions{Now: fixedClock(now), Fallback: fallback}), hook
}

func TestLogError_SameBucketIncrementsCount(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	logger, _ := newTestLogger(store, now)

	err := &TracedError{Name: "TypeError", Message: "x", Stack: "TypeError: x\n    at f (a.js:1:1)"}
	logger.LogError(context.Background(), models.LevelError, "x", err, models.ErrorContext{URL: "/a"}, models.ServiceFrontend)
	logger.LogError(context.Background(), models.LevelError, "x", err, models.ErrorContext{URL: "/a"}, models.ServiceFrontend)

	require.Len(t, store.rows, 1)
	for _, r := range store.rows {
		assert.Equal(t, int64(2), r.Count)
		assert.Equal(t, "TypeError", r.ErrorCode)
	}

	stats, statsErr := logger.GetErrorStats(context.Background(), 60)
	require.NoError(t, statsErr)
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, int64(2), stats.ErrorCount)
	assert.Len(t, stats.RecentErrors, 1)
}

func TestLogError_StoreFailureIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.failWith = errors.New("database is locked")
	logger, hook := newTestLogger(store, time.Now())

	assert.NotPanics(t, func() {
		logger.LogError(context.Background(), models.LevelCritical, "boom", nil, models.ErrorContext{}, "")
	})
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "Error logging failed", hook.LastEntry().Message)
}

func TestLogError_StorePanicIsSwallowed(t *testing.T) {
	store := newMemStore()
	store.panics = true
	logger, hook := newTestLogger(store, time.Now())

	assert.NotPanics(t, func() {
		logger.LogError(context.Background(), models.LevelError, "boom", nil, models.ErrorContext{}, "")
	})
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Data["cause"].(error).Error(), "store exploded")
}

func TestLogError_NilStoreFallsBack(t *testing.T) {
	logger, hook := newTestLogger(nil, time.Now())

	logger.LogError(context.Background(), models.LevelError, "boom", nil, models.ErrorContext{}, "")
	require.Len(t, hook.Entries, 1)

	_, err := logger.GetErrorStats(context.Background(), 60)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestLogError_CancelledContextStillWrites(t *testing.T) {
	store := newMemStore()
	logger, _ := newTestLogger(store, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger.LogError(ctx, models.LevelWarn, "late", nil, models.ErrorContext{}, "")

	assert.Len(t, store.rows, 1)
}

func TestBuildRecord_Defaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 123_000_000, time.UTC)
	logger, _ := newTestLogger(newMemStore(), now)

	rec := logger.BuildRecord("", "boom", nil, models.ErrorContext{}, "")

	assert.Equal(t, models.ServiceWorker, rec.Service)
	assert.Equal(t, models.LevelError, rec.Level)
	assert.Equal(t, "unknown", rec.URL)
	assert.Equal(t, "unknown", rec.Method)
	assert.Equal(t, "2024-05-01T12:00:00.123Z", rec.Timestamp)
	assert.Equal(t, "{}", rec.AdditionalData)
	assert.Equal(t, Fingerprint("boom", "", "", ""), rec.Fingerprint)
	assert.Regexp(t, regexp.MustCompile(`^req_1714564800123_[0-9a-f]{9}$`), rec.RequestID)
}

func TestBuildRecord_KeepsCallerRequestID(t *testing.T) {
	logger, _ := newTestLogger(newMemStore(), time.Now())

	rec := logger.BuildRecord(models.LevelInfo, "m", nil, models.ErrorContext{
		RequestID:      "abc",
		AdditionalData: map[string]any{"k": "v"},
	}, models.ServiceDataStore)

	assert.Equal(t, "abc", rec.RequestID)
	assert.Equal(t, map[string]any{"k": "v"}, rec.GetAdditionalData())
}

func TestGetErrorStats_RateAndValidation(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	logger, _ := newTestLogger(store, now)

	for i := 0; i < 7; i++ {
		logger.now = fixedClock(now.Add(time.Duration(i) * time.Millisecond))
		logger.LogError(context.Background(), models.LevelCritical, "boom", nil, models.ErrorContext{}, "")
	}
	logger.now = fixedClock(now)

	stats, err := logger.GetErrorStats(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats.TotalErrors)
	assert.Equal(t, int64(7), stats.CriticalCount)
	assert.Equal(t, 2.33, stats.ErrorRate)

	_, err = logger.GetErrorStats(context.Background(), 0)
	assert.Error(t, err)
}

func TestGetErrorStats_EmptyWindow(t *testing.T) {
	logger, _ := newTestLogger(newMemStore(), time.Now())

	stats, err := logger.GetErrorStats(context.Background(), 60)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalErrors)
	assert.Zero(t, stats.ErrorRate)
	assert.NotNil(t, stats.RecentErrors)
}

func TestCheckErrorRateThreshold(t *testing.T) {
	store := newMemStore()
	now := time.Now()
	logger, _ := newTestLogger(store, now)

	for i := 0; i < 2; i++ {
		logger.now = fixedClock(now.Add(time.Duration(i) * time.Millisecond))
		logger.LogError(context.Background(), models.LevelError, "boom", nil, models.ErrorContext{}, "")
	}
	logger.now = fixedClock(now)

	exceeded, err := logger.CheckErrorRateThreshold(context.Background(), 1.0, 1)
	require.NoError(t, err)
	assert.True(t, exceeded)

	exceeded, err = logger.CheckErrorRateThreshold(context.Background(), 2.0, 1)
	require.NoError(t, err)
	assert.False(t, exceeded, "rate equal to threshold does not trip")

	store.failWith = errors.New("down")
	_, err = logger.CheckErrorRateThreshold(context.Background(), 1.0, 1)
	assert.Error(t, err)
}

func TestCleanupOldLogs(t *testing.T) {
	store := newMemStore()
	now := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	logger, _ := newTestLogger(store, now.AddDate(0, 0, -40))
	logger.LogError(context.Background(), models.LevelError, "old", nil, models.ErrorContext{}, "")
	logger.now = fixedClock(now)
	logger.LogError(context.Background(), models.LevelError, "new", nil, models.ErrorContext{}, "")

	deleted, err := logger.CleanupOldLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, now.AddDate(0, 0, -30), store.cutoff)

	deleted, err = logger.CleanupOldLogs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRoundRate(t *testing.T) {
	assert.Equal(t, 0.33, RoundRate(1.0/3.0))
	assert.Equal(t, 1.0, RoundRate(1))
	assert.Equal(t, 0.0, RoundRate(0))
}

func TestDefaultHelpers(t *testing.T) {
	store := newMemStore()
	logger, _ := newTestLogger(store, time.Now())
	SetDefault(logger)
	t.Cleanup(func() { SetDefault(nil) })

	LogCritical(context.Background(), "c", errors.New("x"), models.ErrorContext{})

	require.Len(t, store.rows, 1)
	for _, r := range store.rows {
		assert.Equal(t, models.LevelCritical, r.Level)
		assert.Equal(t, models.ServiceWorker, r.Service)
	}
}
