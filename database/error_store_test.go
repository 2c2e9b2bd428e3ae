package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"faultline/config"
	"faultline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return openTestDBWith(t, config.Defaults())
}

func openTestDBWith(t *testing.T, cfg *config.Config) *gorm.DB {
	t.Helper()
	cfg.LogLevel = "ERROR"

	db, err := Open(filepath.Join(t.TempDir(), "errors.db"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func newRecord(ts time.Time, level models.Level, fp string) *models.ErrorLog {
	return &models.ErrorLog{
		Timestamp:   models.FormatTimestamp(ts),
		Level:       level,
		Service:     models.ServiceWorker,
		Message:     "boom",
		Stack:       "Error: boom\n    at handler (worker.js:3:7)",
		URL:         "/api/x",
		Method:      "GET",
		RequestID:   "req_1",
		Fingerprint: fp,
		LastSeen:    ts,
	}
}

func TestErrorStore_UpsertSameBucket(t *testing.T) {
	store := NewErrorStore(openTestDB(t))
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, newRecord(ts, models.LevelError, "fp_a")))
	second := newRecord(ts, models.LevelError, "fp_a")
	second.LastSeen = ts.Add(time.Second)
	require.NoError(t, store.Upsert(ctx, second))

	var rows []models.ErrorLog
	require.NoError(t, store.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Count)
	assert.True(t, rows[0].LastSeen.Equal(ts.Add(time.Second)))
	assert.Equal(t, "{}", rows[0].AdditionalData)
}

func TestErrorStore_ConcurrentUpsertsKeepEveryCount(t *testing.T) {
	const writers = 40
	for _, conns := range []int{1, 4} {
		t.Run(fmt.Sprintf("max_open_conns=%d", conns), func(t *testing.T) {
			cfg := config.Defaults()
			cfg.SQLiteMaxOpenConns = conns
			cfg.SQLiteMaxIdleConns = conns
			cfg.SQLiteBusyTimeoutMS = 10000
			store := NewErrorStore(openTestDBWith(t, cfg))
			ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- store.Upsert(context.Background(), newRecord(ts, models.LevelError, "fp_shared"))
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			var rows []models.ErrorLog
			require.NoError(t, store.DB().Find(&rows).Error)
			require.Len(t, rows, 1)
			assert.Equal(t, int64(writers), rows[0].Count)
		})
	}
}

func TestErrorStore_DifferentBucketsAreSeparateRows(t *testing.T) {
	store := NewErrorStore(openTestDB(t))
	ctx := context.Background()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, newRecord(ts, models.LevelError, "fp_a")))
	require.NoError(t, store.Upsert(ctx, newRecord(ts.Add(time.Millisecond), models.LevelError, "fp_a")))
	require.NoError(t, store.Upsert(ctx, newRecord(ts, models.LevelError, "fp_b")))

	var n int64
	require.NoError(t, store.DB().Model(&models.ErrorLog{}).Count(&n).Error)
	assert.Equal(t, int64(3), n)
}

func TestErrorStore_QueryWindow(t *testing.T) {
	store := NewErrorStore(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, newRecord(now.Add(-2*time.Hour), models.LevelCritical, "fp_old")))
	require.NoError(t, store.Upsert(ctx, newRecord(now.Add(-10*time.Minute), models.LevelCritical, "fp_c")))
	require.NoError(t, store.Upsert(ctx, newRecord(now.Add(-10*time.Minute), models.LevelCritical, "fp_c")))
	require.NoError(t, store.Upsert(ctx, newRecord(now.Add(-5*time.Minute), models.LevelWarn, "fp_w")))

	res, err := store.QueryWindow(ctx, now.Add(-time.Hour), 50)
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Counts[models.LevelCritical])
	assert.Equal(t, int64(1), res.Counts[models.LevelWarn])
	assert.Zero(t, res.Counts[models.LevelError])

	require.Len(t, res.Recent, 2)
	assert.Equal(t, "fp_w", res.Recent[0].Fingerprint)
	assert.Equal(t, int64(2), res.Recent[1].Count)
	assert.Equal(t, "at handler (worker.js:3:7)", res.Recent[1].TopFrame)

	limited, err := store.QueryWindow(ctx, now.Add(-3*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited.Recent, 1)
	assert.Equal(t, int64(3), limited.Counts[models.LevelCritical])
}

func TestErrorStore_PurgeOlderThan(t *testing.T) {
	store := NewErrorStore(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, newRecord(now.AddDate(0, 0, -31), models.LevelError, "fp_a")))
	require.NoError(t, store.Upsert(ctx, newRecord(now.AddDate(0, 0, -1), models.LevelError, "fp_b")))

	deleted, err := store.PurgeOlderThan(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	deleted, err = store.PurgeOlderThan(ctx, now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestErrorStore_Ping(t *testing.T) {
	store := NewErrorStore(openTestDB(t))
	assert.NoError(t, store.Ping(context.Background()))

	var empty *ErrorStore
	assert.Error(t, empty.Ping(context.Background()))
}

func TestRetentionBookkeeping(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := LastPurge(db)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 5, 31, 3, 0, 0, 0, time.UTC)
	require.NoError(t, RecordPurge(db, at, 42))

	rec, ok, err := LastPurge(db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.At.Equal(at))
	assert.Equal(t, int64(42), rec.Deleted)
}
