package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faultline/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrorStore is the SQLite-backed error record table.
type ErrorStore struct {
	db *gorm.DB
}

// NewErrorStore wraps an open database
func NewErrorStore(db *gorm.DB) *ErrorStore {
	return &ErrorStore{db: db}
}

// DB exposes the underlying handle for bookkeeping queries
func (s *ErrorStore) DB() *gorm.DB {
	return s.db
}

// Upsert inserts rec or, when a row with the same fingerprint and timestamp
// exists, increments its count and refreshes last_seen in one statement.
func (s *ErrorStore) Upsert(ctx context.Context, rec *models.ErrorLog) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now().UTC()
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "fingerprint"}, {Name: "timestamp"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":     gorm.Expr("error_logs.count + 1"),
			"last_seen": rec.LastSeen,
		}),
	}).Create(rec).Error
}

type levelTotal struct {
	Level models.Level
	Total int64
}

// QueryWindow sums counts per level for rows at or after since and returns
// up to limit of the newest rows.
func (s *ErrorStore) QueryWindow(ctx context.Context, since time.Time, limit int) (*models.WindowResult, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("database not initialized")
	}
	bound := models.FormatTimestamp(since)
	db := s.db.WithContext(ctx)

	var totals []levelTotal
	if err := db.Model(&models.ErrorLog{}).
		Select("level, SUM(count) AS total").
		Where("timestamp >= ?", bound).
		Group("level").
		Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("count by level: %w", err)
	}

	var rows []models.ErrorLog
	if err := db.Where("timestamp >= ?", bound).
		Order("timestamp DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("recent errors: %w", err)
	}

	result := &models.WindowResult{
		Counts: make(map[models.Level]int64, len(totals)),
		Recent: make([]models.ErrorSummary, 0, len(rows)),
	}
	for _, t := range totals {
		result.Counts[t.Level] += t.Total
	}
	for i := range rows {
		result.Recent = append(result.Recent, rows[i].Summary())
	}
	return result, nil
}

// PurgeOlderThan removes rows whose timestamp is before cutoff
func (s *ErrorStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("database not initialized")
	}
	res := s.db.WithContext(ctx).
		Where("timestamp < ?", models.FormatTimestamp(cutoff)).
		Delete(&models.ErrorLog{})
	return res.RowsAffected, res.Error
}

// Ping checks that the database answers. Without a deadline on ctx a short
// one is applied.
func (s *ErrorStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("database not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	return sqlDB.PingContext(ctx)
}
