package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"faultline/core"
	"faultline/database"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultCleanupTimeout = 30 * time.Second

// CleanupResult is the outcome of one retention run
type CleanupResult struct {
	Deleted       int64     `json:"deleted_count"`
	RetentionDays int       `json:"retention_days"`
	At            time.Time `json:"timestamp"`
}

// RetentionOptions configures the retention job
type RetentionOptions struct {
	// Schedule is a cron spec; empty disables the scheduled run.
	Schedule string
	Timeout  time.Duration
	Now      func() time.Time
}

// RetentionService purges records past the retention horizon, on demand and
// on a cron schedule.
type RetentionService struct {
	logger   *core.ErrorLogger
	db       *gorm.DB
	schedule string
	timeout  time.Duration
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewRetentionService constructs a retention service. db may be nil, in
// which case runs are not recorded.
func NewRetentionService(logger *core.ErrorLogger, db *gorm.DB, opts RetentionOptions) *RetentionService {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultCleanupTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RetentionService{
		logger:   logger,
		db:       db,
		schedule: opts.Schedule,
		timeout:  opts.Timeout,
		now:      opts.Now,
	}
}

// Cleanup deletes expired records. Errors propagate; bookkeeping failures
// are only logged.
func (s *RetentionService) Cleanup(ctx context.Context) (*CleanupResult, error) {
	deleted, err := s.logger.CleanupOldLogs(ctx)
	if err != nil {
		return nil, err
	}

	res := &CleanupResult{
		Deleted:       deleted,
		RetentionDays: s.logger.RetentionDays(),
		At:            s.now().UTC(),
	}
	if s.db != nil {
		if err := database.RecordPurge(s.db.WithContext(ctx), res.At, deleted); err != nil {
			logrus.WithError(err).Warn("Failed to record retention run")
		}
	}
	return res, nil
}

// LastRun returns the previously recorded run, if any.
func (s *RetentionService) LastRun(ctx context.Context) (*database.PurgeRecord, error) {
	if s.db == nil {
		return nil, nil
	}
	rec, ok, err := database.LastPurge(s.db.WithContext(ctx))
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// Start schedules Cleanup. It is a no-op when no schedule is configured.
func (s *RetentionService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		logrus.Info("Retention schedule disabled")
		return nil
	}
	if s.cron != nil {
		return errors.New("retention schedule already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, s.runScheduled); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	logrus.WithField("schedule", s.schedule).Info("Retention schedule started")
	return nil
}

// Stop halts the schedule and waits for a running cleanup, up to ctx.
func (s *RetentionService) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		logrus.Warn("Timed out waiting for retention cleanup to finish")
	}
}

func (s *RetentionService) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.Cleanup(ctx)
	if err != nil {
		logrus.WithError(err).Error("Scheduled retention cleanup failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"deleted_count":  res.Deleted,
		"retention_days": res.RetentionDays,
	}).Info("Scheduled retention cleanup finished")
}
