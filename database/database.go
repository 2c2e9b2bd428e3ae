package database

import (
	"errors"
	"log"
	"sync"
	"time"

	"faultline/config"
	"faultline/models"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB     *gorm.DB
	dbOnce sync.Mutex
)

// InitDB opens the database named by config.Settings on first use. Later
// calls are no-ops; a failed attempt is retried on the next call.
func InitDB() error {
	dbOnce.Lock()
	defer dbOnce.Unlock()

	if DB != nil {
		return nil
	}
	if config.Settings == nil {
		return errors.New("configuration not loaded")
	}

	db, err := Open(config.Settings.DatabaseURL, config.Settings)
	if err != nil {
		return err
	}
	DB = db

	logrus.WithField("path", config.Settings.DatabaseURL).Info("Database initialized successfully")
	return nil
}

// Open connects to a SQLite file, applies pool settings and PRAGMAs and
// migrates the schema.
func Open(path string, settings *config.Config) (*gorm.DB, error) {
	logLevel := logger.Silent
	if settings.LogLevel == "DEBUG" {
		logLevel = logger.Info
	}

	gormWriter := log.New(logrus.StandardLogger().WriterLevel(logrus.DebugLevel), "", 0)

	db, err := gorm.Open(sqlite.Open(buildSQLiteDSN(path, settings)), &gorm.Config{
		Logger: sqliteMetricsLogger{inner: logger.New(gormWriter, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		})},
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	pool := currentSQLitePoolConfig(settings)
	sqlDB.SetMaxIdleConns(pool.maxIdleConns)
	sqlDB.SetMaxOpenConns(pool.maxOpenConns)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.maxIdleSec) * time.Second)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.maxLifeSec) * time.Second)

	// Existing files may predate the DSN parameters.
	if settings.SQLitePragmasEnabled {
		if settings.SQLiteBusyTimeoutMS > 0 {
			db.Exec("PRAGMA busy_timeout = ?", settings.SQLiteBusyTimeoutMS)
		}
		if journalMode := normalizeSQLiteJournalMode(settings.SQLiteJournalMode); journalMode != "" {
			db.Exec("PRAGMA journal_mode = " + journalMode)
		}
		if synchronous := normalizeSQLiteSynchronous(settings.SQLiteSynchronous); synchronous != "" {
			db.Exec("PRAGMA synchronous = " + synchronous)
		}
	}

	if err := db.AutoMigrate(&models.ErrorLog{}, &models.AppSetting{}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// CloseDB closes the database connection and releases resources
func CloseDB() error {
	dbOnce.Lock()
	defer dbOnce.Unlock()

	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	logrus.Info("Closing database connection...")
	DB = nil
	return sqlDB.Close()
}
