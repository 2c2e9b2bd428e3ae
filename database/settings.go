package database

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"faultline/models"

	"gorm.io/gorm"
)

const (
	settingLastPurgeAt   = "retention.last_purge_at"
	settingLastPurgeRows = "retention.last_deleted"
)

// GetSetting returns a persisted key/value setting.
// ok is false when the key does not exist.
func GetSetting(db *gorm.DB, key string) (value string, ok bool, err error) {
	if db == nil {
		return "", false, errors.New("database not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, errors.New("empty setting key")
	}

	var s models.AppSetting
	if err := db.First(&s, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return s.Value, true, nil
}

// SetSetting persists a key/value setting.
func SetSetting(db *gorm.DB, key, value string) error {
	if db == nil {
		return errors.New("database not initialized")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("empty setting key")
	}

	return db.Save(&models.AppSetting{Key: key, Value: strings.TrimSpace(value)}).Error
}

// PurgeRecord describes the last retention run
type PurgeRecord struct {
	At      time.Time `json:"at"`
	Deleted int64     `json:"deleted"`
}

// RecordPurge stores the outcome of a retention run.
func RecordPurge(db *gorm.DB, at time.Time, deleted int64) error {
	if db == nil {
		return errors.New("database not initialized")
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := SetSetting(tx, settingLastPurgeAt, at.UTC().Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return SetSetting(tx, settingLastPurgeRows, strconv.FormatInt(deleted, 10))
	})
}

// LastPurge returns the last stored retention run; ok is false before the
// first one.
func LastPurge(db *gorm.DB) (rec PurgeRecord, ok bool, err error) {
	raw, ok, err := GetSetting(db, settingLastPurgeAt)
	if err != nil || !ok {
		return PurgeRecord{}, false, err
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return PurgeRecord{}, false, err
	}
	rec.At = at

	if raw, found, err := GetSetting(db, settingLastPurgeRows); err != nil {
		return PurgeRecord{}, false, err
	} else if found {
		rec.Deleted, _ = strconv.ParseInt(raw, 10, 64)
	}
	return rec, true, nil
}
