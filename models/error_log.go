package models

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TimestampLayout is the bucket granularity of stored rows: millisecond UTC,
// fixed width so that lexical order matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in the stored timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ErrorLog is a persisted error occurrence, addressed by (fingerprint, timestamp)
type ErrorLog struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	Timestamp      string    `gorm:"size:32;not null;uniqueIndex:idx_error_logs_fingerprint_ts,priority:2;index:idx_error_logs_timestamp" json:"timestamp"`
	Level          Level     `gorm:"size:16;not null;index:idx_error_logs_level" json:"level"`
	Service        Service   `gorm:"size:32;not null" json:"service"`
	Message        string    `gorm:"type:text;not null" json:"message"`
	Stack          string    `gorm:"type:text" json:"stack,omitempty"`
	ErrorCode      string    `gorm:"size:128" json:"error_code,omitempty"`
	URL            string    `gorm:"column:url;type:text" json:"url"`
	Method         string    `gorm:"size:16" json:"method"`
	UserAgent      string    `gorm:"type:text" json:"user_agent,omitempty"`
	RayID          string    `gorm:"column:ray_id;size:64" json:"platform_ray_id,omitempty"`
	RequestID      string    `gorm:"size:64;not null" json:"request_id"`
	UserID         string    `gorm:"size:128" json:"user_id,omitempty"`
	AdditionalData string    `gorm:"column:additional_data;type:text;default:'{}'" json:"-"`
	Fingerprint    string    `gorm:"size:32;not null;uniqueIndex:idx_error_logs_fingerprint_ts,priority:1" json:"fingerprint"`
	Count          int64     `gorm:"not null;default:1" json:"count"`
	LastSeen       time.Time `json:"last_seen"`
}

// BeforeCreate GORM hook - assign an id and sane defaults
func (e *ErrorLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Count < 1 {
		e.Count = 1
	}
	if e.LastSeen.IsZero() {
		e.LastSeen = time.Now().UTC()
	}
	if strings.TrimSpace(e.AdditionalData) == "" {
		e.AdditionalData = "{}"
	}
	return nil
}

// GetAdditionalData returns the free-form context data as a map
func (e *ErrorLog) GetAdditionalData() map[string]any {
	data := map[string]any{}
	if e.AdditionalData != "" {
		_ = json.Unmarshal([]byte(e.AdditionalData), &data)
	}
	return data
}

// SetAdditionalData stores the free-form context data as JSON
func (e *ErrorLog) SetAdditionalData(data map[string]any) {
	if len(data) == 0 {
		e.AdditionalData = "{}"
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		e.AdditionalData = "{}"
		return
	}
	e.AdditionalData = string(raw)
}

// Context rebuilds the request context stored alongside the row
func (e *ErrorLog) Context() ErrorContext {
	return ErrorContext{
		URL:            e.URL,
		Method:         e.Method,
		UserAgent:      e.UserAgent,
		RayID:          e.RayID,
		RequestID:      e.RequestID,
		UserID:         e.UserID,
		AdditionalData: e.GetAdditionalData(),
	}
}

// Summary reduces the row to the fields safe to show on a dashboard
func (e *ErrorLog) Summary() ErrorSummary {
	return ErrorSummary{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Level:     e.Level,
		Service:   e.Service,
		Message:   e.Message,
		TopFrame:  FirstFrame(e.Stack),
		Context: SummaryContext{
			URL:       e.URL,
			Method:    e.Method,
			RequestID: e.RequestID,
		},
		Fingerprint: e.Fingerprint,
		Count:       e.Count,
	}
}

// FirstFrame returns the first frame of a trace. A leading "Type: message"
// header line is skipped, so a header-only trace has no frame.
func FirstFrame(stack string) string {
	for i, line := range strings.Split(strings.TrimSpace(stack), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i == 0 {
			if _, ok := StackHeaderName(line); ok {
				continue
			}
		}
		return line
	}
	return ""
}

// StackHeaderName returns the error type of a "Type: message" header line.
// Frame lines such as "at fn (file:1:2)" or "fn@file:1:2" are not headers.
func StackHeaderName(line string) (string, bool) {
	i := strings.Index(line, ":")
	if i <= 0 {
		return "", false
	}
	name := line[:i]
	for j, r := range name {
		switch {
		case r == '_' || r == '$' || unicode.IsLetter(r):
		case j > 0 && (r == '.' || unicode.IsDigit(r)):
		default:
			return "", false
		}
	}
	return name, true
}
