package models

import (
	"sort"
	"strings"
	"sync"
)

// Level is the severity of an error record
type Level string

const (
	LevelCritical Level = "critical"
	LevelError    Level = "error"
	LevelWarn     Level = "warn"
	LevelInfo     Level = "info"
)

// Levels returns all levels, most severe first
func Levels() []Level {
	return []Level{LevelCritical, LevelError, LevelWarn, LevelInfo}
}

// ParseLevel validates untyped input against the closed set of levels
func ParseLevel(raw string) (Level, bool) {
	l := Level(strings.TrimSpace(raw))
	for _, known := range Levels() {
		if l == known {
			return l, true
		}
	}
	return "", false
}

// Service classifies where an error originated
type Service string

const (
	ServiceWorker      Service = "worker"
	ServiceFrontend    Service = "frontend"
	ServiceDataStore   Service = "data-store"
	ServiceObjectStore Service = "object-store"
	ServiceExternalAPI Service = "external-api"
)

var (
	servicesMu sync.RWMutex
	services   = map[Service]struct{}{
		ServiceWorker:      {},
		ServiceFrontend:    {},
		ServiceDataStore:   {},
		ServiceObjectStore: {},
		ServiceExternalAPI: {},
	}
)

// RegisterService extends the set of accepted services
func RegisterService(s Service) {
	s = Service(strings.TrimSpace(string(s)))
	if s == "" {
		return
	}
	servicesMu.Lock()
	services[s] = struct{}{}
	servicesMu.Unlock()
}

// Services returns the accepted services in a stable order
func Services() []Service {
	servicesMu.RLock()
	out := make([]Service, 0, len(services))
	for s := range services {
		out = append(out, s)
	}
	servicesMu.RUnlock()

	order := map[Service]int{
		ServiceWorker: 0, ServiceFrontend: 1, ServiceDataStore: 2, ServiceObjectStore: 3, ServiceExternalAPI: 4,
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := order[out[i]]
		oj, jok := order[out[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return out
}

// ParseService validates untyped input against the registered services
func ParseService(raw string) (Service, bool) {
	s := Service(strings.TrimSpace(raw))
	servicesMu.RLock()
	_, ok := services[s]
	servicesMu.RUnlock()
	if !ok {
		return "", false
	}
	return s, true
}

// ErrorContext is the request context attached to an error record.
type ErrorContext struct {
	URL            string         `json:"url"`
	Method         string         `json:"method"`
	UserAgent      string         `json:"userAgent,omitempty"`
	RayID          string         `json:"platform-ray-id,omitempty"`
	RequestID      string         `json:"requestId"`
	UserID         string         `json:"userId,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// ErrorReport is the body accepted by the ingestion endpoint
type ErrorReport struct {
	Level          string         `json:"level"`
	Service        string         `json:"service"`
	Message        string         `json:"message"`
	Stack          string         `json:"stack,omitempty"`
	URL            string         `json:"url"`
	UserAgent      string         `json:"userAgent,omitempty"`
	AdditionalData map[string]any `json:"additionalData,omitempty"`
}

// Normalize trims whitespace from input fields
func (r *ErrorReport) Normalize() {
	r.Level = strings.TrimSpace(r.Level)
	r.Service = strings.TrimSpace(r.Service)
	r.Message = strings.TrimSpace(r.Message)
	r.URL = strings.TrimSpace(r.URL)
	r.UserAgent = strings.TrimSpace(r.UserAgent)
}

// SummaryContext is the subset of ErrorContext shown in listings
type SummaryContext struct {
	URL       string `json:"url"`
	Method    string `json:"method"`
	RequestID string `json:"requestId"`
}

// ErrorSummary is a display-safe view of a stored row
type ErrorSummary struct {
	ID          string         `json:"id"`
	Timestamp   string         `json:"timestamp"`
	Level       Level          `json:"level"`
	Service     Service        `json:"service"`
	Message     string         `json:"message"`
	TopFrame    string         `json:"top_frame,omitempty"`
	Context     SummaryContext `json:"context"`
	Fingerprint string         `json:"fingerprint"`
	Count       int64          `json:"count"`
}

// WindowResult is what the store returns for a time window
type WindowResult struct {
	Counts map[Level]int64
	Recent []ErrorSummary
}

// ErrorStats aggregates a time window for dashboards and alerting
type ErrorStats struct {
	TotalErrors   int64          `json:"total_errors"`
	ErrorRate     float64        `json:"error_rate"`
	CriticalCount int64          `json:"critical_count"`
	ErrorCount    int64          `json:"error_count"`
	WarnCount     int64          `json:"warn_count"`
	InfoCount     int64          `json:"info_count"`
	RecentErrors  []ErrorSummary `json:"recent_errors"`
}
