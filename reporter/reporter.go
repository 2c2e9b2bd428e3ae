// Package reporter ships errors from a Go process to a faultline server.
//
// Reports are sent on background goroutines and never block or fail the
// caller. Failures to deliver are logged at warn level and dropped.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"faultline/core"
	"faultline/metrics"
	"faultline/models"
	"faultline/version"

	"github.com/sirupsen/logrus"
)

const defaultTimeout = 5 * time.Second

// Config configures a Reporter
type Config struct {
	// Endpoint is the full ingestion URL, e.g. http://host:8787/api/error-log.
	Endpoint string
	Service  models.Service
	// PageURL is sent as the report url. Defaults to process://<binary>.
	PageURL   string
	UserAgent string
	Timeout   time.Duration
	// RePanic makes Recover re-raise the panic after reporting it.
	RePanic    bool
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Reporter sends error reports to the ingestion endpoint
type Reporter struct {
	cfg      Config
	inflight sync.WaitGroup

	mu         sync.Mutex
	components map[string]int
}

// New builds a reporter with defaults filled in
func New(cfg Config) *Reporter {
	if cfg.Service == "" {
		cfg.Service = models.ServiceWorker
	}
	if cfg.PageURL == "" {
		cfg.PageURL = "process://" + filepath.Base(os.Args[0])
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "faultline-reporter/" + version.GetVersion()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	cfg.Logger = cfg.Logger.WithField("component", componentName)
	return &Reporter{cfg: cfg, components: make(map[string]int)}
}

const componentName = "reporter"

// Report queues an error report. It returns immediately.
func (r *Reporter) Report(level models.Level, message string, err error, additional map[string]any) {
	defer func() {
		if p := recover(); p != nil {
			r.cfg.Logger.WithField("panic", p).Warn("Error reporting failed")
		}
	}()

	report := models.ErrorReport{
		Level:          string(level),
		Service:        string(r.cfg.Service),
		Message:        message,
		URL:            r.cfg.PageURL,
		UserAgent:      r.cfg.UserAgent,
		AdditionalData: additional,
	}
	if report.Message == "" && err != nil {
		report.Message = err.Error()
	}
	if err != nil {
		var traced *core.TracedError
		if !errors.As(err, &traced) {
			traced = core.NewTracedError(err)
		}
		report.Stack = traced.Stack
	}

	body, mErr := json.Marshal(report)
	if mErr != nil {
		r.dropped(mErr, message)
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.send(body, message)
	}()
}

// send runs detached from any caller context, bounded by the timeout.
func (r *Reporter) send(body []byte, message string) {
	defer func() {
		if p := recover(); p != nil {
			r.dropped(fmt.Errorf("panic: %v", p), message)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		r.dropped(err, message)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		r.dropped(err, message)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.dropped(fmt.Errorf("HTTP %d", resp.StatusCode), message)
	}
}

func (r *Reporter) dropped(err error, message string) {
	metrics.ReportsDropped.Inc()
	// Warn, not Error: the log hook must not see its own failures.
	r.cfg.Logger.WithError(err).WithField("message", message).Warn("Failed to send error report")
}

// Flush waits for in-flight reports or until ctx is done.
func (r *Reporter) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recover reports a panic as an uncaught error. It must be deferred
// directly:
//
//	defer rep.Recover()
func (r *Reporter) Recover() {
	if p := recover(); p != nil {
		r.capturePanic(p)
	}
}

func (r *Reporter) capturePanic(p any) {
	err, ok := p.(error)
	if !ok {
		err = fmt.Errorf("%v", p)
	}
	r.Report(models.LevelError, err.Error(), core.NewTracedError(err), map[string]any{
		"type": "uncaught",
	})

	if r.cfg.RePanic {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		_ = r.Flush(ctx)
		cancel()
		panic(p)
	}
}

// Go runs fn on a new goroutine and reports its error or panic.
func (r *Reporter) Go(fn func() error) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.capturePanic(p)
			}
		}()
		if err := fn(); err != nil {
			r.Report(models.LevelError, "Unhandled error: "+err.Error(), err, map[string]any{
				"type": "unhandled",
			})
		}
	}()
}

// Wrap returns fn instrumented to report failures. The original error is
// returned unchanged.
func (r *Reporter) Wrap(name string, fn func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			r.Report(core.DetermineLevel(err), fmt.Sprintf("Error in %s: %s", name, err.Error()), err, map[string]any{
				"function": name,
			})
		}
		return err
	}
}

// TrackComponent registers a named scope for CaptureIn. The returned
// release func deregisters it and is safe to call more than once.
func (r *Reporter) TrackComponent(name string) (release func()) {
	r.mu.Lock()
	r.components[name]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.components[name]--; r.components[name] <= 0 {
				delete(r.components, name)
			}
		})
	}
}

// CaptureIn reports err on behalf of a tracked component. It returns false,
// without reporting, when name is not registered.
func (r *Reporter) CaptureIn(name string, err error) bool {
	if err == nil {
		return false
	}
	r.mu.Lock()
	_, tracked := r.components[name]
	r.mu.Unlock()
	if !tracked {
		return false
	}

	r.Report(models.LevelError, "Error in "+name, err, map[string]any{
		"component": name,
	})
	return true
}
