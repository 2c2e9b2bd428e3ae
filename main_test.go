package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"faultline/config"
	"faultline/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	restoreLogrus(t)
	saved := *config.Settings
	t.Cleanup(func() { *config.Settings = saved })

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	closeLog()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/errors/stats", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("minutes"))
		_, _ = w.Write([]byte(`{"total_errors":2,"error_rate":0.4,"error_count":2,"recent_errors":[],"window_minutes":5,"alert_threshold_exceeded":false}`))
	}))
	defer srv.Close()
	t.Setenv("FAULTLINE_PROFILES", filepath.Join(t.TempDir(), "profiles.yaml"))

	out, err := runCLI(t, "stats", "--server", srv.URL, "--minutes", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Errors in the last 5 minutes")
}

func TestReportCommand(t *testing.T) {
	got := make(chan models.ErrorReport, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rep models.ErrorReport
		_ = json.NewDecoder(r.Body).Decode(&rep)
		got <- rep
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	t.Setenv("FAULTLINE_PROFILES", filepath.Join(t.TempDir(), "profiles.yaml"))

	_, err := runCLI(t, "report", "--server", srv.URL, "--level", "warn", "--service", "data-store", "disk", "almost", "full")
	require.NoError(t, err)

	rep := <-got
	assert.Equal(t, "warn", rep.Level)
	assert.Equal(t, "data-store", rep.Service)
	assert.Equal(t, "disk almost full", rep.Message)

	_, err = runCLI(t, "report", "--server", srv.URL, "--level", "fatal", "x")
	assert.Error(t, err)
}

func TestProfileCommands_SelectServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer from-profile", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":true,"deleted_count":0,"retention_days":30,"timestamp":"2024-05-31T00:00:00.000Z"}`))
	}))
	defer srv.Close()
	t.Setenv("FAULTLINE_PROFILES", filepath.Join(t.TempDir(), "profiles.yaml"))

	_, err := runCLI(t, "profile", "add", "local", srv.URL, "--cleanup-key", "from-profile")
	require.NoError(t, err)

	out, err := runCLI(t, "profile", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "local")

	out, err = runCLI(t, "cleanup")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 0 record(s)")

	_, err = runCLI(t, "stats", "--profile", "missing")
	assert.Error(t, err)
}
