package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"faultline/service"
)

// Client talks to a running faultline server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new HTTP client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, header http.Header) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *Client) handleResponse(resp *http.Response, result interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		} else {
			apiErr.Message = strings.TrimSpace(string(bodyBytes))
		}
		return apiErr
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// HealthReport is the health endpoint payload
type HealthReport struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Checks  []struct {
		Service   string `json:"service"`
		Status    string `json:"status"`
		LatencyMS int64  `json:"latency_ms"`
		Message   string `json:"message"`
	} `json:"checks"`
	LastCleanup *struct {
		At           string `json:"at"`
		DeletedCount int64  `json:"deleted_count"`
	} `json:"last_cleanup,omitempty"`
}

// Health fetches the health report. A 503 still decodes the report and
// returns it together with an error.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &report, fmt.Errorf("server unhealthy: HTTP %d", resp.StatusCode)
	}
	return &report, nil
}

// Stats fetches error statistics for the last minutes minutes; zero uses
// the server default.
func (c *Client) Stats(ctx context.Context, minutes int) (*service.StatsReport, error) {
	path := "/api/errors/stats"
	if minutes != 0 {
		path += "?minutes=" + strconv.Itoa(minutes)
	}
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var report service.StatsReport
	if err := c.handleResponse(resp, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// CleanupResponse is the cleanup endpoint payload
type CleanupResponse struct {
	Success       bool   `json:"success"`
	DeletedCount  int64  `json:"deleted_count"`
	RetentionDays int    `json:"retention_days"`
	Timestamp     string `json:"timestamp"`
}

// Cleanup triggers a retention purge. apiKey may be empty when the server
// does not require one.
func (c *Client) Cleanup(ctx context.Context, apiKey string) (*CleanupResponse, error) {
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/errors/cleanup", nil, header)
	if err != nil {
		return nil, err
	}

	var out CleanupResponse
	if err := c.handleResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
