package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"faultline/config"
	"faultline/core"
	"faultline/models"
	"faultline/service"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/blake2b"
)

// Handler serves the error telemetry endpoints
type Handler struct {
	svc            *service.Services
	acl            *core.IPAccessControl
	cleanupKeySum  [blake2b.Size256]byte
	cleanupKeySet  bool
	defaultMinutes int
	maxMinutes     int
	timeout        time.Duration
}

// NewHandler builds a handler from settings
func NewHandler(svc *service.Services, settings *config.Config) (*Handler, error) {
	acl, err := core.NewIPAccessControl(settings.CleanupAllowCIDRs, nil)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		svc:            svc,
		acl:            acl,
		defaultMinutes: settings.StatsDefaultMinutes,
		maxMinutes:     settings.StatsMaxMinutes,
		timeout:        time.Duration(settings.RequestTimeoutSeconds) * time.Second,
	}
	if h.defaultMinutes < 1 {
		h.defaultMinutes = 60
	}
	if h.maxMinutes < 1 {
		h.maxMinutes = 1440
	}
	if h.timeout <= 0 {
		h.timeout = 10 * time.Second
	}
	if key := strings.TrimSpace(settings.CleanupAPIKey); key != "" {
		h.cleanupKeySum = blake2b.Sum256([]byte("Bearer " + key))
		h.cleanupKeySet = true
	}
	return h, nil
}

func (h *Handler) adminContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// LogError accepts an error report from a client
func (h *Handler) LogError(c *gin.Context) {
	var report models.ErrorReport
	if err := c.ShouldBindJSON(&report); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	rc := requestContext(c)
	id, err := h.svc.Errors.Ingest(c.Request.Context(), &report, service.RequestInfo{
		URL:       rc.URL,
		Method:    rc.Method,
		UserAgent: rc.UserAgent,
		RayID:     rc.RayID,
		RequestID: rc.RequestID,
	})
	if err != nil {
		respondFailure(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":    true,
		"message":    "Error logged successfully",
		"request_id": id,
	})
}

// GetStats reports error totals and the alert flag for a window
func (h *Handler) GetStats(c *gin.Context) {
	minutes := h.defaultMinutes
	if raw := strings.TrimSpace(c.Query("minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(c, http.StatusBadRequest, "Invalid minutes parameter. Must be a positive integer.")
			return
		}
		minutes = min(n, h.maxMinutes)
	}

	ctx, cancel := h.adminContext(c)
	defer cancel()

	report, err := h.svc.Errors.Stats(ctx, minutes)
	if err != nil {
		respondFailure(c, err)
		return
	}

	c.Header("Cache-Control", noStore)
	c.JSON(http.StatusOK, report)
}

// Cleanup purges records past retention
func (h *Handler) Cleanup(c *gin.Context) {
	if !h.acl.AllowsString(c.ClientIP()) {
		respondFailure(c, core.ErrForbidden)
		return
	}
	if !h.authorized(c.GetHeader("Authorization")) {
		respondFailure(c, core.ErrUnauthorized)
		return
	}

	ctx, cancel := h.adminContext(c)
	defer cancel()

	res, err := h.svc.Retention.Cleanup(ctx)
	if err != nil {
		respondFailure(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"deleted_count":  res.Deleted,
		"retention_days": res.RetentionDays,
		"timestamp":      models.FormatTimestamp(res.At),
	})
}

// authorized compares fixed-size digests so the comparison time does not
// depend on the key length or the matching prefix.
func (h *Handler) authorized(header string) bool {
	if !h.cleanupKeySet {
		return true
	}
	got := blake2b.Sum256([]byte(strings.TrimSpace(header)))
	return subtle.ConstantTimeCompare(got[:], h.cleanupKeySum[:]) == 1
}
