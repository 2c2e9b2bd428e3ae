package handlers

import (
	"errors"
	"net/http"

	"faultline/core"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgInternal     = "Internal server error"
	msgUnauthorized = "Unauthorized"
	msgForbidden    = "Forbidden"

	noStore = "no-cache, no-store, must-revalidate"
)

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondFailure maps err to a status. Validation messages are shown to the
// client; anything else becomes a generic 500 and is only logged.
func respondFailure(c *gin.Context, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		status := ve.Code
		if status == 0 {
			status = http.StatusBadRequest
		}
		respondError(c, status, ve.Message)
	case errors.Is(err, core.ErrUnauthorized):
		respondError(c, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, core.ErrForbidden):
		respondError(c, http.StatusForbidden, msgForbidden)
	default:
		logrus.WithFields(logrus.Fields{
			"request_id": requestIDFrom(c),
			"path":       c.Request.URL.Path,
		}).WithError(err).Error("Request failed")
		respondError(c, http.StatusInternalServerError, msgInternal)
	}
}
