package core

import (
	"strconv"
	"strings"

	"faultline/models"

	"github.com/cespare/xxhash/v2"
)

// UnknownErrorType names errors whose type could not be determined.
const UnknownErrorType = "UnknownError"

const fingerprintDelimiter = ":"

// Fingerprint derives the deduplication key of an error from its type,
// message, originating url and first stack frame. The hash is seedless, so
// the same inputs map to the same key across restarts.
func Fingerprint(message, errorType, url, firstStackLine string) string {
	if strings.TrimSpace(errorType) == "" {
		errorType = UnknownErrorType
	}
	canonical := strings.Join([]string{errorType, message, url, strings.TrimSpace(firstStackLine)}, fingerprintDelimiter)
	return "fp_" + strconv.FormatUint(xxhash.Sum64String(canonical), 36)
}

// FirstStackLine returns the frame used for fingerprinting; empty when the
// stack is missing.
func FirstStackLine(stack string) string {
	return models.FirstFrame(stack)
}
