package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetFullVersion(t *testing.T) {
	orig := CommitHash
	defer func() { CommitHash = orig }()

	CommitHash = "unknown"
	assert.Equal(t, Version, GetFullVersion())

	CommitHash = "0123456789abcdef"
	assert.Equal(t, Version+" (0123456)", GetFullVersion())

	CommitHash = "abc"
	assert.Equal(t, Version+" (abc)", GetFullVersion())
}
