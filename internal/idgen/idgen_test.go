package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	id := New()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, id, New())
}

func TestRequestID(t *testing.T) {
	assert.Equal(t, "abc-123_x.y", RequestID("abc-123_x.y"))

	for _, bad := range []string{"", "has space", "line\nbreak", strings.Repeat("a", MaxExternalIDLength+1), "<script>"} {
		got := RequestID(bad)
		assert.NotEqual(t, bad, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "input %q", bad)
	}
}
