package video

import (
	"testing"

	"lookout/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitcherRejectsInvalidLocator(t *testing.T) {
	s, err := NewSwitcher(config.SourceConfig{URL: "rtsp://cam.local/stream"})
	require.NoError(t, err)

	err = s.Change("definitely-not-a-source")
	assert.Error(t, err)

	// The active source stays untouched after a rejected change.
	assert.Equal(t, "rtsp://cam.local/stream", s.Descriptor().Locator)
}

func TestNewSwitcherRejectsUnknownLocator(t *testing.T) {
	_, err := NewSwitcher(config.SourceConfig{URL: "nonsense"})
	assert.Error(t, err)
}
