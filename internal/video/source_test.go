package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		locator string
		kind    SourceKind
		live    bool
	}{
		{"0", SourceWebcam, true},
		{"2", SourceWebcam, true},
		{"rtsp://cam.local:554/stream", SourceNetworkStream, true},
		{"rtmp://cam.local/live", SourceNetworkStream, true},
		{"http://cam.local/mjpeg", SourceNetworkStream, true},
		{"https://cam.local/mjpeg", SourceNetworkStream, true},
		{"/recordings/entrance.mp4", SourceFileStream, false},
		{"clip.MOV", SourceFileStream, false},
		{"not-a-source", SourceUnknown, false},
		{"-1", SourceUnknown, false},
	}

	for _, tt := range tests {
		desc := Classify(tt.locator)
		assert.Equal(t, tt.kind, desc.Kind, "locator %q", tt.locator)
		assert.Equal(t, tt.live, desc.IsLive, "locator %q", tt.locator)
	}
}

func TestClassifyWebcamIndex(t *testing.T) {
	desc := Classify("3")
	assert.Equal(t, SourceWebcam, desc.Kind)
	assert.Equal(t, 3, desc.DeviceIndex)
}

func TestFitWithin(t *testing.T) {
	tests := []struct {
		name       string
		w, h       int
		maxW, maxH int
		wantW      int
		wantH      int
		scaled     bool
	}{
		{"already fits", 1280, 720, 1280, 720, 1280, 720, false},
		{"smaller than max", 640, 480, 1280, 720, 640, 480, false},
		{"bounded by height", 4000, 3000, 1280, 720, 960, 720, true},
		{"bounded by width", 3840, 1080, 1280, 720, 1280, 360, true},
		{"both exceed, square", 2000, 2000, 1280, 720, 720, 720, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, scaled := fitWithin(tt.w, tt.h, tt.maxW, tt.maxH)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
			assert.Equal(t, tt.scaled, scaled)
		})
	}
}

func TestFitWithinPreservesAspectRatio(t *testing.T) {
	w, h, scaled := fitWithin(4000, 3000, 1280, 720)
	assert.True(t, scaled)
	assert.InDelta(t, 4.0/3.0, float64(w)/float64(h), 0.01)
}
