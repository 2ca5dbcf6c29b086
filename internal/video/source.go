package video

import (
	"path/filepath"
	"strconv"
	"strings"
)

// SourceKind classifies what a locator points at.
type SourceKind string

const (
	SourceWebcam        SourceKind = "webcam"
	SourceNetworkStream SourceKind = "network"
	SourceFileStream    SourceKind = "file"
	SourceUnknown       SourceKind = "unknown"
)

// Streamable file extensions we accept as a file source.
var fileExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mkv": true,
	".mov": true,
	".flv": true,
}

// SourceDescriptor identifies a video source. It is immutable once a
// connection is established; changing the source always produces a new
// descriptor and a new connection.
type SourceDescriptor struct {
	Kind        SourceKind
	Locator     string
	DeviceIndex int // only meaningful for webcams
	IsLive      bool
}

// Classify determines the source kind from its locator. A bare integer is a
// local webcam index, recognized URL schemes are network streams and known
// file extensions are file streams.
func Classify(locator string) SourceDescriptor {
	trimmed := strings.TrimSpace(locator)

	if idx, err := strconv.Atoi(trimmed); err == nil && idx >= 0 {
		return SourceDescriptor{Kind: SourceWebcam, Locator: trimmed, DeviceIndex: idx, IsLive: true}
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.HasPrefix(lower, "rtsp://"),
		strings.HasPrefix(lower, "rtmp://"),
		strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"):
		return SourceDescriptor{Kind: SourceNetworkStream, Locator: trimmed, IsLive: true}
	}

	if fileExtensions[strings.ToLower(filepath.Ext(trimmed))] {
		return SourceDescriptor{Kind: SourceFileStream, Locator: trimmed, IsLive: false}
	}

	return SourceDescriptor{Kind: SourceUnknown, Locator: trimmed}
}

// fitWithin computes the target dimensions for a frame so that it fits inside
// maxW x maxH while preserving aspect ratio. The returned bool reports whether
// scaling is required at all.
func fitWithin(w, h, maxW, maxH int) (int, int, bool) {
	if w <= 0 || h <= 0 || maxW <= 0 || maxH <= 0 {
		return w, h, false
	}
	if w <= maxW && h <= maxH {
		return w, h, false
	}
	scale := float64(maxW) / float64(w)
	if s := float64(maxH) / float64(h); s < scale {
		scale = s
	}
	return int(float64(w) * scale), int(float64(h) * scale), true
}
