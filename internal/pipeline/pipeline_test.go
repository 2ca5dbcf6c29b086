package pipeline

import (
	"sync"
	"testing"
	"time"

	"lookout/config"
	"lookout/internal/detection"
	"lookout/internal/recognition"
	"lookout/internal/tracking"
	"lookout/internal/video"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeSource struct{}

func (fakeSource) Frame() (video.Frame, bool) {
	return video.Frame{Mat: gocv.NewMatWithSize(720, 1280, gocv.MatTypeCV8UC3), CapturedAt: time.Now()}, true
}

func (fakeSource) Descriptor() video.SourceDescriptor {
	return video.Classify("rtsp://cam.local/stream")
}

type fixedDetector struct {
	dets []detection.Detection
}

func (d fixedDetector) DetectImmediate(frame gocv.Mat) []detection.Detection { return d.dets }

type fixedRecognizer struct {
	res *recognition.Result
}

func (r fixedRecognizer) DetectAndRecognize(region gocv.Mat, snap *recognition.Snapshot) *recognition.Result {
	return r.res
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func newTestPipeline(det Detector, rec Recognizer, sinks ...Sink) *Pipeline {
	cfg := config.DetectionConfig{IntervalMs: 10}
	tracker := tracking.NewTracker(config.TrackingConfig{
		IoUThreshold: 0.3, MaxAge: 3, MinHits: 1, FaceMemorySec: 3, GracePeriodSec: 2,
	})
	p := New(cfg, fakeSource{}, det, tracker, rec, recognition.NewGallery())
	for _, s := range sinks {
		p.AddSink(s)
	}
	return p
}

func TestStationaryPersonOverFiftyCycles(t *testing.T) {
	box := detection.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Confidence: 0.9}
	sink := &captureSink{}
	p := newTestPipeline(fixedDetector{dets: []detection.Detection{box}}, fixedRecognizer{}, sink)

	for i := 0; i < 50; i++ {
		p.runCycle()
	}

	tracks := p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, 50, tracks[0].FramesTracked)
	assert.Equal(t, 0, tracks[0].FramesLost)

	events := sink.all()
	require.Len(t, events, 50)
	for _, ev := range events {
		assert.Equal(t, tracks[0].ID, ev.TrackID)
		assert.Equal(t, "rtsp://cam.local/stream", ev.Source)
		assert.NotEmpty(t, ev.ID)
	}
}

func TestRecognitionOutcomeReachesTrackAndEvents(t *testing.T) {
	box := detection.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Confidence: 0.9}
	rec := fixedRecognizer{res: &recognition.Result{
		FaceBox:    [4]int{10, 10, 60, 60},
		Name:       "alice",
		PersonID:   "EMP-1",
		Confidence: 0.85,
		Quality:    0.8,
	}}
	sink := &captureSink{}
	p := newTestPipeline(fixedDetector{dets: []detection.Detection{box}}, rec, sink)

	p.runCycle()

	tracks := p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, tracking.StatusKnown, tracks[0].Status)
	assert.Equal(t, "alice", tracks[0].Name)
	assert.Equal(t, "EMP-1", tracks[0].PersonID)

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, tracking.StatusKnown, events[0].Status)
	assert.Equal(t, "alice", events[0].Name)
	assert.InDelta(t, 0.85, events[0].Confidence, 1e-9)
}

func TestNoRecognitionLeavesTrackUnidentified(t *testing.T) {
	box := detection.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Confidence: 0.9}
	p := newTestPipeline(fixedDetector{dets: []detection.Detection{box}}, fixedRecognizer{})

	p.runCycle()

	tracks := p.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, tracking.StatusTracking, tracks[0].Status)
	assert.Equal(t, tracking.UnidentifiedName, tracks[0].Name)
}

type dimsDetector struct {
	cols, rows int
	dets       []detection.Detection
}

func (d *dimsDetector) DetectImmediate(frame gocv.Mat) []detection.Detection {
	d.cols, d.rows = frame.Cols(), frame.Rows()
	return d.dets
}

type dimsRecognizer struct {
	regionCols, regionRows int
}

func (r *dimsRecognizer) DetectAndRecognize(region gocv.Mat, snap *recognition.Snapshot) *recognition.Result {
	r.regionCols, r.regionRows = region.Cols(), region.Rows()
	return nil
}

func TestCycleDetectsAndCropsFromEnhancedFrame(t *testing.T) {
	box := detection.Detection{X1: 100, Y1: 100, X2: 200, Y2: 300, Confidence: 0.9}
	det := &dimsDetector{dets: []detection.Detection{box}}
	rec := &dimsRecognizer{}
	p := newTestPipeline(det, rec)

	// Stand-in enhancement with dimensions distinct from the 1280x720 source
	// frame, so a cycle reading the raw frame is detectable.
	p.enhance = func(gocv.Mat) gocv.Mat {
		return gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	}

	p.runCycle()

	assert.Equal(t, 640, det.cols)
	assert.Equal(t, 480, det.rows)
	assert.Equal(t, 100, rec.regionCols)
	assert.Equal(t, 200, rec.regionRows)
}

func TestEnhanceFramePreservesGeometry(t *testing.T) {
	frame := gocv.NewMatWithSize(64, 96, gocv.MatTypeCV8UC3)
	defer frame.Close()

	out := enhanceFrame(frame)
	defer out.Close()

	require.False(t, out.Empty())
	assert.Equal(t, frame.Rows(), out.Rows())
	assert.Equal(t, frame.Cols(), out.Cols())
	assert.Equal(t, frame.Type(), out.Type())
}

func TestEmptyDetectionsEmitNoEvents(t *testing.T) {
	sink := &captureSink{}
	p := newTestPipeline(fixedDetector{}, fixedRecognizer{}, sink)

	p.runCycle()
	assert.Empty(t, sink.all())
}
