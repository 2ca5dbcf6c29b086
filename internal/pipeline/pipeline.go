package pipeline

import (
	"image"
	"time"

	"lookout/config"
	"lookout/internal/detection"
	"lookout/internal/recognition"
	"lookout/internal/tracking"
	"lookout/internal/video"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Event is one track snapshot emitted to the collaborators after a cycle.
// Delivery is fire-and-forget; a sink that cannot keep up drops.
type Event struct {
	ID         string              `json:"id"`
	TrackID    int64               `json:"track_id"`
	PersonID   string              `json:"person_id,omitempty"`
	Name       string              `json:"name"`
	Status     tracking.Status     `json:"status"`
	Confidence float64             `json:"confidence"`
	Box        detection.Detection `json:"box"`
	Source     string              `json:"source"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Sink consumes events. Publish must not block the pipeline; implementations
// buffer and drop internally.
type Sink interface {
	Name() string
	Publish(ev Event)
}

// FrameSource supplies the newest frame, non-blocking.
type FrameSource interface {
	Frame() (video.Frame, bool)
	Descriptor() video.SourceDescriptor
}

// Detector is the synchronous low-latency detection path.
type Detector interface {
	DetectImmediate(frame gocv.Mat) []detection.Detection
}

// Recognizer resolves a person region against the gallery.
type Recognizer interface {
	DetectAndRecognize(region gocv.Mat, snap *recognition.Snapshot) *recognition.Result
}

// Pipeline drives one perception cycle per interval: acquire frame, detect,
// track, recognize tracks without a current identity, emit snapshots.
type Pipeline struct {
	cfg        config.DetectionConfig
	source     FrameSource
	detector   Detector
	tracker    *tracking.Tracker
	recognizer Recognizer
	gallery    *recognition.Gallery
	sinks      []Sink

	// frame preparation ahead of detection, replaceable in tests
	enhance func(gocv.Mat) gocv.Mat

	stopCh chan struct{}
	done   chan struct{}
}

// New assembles the pipeline. Sinks may be added before Start.
func New(cfg config.DetectionConfig, source FrameSource, detector Detector,
	tracker *tracking.Tracker, recognizer Recognizer, gallery *recognition.Gallery) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		source:     source,
		detector:   detector,
		tracker:    tracker,
		recognizer: recognizer,
		gallery:    gallery,
		enhance:    enhanceFrame,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// AddSink registers an event consumer. Not safe to call after Start.
func (p *Pipeline) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
	log.Debugf("Pipeline sink registered: %s", s.Name())
}

// Start launches the cycle loop on its own goroutine.
func (p *Pipeline) Start() {
	interval := time.Duration(p.cfg.IntervalMs) * time.Millisecond
	log.Infof("Pipeline started (cycle interval %s)", interval)
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.runCycle()
			}
		}
	}()
}

// Stop shuts the cycle loop down.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		log.Warn("Pipeline loop did not stop in time")
	}
}

// Tracks exposes the current track snapshots for status endpoints.
func (p *Pipeline) Tracks() []tracking.Track {
	return p.tracker.Tracks()
}

// runCycle performs one full perception pass over the newest frame. A missing
// frame (source reconnecting) degrades to a no-op cycle.
func (p *Pipeline) runCycle() {
	frame, ok := p.source.Frame()
	if !ok {
		return
	}
	defer frame.Mat.Close()

	// Detection and recognition both run on the enhanced frame; person crops
	// must come from the same image the detector saw.
	enhanced := p.enhance(frame.Mat)
	defer enhanced.Close()

	dets := p.detector.DetectImmediate(enhanced)
	tracks := p.tracker.Update(dets)

	snap := p.gallery.Snapshot()
	for _, tr := range tracks {
		// Tracks already holding an identity are re-evaluated only after
		// their face memory decays.
		if tr.Status == tracking.StatusKnown {
			continue
		}
		p.recognizeTrack(enhanced, tr, snap)
	}

	p.emit(frame.CapturedAt)
}

// recognizeTrack crops the person region and attaches the recognition
// outcome, if any, to the track. A late result against a removed track is
// silently dropped by the tracker.
func (p *Pipeline) recognizeTrack(frame gocv.Mat, tr tracking.Track, snap *recognition.Snapshot) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	box := image.Rect(tr.Box.X1, tr.Box.Y1, tr.Box.X2, tr.Box.Y2).Intersect(bounds)
	if box.Empty() {
		return
	}

	region := frame.Region(box)
	defer region.Close()

	res := p.recognizer.DetectAndRecognize(region, snap)
	if res == nil {
		return
	}
	p.tracker.UpdateFaceRecognition(tr.ID, res.FaceBox, res.Name, res.Confidence, res.PersonID)
}

// emit publishes a snapshot event per live track to every sink.
func (p *Pipeline) emit(capturedAt time.Time) {
	tracks := p.tracker.Tracks()
	if len(tracks) == 0 {
		return
	}

	locator := p.source.Descriptor().Locator
	for _, tr := range tracks {
		ev := Event{
			ID:         uuid.NewString(),
			TrackID:    tr.ID,
			PersonID:   tr.PersonID,
			Name:       tr.Name,
			Status:     tr.Status,
			Confidence: tr.FaceConfidence,
			Box:        tr.Box,
			Source:     locator,
			Timestamp:  capturedAt,
		}
		for _, s := range p.sinks {
			s.Publish(ev)
		}
	}
}
