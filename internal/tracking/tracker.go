package tracking

import (
	"sort"
	"sync"
	"time"

	"lookout/config"
	"lookout/internal/detection"
)

// Status is the identity state of a track.
type Status string

const (
	// StatusTracking means the person is followed spatially but not identified.
	StatusTracking Status = "Tracking"
	// StatusKnown means the last recognition matched a gallery identity.
	StatusKnown Status = "Known"
	// StatusUnknown means the last recognition found a face but no match.
	StatusUnknown Status = "Unknown"
)

// UnidentifiedName is the name sentinel for a track without a current
// recognition result.
const UnidentifiedName = "-"

// UnknownName is the name assigned when a face was found but matched nothing
// in the gallery.
const UnknownName = "Unknown"

// Track is one spatially tracked person. Tracks are owned exclusively by the
// Tracker; callers only ever see copies.
type Track struct {
	ID             int64               `json:"id"`
	Box            detection.Detection `json:"box"`
	FaceBox        [4]int              `json:"face_box"`
	HasFace        bool                `json:"has_face"`
	Name           string              `json:"name"`
	PersonID       string              `json:"person_id"`
	FaceConfidence float64             `json:"face_confidence"`
	Status         Status              `json:"status"`
	FramesTracked  int                 `json:"frames_tracked"`
	FramesLost     int                 `json:"frames_lost"`
	CreatedAt      time.Time           `json:"created_at"`
	LastSeen       time.Time           `json:"last_seen"`
	FaceLastSeen   time.Time           `json:"face_last_seen"`
}

// Tracker matches per-frame detections to persistent tracks by bounding-box
// overlap. Matching is greedy per detection: the first detection claims the
// not-yet-matched track with the highest IoU above the threshold. This can
// swap IDs under dense crowding; accepted for its predictable cost.
type Tracker struct {
	mu     sync.Mutex
	cfg    config.TrackingConfig
	tracks map[int64]*Track
	nextID int64

	now func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(cfg config.TrackingConfig) *Tracker {
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int64]*Track),
		nextID: 1,
		now:    time.Now,
	}
}

// Update advances the tracker by one frame of detections and returns a
// snapshot of all live tracks, ordered by ID.
func (t *Tracker) Update(dets []detection.Detection) []Track {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	// Every track is lost until a detection claims it this cycle.
	for _, tr := range t.tracks {
		tr.FramesLost++
	}

	matched := make(map[int64]bool, len(t.tracks))
	for _, det := range dets {
		best := t.bestMatch(det, matched)
		if best != nil {
			best.Box = det
			best.LastSeen = now
			best.FramesTracked++
			best.FramesLost = 0
			matched[best.ID] = true
			continue
		}

		id := t.nextID
		t.nextID++
		t.tracks[id] = &Track{
			ID:            id,
			Box:           det,
			Name:          UnidentifiedName,
			Status:        StatusTracking,
			FramesTracked: 1,
			CreatedAt:     now,
			LastSeen:      now,
		}
		matched[id] = true
	}

	t.cleanup(now)
	t.decayFaces(now)

	return t.snapshotLocked()
}

// bestMatch returns the unmatched track with the highest IoU above the
// threshold, or nil.
func (t *Tracker) bestMatch(det detection.Detection, matched map[int64]bool) *Track {
	var best *Track
	bestIoU := t.cfg.IoUThreshold
	for _, tr := range t.tracks {
		if matched[tr.ID] {
			continue
		}
		if v := IoU(det, tr.Box); v > bestIoU {
			bestIoU = v
			best = tr
		}
	}
	return best
}

// cleanup removes tracks lost for too many cycles and tracks that never
// reached the confirmation hit count within the grace period.
func (t *Tracker) cleanup(now time.Time) {
	grace := time.Duration(t.cfg.GracePeriodSec * float64(time.Second))
	for id, tr := range t.tracks {
		if tr.FramesLost > t.cfg.MaxAge {
			delete(t.tracks, id)
			continue
		}
		if tr.FramesTracked < t.cfg.MinHits && now.Sub(tr.CreatedAt) > grace {
			delete(t.tracks, id)
		}
	}
}

// decayFaces clears stale recognition results. A person can stay spatially
// tracked indefinitely while the face identity is periodically re-evaluated.
func (t *Tracker) decayFaces(now time.Time) {
	memory := time.Duration(t.cfg.FaceMemorySec * float64(time.Second))
	for _, tr := range t.tracks {
		if tr.FaceLastSeen.IsZero() {
			continue
		}
		if now.Sub(tr.FaceLastSeen) > memory {
			tr.FaceBox = [4]int{}
			tr.HasFace = false
			tr.Name = UnidentifiedName
			tr.PersonID = ""
			tr.FaceConfidence = 0
			tr.Status = StatusTracking
			tr.FaceLastSeen = time.Time{}
		}
	}
}

// UpdateFaceRecognition attaches a recognition result to a track. It is a
// silent no-op when the track has already been cleaned up; a late result
// racing against cleanup is tolerated.
func (t *Tracker) UpdateFaceRecognition(trackID int64, faceBox [4]int, name string, confidence float64, personID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.tracks[trackID]
	if !ok {
		return
	}

	tr.FaceBox = faceBox
	tr.HasFace = true
	tr.Name = name
	tr.PersonID = personID
	tr.FaceConfidence = confidence
	tr.FaceLastSeen = t.now()
	if name != UnknownName && name != UnidentifiedName {
		tr.Status = StatusKnown
	} else {
		tr.Status = StatusUnknown
	}
}

// Tracks returns a snapshot of all live tracks, ordered by ID.
func (t *Tracker) Tracks() []Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []Track {
	out := make([]Track, 0, len(t.tracks))
	for _, tr := range t.tracks {
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IoU computes intersection-over-union between two boxes.
func IoU(a, b detection.Detection) float64 {
	x1 := maxInt(a.X1, b.X1)
	y1 := maxInt(a.Y1, b.Y1)
	x2 := minInt(a.X2, b.X2)
	y2 := minInt(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Area()+b.Area()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
