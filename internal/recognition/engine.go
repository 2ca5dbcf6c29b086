package recognition

import (
	"image"

	"lookout/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// upsampleLevels are tried in order during localization; level n views the
// region at 2^n scale so small or distant faces become findable.
var upsampleLevels = []int{0, 1, 2}

// duplicateIoU treats a face found at a higher level as a duplicate of an
// earlier candidate when their boxes overlap this much.
const duplicateIoU = 0.5

// Engine performs quality-gated face recognition on person regions.
type Engine struct {
	cfg      config.RecognitionConfig
	locator  Locator
	embedder Embedder

	// Seams for tests; production uses the gocv implementations.
	assess  func(gocv.Mat) float64
	enhance func(gocv.Mat) gocv.Mat
}

// NewEngine builds the engine around the given localization and embedding
// backends.
func NewEngine(cfg config.RecognitionConfig, locator Locator, embedder Embedder) *Engine {
	return &Engine{
		cfg:      cfg,
		locator:  locator,
		embedder: embedder,
		assess:   assessQuality,
		enhance:  enhanceFace,
	}
}

// Close releases both backends.
func (e *Engine) Close() {
	e.locator.Close()
	e.embedder.Close()
}

// DetectAndRecognize localizes the best face in a person region, gates it on
// quality and matches it against the gallery snapshot. A nil result means "no
// identity this time" and is never an error.
func (e *Engine) DetectAndRecognize(region gocv.Mat, snap *Snapshot) *Result {
	if region.Empty() {
		return nil
	}

	best, ok := e.locateBest(region)
	if !ok {
		return nil
	}
	if best.Quality < e.cfg.QualityThreshold {
		log.Debugf("Face rejected below quality threshold (%.2f < %.2f)",
			best.Quality, e.cfg.QualityThreshold)
		return nil
	}

	bounds := image.Rect(0, 0, region.Cols(), region.Rows())
	box := best.Box.Intersect(bounds)
	if box.Empty() {
		return nil
	}

	crop := region.Region(box)
	defer crop.Close()

	embedding, ok := e.embed(crop)
	if !ok {
		return nil
	}

	name, personID, confidence := e.match(snap, embedding, best.Quality)
	return &Result{
		FaceBox:    [4]int{box.Min.X, box.Min.Y, box.Max.X, box.Max.Y},
		Name:       name,
		PersonID:   personID,
		Confidence: confidence,
		Quality:    best.Quality,
	}
}

// Embed extracts an embedding from an already-cropped face image, using the
// same preprocessing as the recognition path. Used when registering faces.
func (e *Engine) Embed(face gocv.Mat) ([]float32, bool) {
	return e.embed(face)
}

// LocateBest exposes the multi-scale localization for callers that need the
// face box and quality without matching (registration, diagnostics).
func (e *Engine) LocateBest(region gocv.Mat) (Candidate, bool) {
	return e.locateBest(region)
}

// locateBest runs localization at increasing upsample levels, deduplicates
// overlapping candidates and stops early once a confidently good face shows
// up.
func (e *Engine) locateBest(region gocv.Mat) (Candidate, bool) {
	var candidates []Candidate

levels:
	for _, level := range upsampleLevels {
		boxes, err := e.locateAtLevel(region, level)
		if err != nil {
			log.WithError(err).Debugf("Face localization failed at level %d", level)
			continue
		}

		for _, box := range boxes {
			if isDuplicate(box, candidates) {
				continue
			}
			q := e.qualityOf(region, box)
			candidates = append(candidates, Candidate{Box: box, Quality: q, UpsampleLevel: level})
			if q > earlyStopQuality {
				break levels
			}
		}
	}

	if len(candidates) == 0 {
		return Candidate{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Quality > best.Quality {
			best = c
		}
	}
	return best, true
}

// locateAtLevel runs the locator against the region upsampled by 2^level and
// maps the boxes back into region coordinates.
func (e *Engine) locateAtLevel(region gocv.Mat, level int) ([]image.Rectangle, error) {
	if level == 0 {
		return e.locator.Locate(region)
	}

	factor := 1 << level
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(region, &scaled,
		image.Pt(region.Cols()*factor, region.Rows()*factor),
		0, 0, gocv.InterpolationLinear)

	boxes, err := e.locator.Locate(scaled)
	if err != nil {
		return nil, err
	}

	out := make([]image.Rectangle, len(boxes))
	for i, b := range boxes {
		out[i] = image.Rect(b.Min.X/factor, b.Min.Y/factor, b.Max.X/factor, b.Max.Y/factor)
	}
	return out, nil
}

func (e *Engine) qualityOf(region gocv.Mat, box image.Rectangle) float64 {
	bounds := image.Rect(0, 0, region.Cols(), region.Rows())
	clamped := box.Intersect(bounds)
	if clamped.Empty() {
		return 0
	}
	crop := region.Region(clamped)
	defer crop.Close()
	return e.assess(crop)
}

// embed extracts the embedding from the enhanced crop, falling back to the
// raw crop when the backend rejects the enhanced one.
func (e *Engine) embed(crop gocv.Mat) ([]float32, bool) {
	enhanced := e.enhance(crop)
	embedding, err := e.embedder.Embed(enhanced)
	enhanced.Close()
	if err == nil {
		return embedding, true
	}

	log.WithError(err).Debug("Embedding on enhanced crop failed, retrying on raw crop")
	embedding, err = e.embedder.Embed(crop)
	if err != nil {
		log.WithError(err).Debug("Embedding extraction failed")
		return nil, false
	}
	return embedding, true
}

// match finds the closest gallery entry within the quality-adapted tolerance.
func (e *Engine) match(snap *Snapshot, embedding []float32, quality float64) (string, string, float64) {
	if snap == nil || len(snap.Entries) == 0 {
		return "Unknown", "", 0
	}

	bestIdx := -1
	bestDist := 0.0
	for i, entry := range snap.Entries {
		d := e.embedder.Distance(embedding, entry.Embedding)
		if bestIdx < 0 || d < bestDist {
			bestIdx = i
			bestDist = d
		}
	}

	tolerance := adaptiveTolerance(e.cfg.Tolerance, quality)
	if bestDist > tolerance {
		return "Unknown", "", 0
	}

	entry := snap.Entries[bestIdx]
	return entry.Name, entry.PersonID, matchConfidence(bestDist, tolerance, quality)
}

func isDuplicate(box image.Rectangle, candidates []Candidate) bool {
	for _, c := range candidates {
		if rectIoU(box, c.Box) > duplicateIoU {
			return true
		}
	}
	return false
}

func rectIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
