package detection

import (
	"lookout/config"

	"gocv.io/x/gocv"
)

// Detection is one person bounding box with its confidence. It carries no
// identity; identities are assigned by the tracker.
type Detection struct {
	X1         int     `json:"x1"`
	Y1         int     `json:"y1"`
	X2         int     `json:"x2"`
	Y2         int     `json:"y2"`
	Confidence float64 `json:"confidence"`
}

// Width returns the box width in pixels.
func (d Detection) Width() int { return d.X2 - d.X1 }

// Height returns the box height in pixels.
func (d Detection) Height() int { return d.Y2 - d.Y1 }

// Area returns the box area in pixels.
func (d Detection) Area() int { return d.Width() * d.Height() }

// AspectRatio returns height/width; people are taller than wide.
func (d Detection) AspectRatio() float64 {
	w := d.Width()
	if w <= 0 {
		return 0
	}
	return float64(d.Height()) / float64(w)
}

// Backend runs one object class over a batch of images. Implementations are
// selected at construction time; the engine depends only on this contract.
type Backend interface {
	Name() string
	DetectBatch(frames []gocv.Mat) ([][]Detection, error)
	Close() error
}

// Filter drops raw detector outputs that cannot plausibly be a person. The
// three policies apply in order: minimum area, aspect-ratio band, absolute
// dimension bounds.
func Filter(dets []Detection, cfg config.DetectionConfig) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Area() < cfg.MinArea {
			continue
		}
		ar := d.AspectRatio()
		if ar < cfg.MinAspectRatio || ar > cfg.MaxAspectRatio {
			continue
		}
		w, h := d.Width(), d.Height()
		if w < cfg.MinWidth || w > cfg.MaxWidth || h < cfg.MinHeight || h > cfg.MaxHeight {
			continue
		}
		out = append(out, d)
	}
	return out
}
