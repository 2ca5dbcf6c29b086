package recognition

import (
	"fmt"
	"image"

	"lookout/config"

	"gocv.io/x/gocv"
)

// Locator finds face bounding boxes inside an image.
type Locator interface {
	Locate(img gocv.Mat) ([]image.Rectangle, error)
	Close() error
}

// Embedder derives a fixed-length vector from a face crop and defines the
// distance metric its vectors are compared with.
type Embedder interface {
	Name() string
	Embed(face gocv.Mat) ([]float32, error)
	Distance(a, b []float32) float64
	Close() error
}

// Candidate is an intermediate result of multi-scale face localization.
type Candidate struct {
	Box           image.Rectangle
	Quality       float64
	UpsampleLevel int
}

// Result is a completed recognition for one person region. Absent results
// are represented by a nil pointer, never an error.
type Result struct {
	FaceBox    [4]int  `json:"face_box"` // region-local coordinates
	Name       string  `json:"name"`
	PersonID   string  `json:"person_id"`
	Confidence float64 `json:"confidence"`
	Quality    float64 `json:"quality"`
}

// NewLocator selects the face locator named in the configuration.
func NewLocator(cfg config.RecognitionConfig) (Locator, error) {
	switch cfg.Locator {
	case "cascade", "":
		return NewCascadeLocator(cfg.CascadePath)
	default:
		return nil, fmt.Errorf("unknown face locator %q", cfg.Locator)
	}
}

// NewEmbedder selects the embedding backend named in the configuration.
func NewEmbedder(cfg config.RecognitionConfig) (Embedder, error) {
	switch cfg.Embedder {
	case "sface", "":
		return NewSFaceEmbedder(cfg.EmbedderModel)
	case "dlib":
		return NewDlibEmbedder(cfg.DlibModelDir)
	default:
		return nil, fmt.Errorf("unknown face embedder %q", cfg.Embedder)
	}
}
