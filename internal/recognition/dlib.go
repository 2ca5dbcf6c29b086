package recognition

import (
	"fmt"
	"sync"

	goface "github.com/Kagami/go-face"
	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DlibEmbedder derives 128-d embeddings with dlib's ResNet face model. It
// expects the shape predictor and recognition model files in the configured
// model directory.
type DlibEmbedder struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

// NewDlibEmbedder loads the dlib models.
func NewDlibEmbedder(modelDir string) (*DlibEmbedder, error) {
	rec, err := goface.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dlib recognizer from %s: %w", modelDir, err)
	}
	log.Infof("Dlib face models loaded from %s", modelDir)
	return &DlibEmbedder{rec: rec}, nil
}

// Name identifies the backend.
func (d *DlibEmbedder) Name() string { return "dlib" }

// Embed encodes the crop as JPEG and runs dlib's detector plus descriptor on
// it. The crop is already face-centered, so a single-face recognition is
// expected.
func (d *DlibEmbedder) Embed(face gocv.Mat) ([]float32, error) {
	if face.Empty() {
		return nil, fmt.Errorf("empty face crop")
	}

	buf, err := gocv.IMEncode(".jpg", face)
	if err != nil {
		return nil, fmt.Errorf("failed to encode face crop: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	f, err := d.rec.RecognizeSingle(buf.GetBytes())
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognition failed: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("dlib found no face in crop")
	}

	embedding := make([]float32, len(f.Descriptor))
	for i, v := range f.Descriptor {
		embedding[i] = v
	}
	return embedding, nil
}

// Distance is the Euclidean distance between two embeddings.
func (d *DlibEmbedder) Distance(a, b []float32) float64 {
	return euclideanDistance(a, b)
}

// Close releases the dlib recognizer.
func (d *DlibEmbedder) Close() error {
	d.rec.Close()
	return nil
}
