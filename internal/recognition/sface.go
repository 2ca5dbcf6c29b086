package recognition

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	sfaceInputSize     = 112
	sfaceEmbeddingSize = 128
)

// SFaceEmbedder derives 128-d embeddings with the SFace ONNX model. Vectors
// are L2-normalized so Euclidean distance behaves consistently with the
// configured tolerance.
type SFaceEmbedder struct {
	mu  sync.Mutex
	net gocv.Net
}

// NewSFaceEmbedder loads the ONNX model.
func NewSFaceEmbedder(modelPath string) (*SFaceEmbedder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("embedding model not found at %s: %w", modelPath, err)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load embedding model from %s", modelPath)
	}

	log.Infof("Face embedding model loaded from %s", modelPath)
	return &SFaceEmbedder{net: net}, nil
}

// Name identifies the backend.
func (s *SFaceEmbedder) Name() string { return "sface" }

// Embed runs the network on a face crop.
func (s *SFaceEmbedder) Embed(face gocv.Mat) ([]float32, error) {
	if face.Empty() {
		return nil, fmt.Errorf("empty face crop")
	}

	input := face
	var converted gocv.Mat
	if face.Channels() == 1 {
		converted = gocv.NewMat()
		defer converted.Close()
		gocv.CvtColor(face, &converted, gocv.ColorGrayToBGR)
		input = converted
	}

	blob := gocv.BlobFromImage(input, 1.0/128.0,
		image.Pt(sfaceInputSize, sfaceInputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0),
		true, false)
	defer blob.Close()

	s.mu.Lock()
	s.net.SetInput(blob, "")
	out := s.net.Forward("")
	s.mu.Unlock()
	defer out.Close()

	if out.Total() < sfaceEmbeddingSize {
		return nil, fmt.Errorf("unexpected embedding output size %d", out.Total())
	}

	embedding := make([]float32, sfaceEmbeddingSize)
	var norm float64
	for i := 0; i < sfaceEmbeddingSize; i++ {
		v := out.GetFloatAt(0, i)
		embedding[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
	}
	return embedding, nil
}

// Distance is the Euclidean distance between two embeddings.
func (s *SFaceEmbedder) Distance(a, b []float32) float64 {
	return euclideanDistance(a, b)
}

// Close releases the network.
func (s *SFaceEmbedder) Close() error {
	return s.net.Close()
}

func euclideanDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
