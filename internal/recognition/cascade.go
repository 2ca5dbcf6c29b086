package recognition

import (
	"fmt"
	"image"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// CascadeLocator finds faces with an OpenCV Haar cascade. The classifier is
// not safe for concurrent use, so calls are serialized.
type CascadeLocator struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// NewCascadeLocator loads the cascade file.
func NewCascadeLocator(path string) (*CascadeLocator, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("face cascade not found at %s: %w", path, err)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load face cascade from %s", path)
	}

	log.Infof("Face cascade loaded from %s", path)
	return &CascadeLocator{classifier: classifier}, nil
}

// Locate returns face boxes in image coordinates.
func (l *CascadeLocator) Locate(img gocv.Mat) ([]image.Rectangle, error) {
	if img.Empty() {
		return nil, nil
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	l.mu.Lock()
	rects := l.classifier.DetectMultiScaleWithParams(gray, 1.1, 3, 0,
		image.Pt(30, 30), image.Pt(0, 0))
	l.mu.Unlock()

	return rects, nil
}

// Close releases the classifier.
func (l *CascadeLocator) Close() error {
	return l.classifier.Close()
}
