package detection

import (
	"fmt"
	"image"
	"os"

	"lookout/config"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const (
	dnnInputWidth  = 300
	dnnInputHeight = 300

	// Person is class 1 in the COCO label set used by the SSD models.
	personClassID = 1
)

// DNNBackend detects people with an OpenCV DNN (SSD-style output format:
// [img_id, class_id, confidence, left, top, right, bottom] per row).
type DNNBackend struct {
	net                 gocv.Net
	confidenceThreshold float64
}

// NewDNNBackend loads the model and config files named in the configuration.
func NewDNNBackend(cfg config.DetectionConfig) (*DNNBackend, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection model not found at %s: %w", cfg.ModelPath, err)
	}
	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return nil, fmt.Errorf("detection model config not found at %s: %w", cfg.ConfigPath, err)
	}

	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detection model from %s", cfg.ModelPath)
	}

	log.Infof("Person detection model loaded from %s", cfg.ModelPath)
	return &DNNBackend{
		net:                 net,
		confidenceThreshold: cfg.ConfidenceThreshold,
	}, nil
}

// Name identifies the backend in logs and status output.
func (b *DNNBackend) Name() string { return "dnn" }

// DetectBatch runs the network over each frame of the batch.
func (b *DNNBackend) DetectBatch(frames []gocv.Mat) ([][]Detection, error) {
	results := make([][]Detection, len(frames))
	for i, frame := range frames {
		if frame.Empty() {
			continue
		}
		dets, err := b.detectOne(frame)
		if err != nil {
			return nil, err
		}
		results[i] = dets
	}
	return results, nil
}

func (b *DNNBackend) detectOne(frame gocv.Mat) ([]Detection, error) {
	width := frame.Cols()
	height := frame.Rows()

	blob := gocv.BlobFromImage(frame, 1.0,
		image.Pt(dnnInputWidth, dnnInputHeight),
		gocv.NewScalar(127.5, 127.5, 127.5, 0),
		true, false)
	defer blob.Close()

	b.net.SetInput(blob, "")
	prob := b.net.Forward("")
	defer prob.Close()

	var dets []Detection
	for i := 0; i < prob.Total()/7; i++ {
		confidence := float64(prob.GetFloatAt(0, i*7+2))
		if confidence < b.confidenceThreshold {
			continue
		}
		if int(prob.GetFloatAt(0, i*7+1)) != personClassID {
			continue
		}

		dets = append(dets, Detection{
			X1:         int(prob.GetFloatAt(0, i*7+3) * float32(width)),
			Y1:         int(prob.GetFloatAt(0, i*7+4) * float32(height)),
			X2:         int(prob.GetFloatAt(0, i*7+5) * float32(width)),
			Y2:         int(prob.GetFloatAt(0, i*7+6) * float32(height)),
			Confidence: confidence,
		})
	}
	return dets, nil
}

// Close releases the network.
func (b *DNNBackend) Close() error {
	return b.net.Close()
}

// NewBackend selects the detector backend named in the configuration.
func NewBackend(cfg config.DetectionConfig) (Backend, error) {
	switch cfg.Backend {
	case "dnn", "":
		return NewDNNBackend(cfg)
	default:
		return nil, fmt.Errorf("unknown detection backend %q", cfg.Backend)
	}
}
