package detection

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeBackend struct {
	mu         sync.Mutex
	batchSizes []int
	perFrame   []Detection
	err        error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) DetectBatch(frames []gocv.Mat) ([][]Detection, error) {
	f.mu.Lock()
	f.batchSizes = append(f.batchSizes, len(frames))
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([][]Detection, len(frames))
	for i := range out {
		out[i] = f.perFrame
	}
	return out, nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) seenBatchSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.batchSizes...)
}

func TestEnginePadsBatchAndDiscardsPaddingResults(t *testing.T) {
	backend := &fakeBackend{
		perFrame: []Detection{{X1: 0, Y1: 0, X2: 100, Y2: 200, Confidence: 0.9}},
	}
	e := NewEngine(testDetectionConfig(), backend)
	e.Start()
	defer e.Stop()

	require.True(t, e.Submit(7, gocv.NewMat()))

	res, ok := e.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(7), res.FrameID)
	assert.Len(t, res.Detections, 1)

	// The backend must have seen a full batch, padded from one real frame.
	sizes := backend.seenBatchSizes()
	require.Len(t, sizes, 1)
	assert.Equal(t, 4, sizes[0])

	// Padding results are never published.
	_, ok = e.Poll(50 * time.Millisecond)
	assert.False(t, ok)
}

func TestEngineBackendErrorYieldsEmptyResult(t *testing.T) {
	backend := &fakeBackend{err: errors.New("inference exploded")}
	e := NewEngine(testDetectionConfig(), backend)
	e.Start()
	defer e.Stop()

	require.True(t, e.Submit(1, gocv.NewMat()))

	res, ok := e.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(1), res.FrameID)
	assert.Empty(t, res.Detections)

	// The next batch proceeds normally after a failed one.
	backend.mu.Lock()
	backend.err = nil
	backend.mu.Unlock()
	require.True(t, e.Submit(2, gocv.NewMat()))
	res, ok = e.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, int64(2), res.FrameID)
}

func TestEngineDropsWhenQueueFull(t *testing.T) {
	cfg := testDetectionConfig()
	cfg.QueueSize = 1
	e := NewEngine(cfg, &fakeBackend{})
	// Worker not started: the queue holds one request, the next must drop.

	assert.True(t, e.Submit(1, gocv.NewMat()))
	assert.False(t, e.Submit(2, gocv.NewMat()))
}

func TestEngineImmediateFiltersResults(t *testing.T) {
	backend := &fakeBackend{
		perFrame: []Detection{
			{X1: 0, Y1: 0, X2: 100, Y2: 200, Confidence: 0.9},
			{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9}, // below min area
		},
	}
	e := NewEngine(testDetectionConfig(), backend)

	m := gocv.NewMat()
	defer m.Close()
	dets := e.DetectImmediate(m)
	require.Len(t, dets, 1)
	assert.Equal(t, 200, dets[0].Height())
}
